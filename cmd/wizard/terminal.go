package main

import (
	"fmt"
	"io"
	"sync"

	"aliyun_voice_wizard/internal/wizard"
)

var levelIcons = map[wizard.Level]string{
	wizard.LevelInfo:    "🔄",
	wizard.LevelSuccess: "✅",
	wizard.LevelWarning: "⚠️",
	wizard.LevelError:   "❌",
}

var stateIcons = map[wizard.State]string{
	wizard.StatePending:   "○",
	wizard.StateActive:    "▶",
	wizard.StateCompleted: "✔",
	wizard.StateError:     "✖",
}

// terminal 在终端中展示步骤状态、识别结果和对话回复
type terminal struct {
	mu   sync.Mutex
	out  io.Writer
	orch *wizard.Orchestrator
}

func newTerminal(out io.Writer) *terminal {
	return &terminal{out: out}
}

func (t *terminal) bind(orch *wizard.Orchestrator) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.orch = orch
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

func (t *terminal) stepName(step int) string {
	t.mu.Lock()
	orch := t.orch
	t.mu.Unlock()
	if orch == nil {
		return ""
	}
	def, err := orch.Definition(step)
	if err != nil {
		return ""
	}
	return def.Name
}

// StepStateChanged 只提示进入激活状态的步骤
func (t *terminal) StepStateChanged(step int, state wizard.State) {
	if state != wizard.StateActive {
		return
	}
	t.printf("\n▶ 第%d步 %s\n", step, t.stepName(step))
}

func (t *terminal) StepStatusChanged(step int, status wizard.Status) {
	if status.Message == "" {
		return
	}
	t.printf("  %s [第%d步] %s\n", levelIcons[status.Level], step, status.Message)
}

func (t *terminal) TranscriptReady(text string) {
	t.printf("  📝 识别结果: %s\n", text)
}

func (t *terminal) ChatReply(reply string) {
	t.printf("  🤖 %s\n", reply)
}

// printSteps 输出所有步骤的状态
func (t *terminal) printSteps(views []wizard.StepView, current int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, v := range views {
		marker := " "
		if v.Index == current {
			marker = "*"
		}
		fmt.Fprintf(t.out, "%s %s 第%d步 %-12s %s", marker, stateIcons[v.State], v.Index, v.Name, v.State)
		if v.Status.Message != "" {
			fmt.Fprintf(t.out, "  %s %s", levelIcons[v.Status.Level], v.Status.Message)
		}
		fmt.Fprintln(t.out)
	}
}
