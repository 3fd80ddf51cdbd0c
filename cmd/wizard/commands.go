package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"aliyun_voice_wizard/internal/apperr"
	"aliyun_voice_wizard/internal/audio"
	"aliyun_voice_wizard/internal/session"
	"aliyun_voice_wizard/internal/wizard"
)

const usage = `可用命令:
  status                     - 查看所有步骤状态
  set <字段> <值>            - 保存配置 (appKey/accessKeyId/accessKeySecret/zhipuApiKey)
  next                       - 验证并完成当前步骤
  record                     - 开始录音，再次执行结束录音并识别
  back <步骤> [reset]        - 回到之前的步骤，reset同时清除完成记录
  import <文件>              - 导入配置
  export [文件]              - 导出配置
  info                       - 查看已保存的配置
  save <文件>                - 保存最近一次录音
  chat <消息>                - 与智谱AI对话
  clear                      - 清除所有配置
  quit/exit                  - 退出程序
`

// commandLoop 读取并执行终端命令
type commandLoop struct {
	ctx      context.Context
	wizard   *wizard.Wizard
	recorder *audio.Recorder
	out      *terminal

	stopWaveform context.CancelFunc
}

func (c *commandLoop) run(in io.Reader) {
	c.out.printf("%s", usage)
	c.out.printSteps(c.wizard.Orchestrator().Snapshot(), c.wizard.Orchestrator().Current())

	scanner := bufio.NewScanner(in)
	for {
		c.out.printf("> ")
		if !scanner.Scan() {
			return
		}
		if c.ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !c.execute(line) {
			return
		}
	}
}

// execute 执行一条命令，返回false表示退出
func (c *commandLoop) execute(line string) bool {
	parts := strings.Fields(line)
	cmd, args := parts[0], parts[1:]

	var err error
	switch cmd {
	case "help":
		c.out.printf("%s", usage)
	case "status":
		c.out.printSteps(c.wizard.Orchestrator().Snapshot(), c.wizard.Orchestrator().Current())
	case "set":
		if len(args) < 2 {
			c.out.printf("用法: set <字段> <值>\n")
			return true
		}
		err = c.wizard.SetField(args[0], strings.Join(args[1:], " "))
		if err == nil {
			c.out.printf("已保存 %s: %s\n", args[0], session.Preview(strings.Join(args[1:], " ")))
		}
	case "next", "validate":
		err = c.wizard.Next(c.ctx)
	case "record":
		err = c.toggleRecording()
	case "back":
		err = c.back(args)
	case "import":
		if len(args) != 1 {
			c.out.printf("用法: import <文件>\n")
			return true
		}
		err = c.importFile(args[0])
	case "export":
		err = c.export(args)
	case "info":
		c.info()
	case "save":
		if len(args) != 1 {
			c.out.printf("用法: save <文件>\n")
			return true
		}
		var artifact *audio.Artifact
		artifact, err = c.wizard.SaveArtifact(args[0])
		if err == nil {
			c.out.printf("录音已保存: %s (%s, %d字节)\n", args[0], artifact.MimeType, artifact.Size())
		}
	case "chat":
		if len(args) == 0 {
			c.out.printf("用法: chat <消息>\n")
			return true
		}
		_, err = c.wizard.SendChat(c.ctx, strings.Join(args, " "))
	case "clear":
		err = c.wizard.Clear()
		if err == nil {
			c.out.printf("所有配置已清除\n")
		}
	case "quit", "exit":
		c.stopWave()
		return false
	default:
		c.out.printf("未知命令: %s，输入help查看可用命令\n", cmd)
	}

	if err != nil {
		c.report(err)
	}
	return true
}

// report 输出命令错误，验证失败已经通过步骤状态展示
func (c *commandLoop) report(err error) {
	switch {
	case errors.Is(err, wizard.ErrStale):
	case errors.Is(err, wizard.ErrNoValidator):
		c.out.printf("当前步骤请使用record录音\n")
	case errors.Is(err, wizard.ErrStepNotActive), errors.Is(err, wizard.ErrUnknownStep),
		errors.Is(err, session.ErrUnknownField), errors.Is(err, session.ErrInvalidImport),
		errors.Is(err, wizard.ErrChatClosed), errors.Is(err, wizard.ErrNoArtifact), errors.Is(err, wizard.ErrEmptyChat):
		c.out.printf("❌ %v\n", err)
	default:
		var validErr *apperr.ValidationError
		var credErr *apperr.CredentialError
		var netErr *apperr.NetworkError
		var devErr *apperr.DeviceError
		var encErr *apperr.EncodingError
		if errors.As(err, &validErr) || errors.As(err, &credErr) || errors.As(err, &netErr) ||
			errors.As(err, &devErr) || errors.As(err, &encErr) {
			return
		}
		c.out.printf("❌ %s\n", apperr.UserMessage(err))
	}
}

func (c *commandLoop) toggleRecording() error {
	wasRecording := c.wizard.IsRecording()
	if wasRecording {
		c.stopWave()
		c.out.printf("\n")
	}
	if err := c.wizard.ToggleRecording(c.ctx); err != nil {
		return err
	}
	if !wasRecording && c.wizard.IsRecording() {
		c.startWave()
	}
	return nil
}

// startWave 录音期间在一行内刷新波形和进度
func (c *commandLoop) startWave() {
	if c.recorder == nil {
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.stopWaveform = cancel
	go c.recorder.Waveform().Run(ctx, func(w *audio.Waveform) {
		if !c.wizard.IsRecording() {
			cancel()
			return
		}
		c.out.printf("\r🎤 %s %3.0f%%", w.Render(40), w.Progress())
	})
}

func (c *commandLoop) stopWave() {
	if c.stopWaveform != nil {
		c.stopWaveform()
		c.stopWaveform = nil
	}
}

func (c *commandLoop) back(args []string) error {
	if len(args) == 0 {
		c.out.printf("用法: back <步骤> [reset]\n")
		return nil
	}
	step, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: %s", wizard.ErrUnknownStep, args[0])
	}
	c.stopWave()
	resetPending := len(args) > 1 && args[1] == "reset"
	return c.wizard.GoBack(step, resetPending)
}

func (c *commandLoop) importFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	c.stopWave()
	if err := c.wizard.Import(c.ctx, data); err != nil {
		return err
	}
	c.out.printf("配置导入成功\n")
	return nil
}

func (c *commandLoop) export(args []string) error {
	data, err := c.wizard.Export()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		c.out.printf("%s\n", data)
		return nil
	}
	if err := os.WriteFile(args[0], data, 0o600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	c.out.printf("配置已导出到 %s (%s)\n", args[0], time.Now().Format("2006-01-02 15:04:05"))
	return nil
}

func (c *commandLoop) info() {
	items := c.wizard.Summary()
	if len(items) == 0 {
		c.out.printf("尚未保存任何配置\n")
		return
	}
	for _, item := range items {
		c.out.printf("  %-18s %s\n", item.Label+":", item.Value)
	}
}
