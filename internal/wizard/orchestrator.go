// Package wizard 六步配置向导的步骤编排
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"aliyun_voice_wizard/internal/apperr"
)

var (
	ErrUnknownStep       = errors.New("步骤不存在")
	ErrInvalidTransition = errors.New("无效的状态转换")
	ErrStepNotActive     = errors.New("步骤不是当前步骤")
	ErrNoValidator       = errors.New("步骤没有验证例程")
	ErrStale             = errors.New("步骤已切换，结果已丢弃")
)

// Level 状态信息级别
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Status 步骤状态信息
type Status struct {
	Message string
	Level   Level
}

// Validator 步骤的验证例程，返回nil表示步骤完成
type Validator func(ctx context.Context, sc *StepContext) error

// Step 步骤定义
type Step struct {
	Name           string
	RequiredFields []string
	AutoJump       bool
	Validate       Validator
	SuccessMessage string
	// Reset 步骤被重新激活时调用，wasCompleted表示激活前已完成
	Reset func(wasCompleted bool)
}

// CompletionStore 保存步骤完成记录和字段
type CompletionStore interface {
	IsCompleted(step int) bool
	MarkCompleted(step int)
	UnmarkCompleted(step int)
	HasFields(fields []string) bool
}

// Presenter 接收步骤状态和状态信息的变化
type Presenter interface {
	StepStateChanged(step int, state State)
	StepStatusChanged(step int, status Status)
}

// Token 一次步骤激活的凭证，步骤切换或重新激活后失效
type Token struct {
	Step       int
	generation uint64
	orch       *Orchestrator
}

// IsCurrent 凭证对应的激活是否仍然有效
func (t Token) IsCurrent() bool {
	if t.orch == nil {
		return false
	}
	t.orch.mu.Lock()
	defer t.orch.mu.Unlock()
	return t.orch.isCurrentLocked(t)
}

// StepContext 验证例程的上下文
type StepContext struct {
	Step  int
	Token Token
	orch  *Orchestrator
}

// Info 当前激活仍有效时更新状态信息
func (sc *StepContext) Info(message string) {
	sc.orch.SetStatusIfCurrent(sc.Token, message, LevelInfo)
}

// StepView 步骤快照
type StepView struct {
	Index  int
	Name   string
	State  State
	Status Status
}

// Options 编排器选项
type Options struct {
	SettleDelay time.Duration
	Presenter   Presenter
	Logger      *zap.SugaredLogger
}

// Orchestrator 步骤状态机
type Orchestrator struct {
	mu         sync.Mutex
	steps      []Step
	states     []State
	statuses   []Status
	current    int
	generation uint64

	store     CompletionStore
	presenter Presenter
	logger    *zap.SugaredLogger
	settle    time.Duration
}

// New 创建编排器，所有步骤初始为pending
func New(steps []Step, store CompletionStore, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Orchestrator{
		steps:     steps,
		states:    make([]State, len(steps)),
		statuses:  make([]Status, len(steps)),
		store:     store,
		presenter: opts.Presenter,
		logger:    logger,
		settle:    opts.SettleDelay,
	}
}

// batch 持锁期间收集的回调，释放锁后依次执行
type batch []func()

func (b *batch) add(fn func()) { *b = append(*b, fn) }

func (b batch) run() {
	for _, fn := range b {
		fn()
	}
}

// Total 步骤总数
func (o *Orchestrator) Total() int { return len(o.steps) }

func (o *Orchestrator) checkStep(step int) error {
	if step < 1 || step > len(o.steps) {
		return fmt.Errorf("%w: %d", ErrUnknownStep, step)
	}
	return nil
}

// isCurrentLocked 完成后未前进的步骤仍是当前步骤，凭证保持有效
func (o *Orchestrator) isCurrentLocked(t Token) bool {
	if t.Step < 1 || o.current != t.Step || o.generation != t.generation {
		return false
	}
	state := o.states[t.Step-1]
	return state.focused() || state == StateCompleted
}

func (o *Orchestrator) setState(b *batch, i int, state State) {
	o.states[i] = state
	if o.presenter != nil {
		p, step := o.presenter, i+1
		b.add(func() { p.StepStateChanged(step, state) })
	}
}

func (o *Orchestrator) setStatus(b *batch, i int, status Status) {
	o.statuses[i] = status
	if o.presenter != nil {
		p, step := o.presenter, i+1
		b.add(func() { p.StepStatusChanged(step, status) })
	}
}

// apply 按转换表执行一个事件，调用方持锁
func (o *Orchestrator) apply(b *batch, step int, event Event, runReset bool) error {
	i := step - 1
	from := o.states[i]
	t, ok := lookup(from, event)
	if !ok {
		return fmt.Errorf("%w: 步骤%d %s + %s", ErrInvalidTransition, step, from, event)
	}

	if t.effects.has(EffectFocus) {
		for j := 0; j < i; j++ {
			if o.states[j].focused() {
				if err := o.apply(b, j+1, EventDemote, false); err != nil {
					return err
				}
			}
		}
	}
	if t.effects.has(EffectResetFollowing) {
		for j := i + 1; j < len(o.steps); j++ {
			if o.states[j] != StatePending {
				o.setState(b, j, StatePending)
			}
			if o.statuses[j] != (Status{}) {
				o.setStatus(b, j, Status{})
			}
		}
	}

	o.setState(b, i, t.to)
	if t.effects.has(EffectClearStatus) && o.statuses[i] != (Status{}) {
		o.setStatus(b, i, Status{})
	}
	if t.effects.has(EffectFocus) {
		o.current = step
		o.generation++
	}
	if t.effects.has(EffectRunReset) && runReset && o.steps[i].Reset != nil {
		reset, wasCompleted := o.steps[i].Reset, from == StateCompleted
		b.add(func() { reset(wasCompleted) })
	}
	if t.effects.has(EffectPersist) {
		o.store.MarkCompleted(step)
	}
	if t.effects.has(EffectAdvance) && step < len(o.steps) {
		return o.apply(b, step+1, EventActivate, true)
	}
	return nil
}

func (o *Orchestrator) fire(step int, event Event, runReset bool) error {
	if err := o.checkStep(step); err != nil {
		return err
	}
	var b batch
	o.mu.Lock()
	err := o.apply(&b, step, event, runReset)
	o.mu.Unlock()
	b.run()
	return err
}

// ActivateOption 激活选项
type ActivateOption func(*activateOptions)

type activateOptions struct {
	skipReset bool
}

// WithoutReset 激活时不执行步骤的重置钩子
func WithoutReset() ActivateOption {
	return func(o *activateOptions) { o.skipReset = true }
}

// Activate 激活步骤：之后的步骤置为pending，清除状态信息，生成新的凭证
func (o *Orchestrator) Activate(step int, opts ...ActivateOption) error {
	var ao activateOptions
	for _, opt := range opts {
		opt(&ao)
	}
	o.logger.Debugw("激活步骤", "step", step)
	return o.fire(step, EventActivate, !ao.skipReset)
}

// Complete 完成步骤并激活下一步
func (o *Orchestrator) Complete(step int) error {
	return o.fire(step, EventComplete, true)
}

// CompleteWithoutAdvance 完成步骤但不激活下一步
func (o *Orchestrator) CompleteWithoutAdvance(step int) error {
	return o.fire(step, EventCompleteNoAdvance, true)
}

// Demote 步骤置为pending
func (o *Orchestrator) Demote(step int) error {
	return o.fire(step, EventDemote, false)
}

// Fail 步骤进入error状态并显示错误信息
func (o *Orchestrator) Fail(step int, message string) error {
	if err := o.checkStep(step); err != nil {
		return err
	}
	var b batch
	o.mu.Lock()
	err := o.apply(&b, step, EventFail, false)
	if err == nil {
		o.setStatus(&b, step-1, Status{Message: message, Level: LevelError})
	}
	o.mu.Unlock()
	b.run()
	return err
}

// ResetAll 所有步骤置为pending，之前的凭证全部失效
func (o *Orchestrator) ResetAll() {
	var b batch
	o.mu.Lock()
	for i := range o.steps {
		if o.states[i] != StatePending {
			o.setState(&b, i, StatePending)
		}
		if o.statuses[i] != (Status{}) {
			o.setStatus(&b, i, Status{})
		}
	}
	o.current = 0
	o.generation++
	o.mu.Unlock()
	b.run()
}

// SetStatus 设置步骤状态信息
func (o *Orchestrator) SetStatus(step int, message string, level Level) {
	if o.checkStep(step) != nil {
		return
	}
	var b batch
	o.mu.Lock()
	o.setStatus(&b, step-1, Status{Message: message, Level: level})
	o.mu.Unlock()
	b.run()
}

// SetStatusIfCurrent 凭证仍有效时设置状态信息
func (o *Orchestrator) SetStatusIfCurrent(t Token, message string, level Level) bool {
	var b batch
	o.mu.Lock()
	ok := o.isCurrentLocked(t)
	if ok {
		o.setStatus(&b, t.Step-1, Status{Message: message, Level: level})
	}
	o.mu.Unlock()
	b.run()
	return ok
}

// CompleteIfCurrent 凭证仍有效时完成步骤并显示成功信息
func (o *Orchestrator) CompleteIfCurrent(t Token, message string) error {
	return o.completeIfCurrent(t, message, EventComplete)
}

// CompleteIfCurrentWithoutAdvance 凭证仍有效时完成步骤但不激活下一步，凭证继续有效
func (o *Orchestrator) CompleteIfCurrentWithoutAdvance(t Token, message string) error {
	return o.completeIfCurrent(t, message, EventCompleteNoAdvance)
}

func (o *Orchestrator) completeIfCurrent(t Token, message string, event Event) error {
	var b batch
	o.mu.Lock()
	if !o.isCurrentLocked(t) {
		o.mu.Unlock()
		return ErrStale
	}
	err := o.apply(&b, t.Step, event, true)
	if err == nil && message != "" {
		o.setStatus(&b, t.Step-1, Status{Message: message, Level: LevelSuccess})
	}
	o.mu.Unlock()
	b.run()
	return err
}

// AdvanceIfCurrent 凭证仍有效且步骤已完成时激活下一步
func (o *Orchestrator) AdvanceIfCurrent(t Token) error {
	var b batch
	o.mu.Lock()
	if !o.isCurrentLocked(t) || o.states[t.Step-1] != StateCompleted {
		o.mu.Unlock()
		return ErrStale
	}
	var err error
	if t.Step < len(o.steps) {
		err = o.apply(&b, t.Step+1, EventActivate, true)
	}
	o.mu.Unlock()
	b.run()
	return err
}

// State 步骤状态
func (o *Orchestrator) State(step int) State {
	if o.checkStep(step) != nil {
		return StatePending
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.states[step-1]
}

// Status 步骤状态信息
func (o *Orchestrator) Status(step int) Status {
	if o.checkStep(step) != nil {
		return Status{}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statuses[step-1]
}

// Current 当前步骤，0表示没有
func (o *Orchestrator) Current() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Token 当前激活的凭证
func (o *Orchestrator) Token() Token {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Token{Step: o.current, generation: o.generation, orch: o}
}

// Snapshot 所有步骤的快照
func (o *Orchestrator) Snapshot() []StepView {
	o.mu.Lock()
	defer o.mu.Unlock()
	views := make([]StepView, len(o.steps))
	for i, s := range o.steps {
		views[i] = StepView{Index: i + 1, Name: s.Name, State: o.states[i], Status: o.statuses[i]}
	}
	return views
}

// Definition 步骤定义
func (o *Orchestrator) Definition(step int) (Step, error) {
	if err := o.checkStep(step); err != nil {
		return Step{}, err
	}
	return o.steps[step-1], nil
}

// Validate 执行当前步骤的验证例程，成功后完成步骤；失败时步骤保持激活并显示错误
func (o *Orchestrator) Validate(ctx context.Context, step int) error {
	if err := o.checkStep(step); err != nil {
		return err
	}
	def := o.steps[step-1]

	o.mu.Lock()
	if o.current != step || !o.states[step-1].focused() {
		o.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrStepNotActive, step)
	}
	token := Token{Step: step, generation: o.generation, orch: o}
	o.mu.Unlock()

	if def.Validate == nil {
		return fmt.Errorf("%w: %d", ErrNoValidator, step)
	}

	err := def.Validate(ctx, &StepContext{Step: step, Token: token, orch: o})
	if errors.Is(err, ErrStale) || !token.IsCurrent() {
		o.logger.Infow("步骤已切换，丢弃验证结果", "step", step)
		return ErrStale
	}
	if err != nil {
		o.logger.Infow("步骤验证失败", "step", step, "error", err)
		o.SetStatusIfCurrent(token, apperr.UserMessage(err), LevelError)
		return err
	}

	o.logger.Infow("步骤验证成功", "step", step)
	return o.CompleteIfCurrent(token, def.SuccessMessage)
}

// CanAutoJump 有验证例程、必填字段齐全且曾经完成过的步骤可以自动跳过
func (o *Orchestrator) CanAutoJump(step int) bool {
	if o.checkStep(step) != nil {
		return false
	}
	def := o.steps[step-1]
	return def.AutoJump && def.Validate != nil &&
		o.store.HasFields(def.RequiredFields) && o.store.IsCompleted(step)
}

// AutoJumpFrom 从start开始依次重新验证可自动跳过的步骤，遇到不能跳过或验证失败的步骤时停止
func (o *Orchestrator) AutoJumpFrom(ctx context.Context, start int) error {
	for step := start; step <= len(o.steps); step++ {
		if !o.CanAutoJump(step) {
			o.logger.Debugw("自动跳转停止", "step", step)
			return nil
		}
		o.logger.Infow("自动跳转", "step", step)
		if err := o.Validate(ctx, step); err != nil {
			return nil
		}
		if err := sleep(ctx, o.settle); err != nil {
			return err
		}
	}
	return nil
}

// GoBack 回到之前的步骤，resetPending为true时清除该步骤的完成记录
func (o *Orchestrator) GoBack(step int, resetPending bool) error {
	if err := o.checkStep(step); err != nil {
		return err
	}
	if resetPending {
		o.store.UnmarkCompleted(step)
	}
	return o.Activate(step)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
