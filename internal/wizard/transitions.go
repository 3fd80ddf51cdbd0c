package wizard

import "fmt"

// State 步骤状态
type State int

const (
	StatePending State = iota
	StateActive
	StateCompleted
	StateError
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// focused 当前正在处理的步骤，同一时间最多一个
func (s State) focused() bool {
	return s == StateActive || s == StateError
}

// Event 状态机事件
type Event int

const (
	EventActivate Event = iota
	EventComplete
	EventCompleteNoAdvance
	EventFail
	EventDemote
)

func (e Event) String() string {
	switch e {
	case EventActivate:
		return "activate"
	case EventComplete:
		return "complete"
	case EventCompleteNoAdvance:
		return "complete-no-advance"
	case EventFail:
		return "fail"
	case EventDemote:
		return "demote"
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Effect 状态转换的副作用
type Effect uint8

const (
	// EffectFocus 成为当前步骤，其他处于焦点的步骤降级
	EffectFocus Effect = 1 << iota
	// EffectResetFollowing 之后的步骤全部置为pending并清除状态信息
	EffectResetFollowing
	// EffectClearStatus 清除本步骤的状态信息
	EffectClearStatus
	// EffectRunReset 执行步骤的重置钩子
	EffectRunReset
	// EffectAdvance 激活下一步
	EffectAdvance
	// EffectPersist 记录为已完成
	EffectPersist
)

func (e Effect) has(f Effect) bool { return e&f != 0 }

type transitionKey struct {
	from  State
	event Event
}

type transition struct {
	to      State
	effects Effect
}

const activateEffects = EffectFocus | EffectResetFollowing | EffectClearStatus | EffectRunReset

var transitions = map[transitionKey]transition{
	{StatePending, EventActivate}:   {StateActive, activateEffects},
	{StateActive, EventActivate}:    {StateActive, activateEffects},
	{StateCompleted, EventActivate}: {StateActive, activateEffects},
	{StateError, EventActivate}:     {StateActive, activateEffects},

	{StateActive, EventComplete}: {StateCompleted, EffectPersist | EffectAdvance},
	{StateError, EventComplete}:  {StateCompleted, EffectPersist | EffectAdvance},

	{StateActive, EventCompleteNoAdvance}: {StateCompleted, EffectPersist},
	{StateError, EventCompleteNoAdvance}:  {StateCompleted, EffectPersist},

	{StateActive, EventFail}: {StateError, 0},
	{StateError, EventFail}:  {StateError, 0},

	{StatePending, EventDemote}:   {StatePending, EffectClearStatus},
	{StateActive, EventDemote}:    {StatePending, EffectClearStatus},
	{StateCompleted, EventDemote}: {StatePending, EffectClearStatus},
	{StateError, EventDemote}:     {StatePending, EffectClearStatus},
}

func lookup(from State, event Event) (transition, bool) {
	t, ok := transitions[transitionKey{from, event}]
	return t, ok
}
