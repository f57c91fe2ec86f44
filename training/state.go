package training

import (
	"fmt"
	"sync"

	"github.com/BaSui01/videoflow/types"
)

// State 训练生命周期状态
type State string

const (
	StateIdle         State = "idle"          // 尚未开始
	StateEpochRunning State = "epoch_running" // 一轮已开始，学习率已下发
	StateStepRunning  State = "step_running"  // 正在执行步
	StateEpochDone    State = "epoch_done"    // 一轮结束
	StateFinished     State = "finished"      // 全部轮次完成
	StateFailed       State = "failed"        // 出错终止
)

// validTransitions 定义合法的状态转换
var validTransitions = map[State][]State{
	StateIdle:         {StateEpochRunning, StateFinished, StateFailed}, // 恢复后无剩余轮次时直接结束
	StateEpochRunning: {StateStepRunning, StateEpochDone, StateFailed},
	StateStepRunning:  {StateStepRunning, StateEpochDone, StateFailed},
	StateEpochDone:    {StateEpochRunning, StateFinished, StateFailed},
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal 是否为终止状态
func (s State) IsTerminal() bool {
	return s == StateFinished || s == StateFailed
}

// Machine 训练状态机，可并发读取
type Machine struct {
	mu       sync.RWMutex
	state    State
	onChange func(from, to State)
}

// NewMachine 创建处于 idle 的状态机；onChange 在每次成功转换后调用，可以为 nil
func NewMachine(onChange func(from, to State)) *Machine {
	return &Machine{state: StateIdle, onChange: onChange}
}

// State 当前状态
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Transition 转换到目标状态，非法转换返回 INVALID_TRANSITION
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("invalid state transition: %s -> %s", from, to))
	}
	m.state = to
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(from, to)
	}
	return nil
}

// Fail 从任意非终止状态转到 failed；已终止时不做任何事
func (m *Machine) Fail() {
	if m.State().IsTerminal() {
		return
	}
	_ = m.Transition(StateFailed)
}
