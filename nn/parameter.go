package nn

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/BaSui01/videoflow/tensor"
	"github.com/BaSui01/videoflow/types"
)

// DefaultTarget 默认执行目标
const DefaultTarget = "cpu:0"

// allocatedSets 统计已分配的参数集数量
var allocatedSets atomic.Int64

// AllocatedParameterSets 返回进程内已分配的 ParameterSet 数量
func AllocatedParameterSets() int64 {
	return allocatedSets.Load()
}

// =============================================================================
// 📦 参数
// =============================================================================

// Parameter 可训练参数：当前值、梯度、权重衰减系数与执行目标
type Parameter struct {
	Name   string
	Value  *tensor.Tensor
	Grad   *tensor.Tensor
	Decay  float64
	Target string
}

// VariableOption 参数创建选项
type VariableOption func(*Parameter)

// WithDecay 设置 L2 权重衰减系数，非零时产生一项正则损失
func WithDecay(coeff float64) VariableOption {
	return func(p *Parameter) {
		p.Decay = coeff
	}
}

// WithTarget 设置参数的首选执行目标
func WithTarget(target string) VariableOption {
	return func(p *Parameter) {
		if target != "" {
			p.Target = target
		}
	}
}

// =============================================================================
// 🗂️ 参数集
// =============================================================================

// ParameterSet 按创建顺序保存的命名参数集合。
// 一个模型实例只持有一个 ParameterSet，所有片段共享读取。
type ParameterSet struct {
	mu     sync.RWMutex
	order  []string
	params map[string]*Parameter
	target string
}

// NewParameterSet 创建空参数集
func NewParameterSet(target string) *ParameterSet {
	allocatedSets.Add(1)
	if target == "" {
		target = DefaultTarget
	}
	return &ParameterSet{
		params: make(map[string]*Parameter),
		target: target,
	}
}

// NewVariable 创建并注册参数，返回参数及其权重衰减项（系数为零时为空）
func (s *ParameterSet) NewVariable(name string, shape []int, init InitFunc, opts ...VariableOption) (*Parameter, Penalties, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.params[name]; exists {
		return nil, nil, types.NewConfigError("variable %q already exists", name)
	}
	for _, d := range shape {
		if d <= 0 {
			return nil, nil, types.NewConfigError("variable %q has invalid shape %v", name, shape)
		}
	}

	p := &Parameter{
		Name:   name,
		Value:  tensor.New(shape...),
		Grad:   tensor.New(shape...),
		Target: s.target,
	}
	for _, opt := range opts {
		opt(p)
	}
	if init != nil {
		init(p.Value)
	}

	s.params[name] = p
	s.order = append(s.order, name)

	var penalties Penalties
	if p.Decay != 0 {
		penalties = Penalties{{Param: p, Coeff: p.Decay}}
	}
	return p, penalties, nil
}

// Get 按名称获取参数
func (s *ParameterSet) Get(name string) (*Parameter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.params[name]
	return p, ok
}

// Names 返回按创建顺序排列的参数名
func (s *ParameterSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Params 返回按创建顺序排列的参数
func (s *ParameterSet) Params() []*Parameter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Parameter, len(s.order))
	for i, name := range s.order {
		out[i] = s.params[name]
	}
	return out
}

// Len 返回参数个数
func (s *ParameterSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// NumElements 返回所有参数的元素总数
func (s *ParameterSet) NumElements() int {
	n := 0
	for _, p := range s.Params() {
		n += p.Value.Len()
	}
	return n
}

// Target 返回参数集的默认执行目标
func (s *ParameterSet) Target() string {
	return s.target
}

// ZeroGrad 清零全部梯度
func (s *ParameterSet) ZeroGrad() {
	for _, p := range s.Params() {
		p.Grad.Zero()
	}
}

// =============================================================================
// ⚖️ 权重衰减
// =============================================================================

// PenaltyTerm 单个参数的 L2 正则项：Coeff * sum(w²) / 2
type PenaltyTerm struct {
	Param *Parameter
	Coeff float64
}

// Penalties 显式传递的正则项累加器
type Penalties []PenaltyTerm

// Merge 合并多个累加器
func (p Penalties) Merge(others ...Penalties) Penalties {
	out := append(Penalties(nil), p...)
	for _, o := range others {
		out = append(out, o...)
	}
	return out
}

// Loss 返回正则损失总和
func (p Penalties) Loss() float64 {
	total := 0.0
	for _, term := range p {
		total += term.Coeff * term.Param.Value.SumSquares() / 2
	}
	return total
}

// ApplyGradients 将正则项梯度 Coeff * w 累加到参数梯度
func (p Penalties) ApplyGradients() {
	for _, term := range p {
		term.Param.Grad.AddScaled(term.Coeff, term.Param.Value)
	}
}

// =============================================================================
// 🎲 初始化器
// =============================================================================

// InitFunc 参数初始化函数
type InitFunc func(t *tensor.Tensor)

// Initializer 基于固定种子的初始化器
type Initializer struct {
	rng *rand.Rand
}

// NewInitializer 创建初始化器
func NewInitializer(seed int64) *Initializer {
	return &Initializer{rng: rand.New(rand.NewSource(seed))}
}

// TruncatedNormal 截断正态初始化
func (i *Initializer) TruncatedNormal(stddev float64) InitFunc {
	return func(t *tensor.Tensor) {
		t.FillTruncatedNormal(i.rng, 0, stddev)
	}
}

// Uniform 均匀初始化，取值范围 [-scale, scale)
func (i *Initializer) Uniform(scale float64) InitFunc {
	return func(t *tensor.Tensor) {
		t.FillUniform(i.rng, -scale, scale)
	}
}

// Zeros 零初始化
func Zeros() InitFunc {
	return func(t *tensor.Tensor) {
		t.Zero()
	}
}
