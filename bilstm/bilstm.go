// Package bilstm 实现片段嵌入序列上的双向 LSTM 分类器。
//
// 前向 LSTM 从 t=0 读到 T-1，后向 LSTM 从 T-1 读到 0；
// 最终表示为 concat(h_fw[T-1], h_bw[0])，经 softmax 头得到每个视频的类别分布。
package bilstm

import (
	"fmt"

	"github.com/BaSui01/videoflow/nn"
	"github.com/BaSui01/videoflow/sequence"
	"github.com/BaSui01/videoflow/tensor"
	"github.com/BaSui01/videoflow/types"
)

// Scope 变量名前缀
const Scope = "bilstm"

// DefaultInitScale 循环层变量的均匀初始化范围
const DefaultInitScale = 0.1

// Config 双向 LSTM 配置
type Config struct {
	InputSize  int
	HiddenSize int
	NumClasses int
	InitScale  float64
	ForgetBias float64
	Target     string
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.InputSize <= 0 {
		return types.NewConfigError("bilstm input size must be positive, got %d", c.InputSize)
	}
	if c.HiddenSize <= 0 {
		return types.NewConfigError("hidden_size must be positive, got %d", c.HiddenSize)
	}
	if c.NumClasses < 2 {
		return types.NewConfigError("num_classes must be at least 2, got %d", c.NumClasses)
	}
	if c.InitScale <= 0 {
		return types.NewConfigError("init_scale must be positive, got %g", c.InitScale)
	}
	return nil
}

// BiLSTM 双向 LSTM + softmax 分类头
type BiLSTM struct {
	cfg  Config
	fw   *nn.LSTMCell
	bw   *nn.LSTMCell
	head *nn.Dense
}

// Result 一次前向的结果；未导出字段保存反向所需的中间量
type Result struct {
	Cost          float64
	Accuracy      float64
	Predictions   []int
	Probabilities *tensor.Tensor

	labels  []int
	fwSteps []*nn.LSTMStep
	bwSteps []*nn.LSTMStep
	final   *tensor.Tensor
}

// New 在 params 中创建前向/后向 LSTM 与 softmax 头的变量
func New(cfg Config, params *nn.ParameterSet, init *nn.Initializer) (*BiLSTM, nn.Penalties, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	uniform := init.Uniform(cfg.InitScale)
	target := nn.WithTarget(cfg.Target)
	E, H, C := cfg.InputSize, cfg.HiddenSize, cfg.NumClasses

	cell := func(dir string) (*nn.LSTMCell, error) {
		k, _, err := params.NewVariable(Scope+"/"+dir+"/kernel", []int{E + H, 4 * H}, uniform, target)
		if err != nil {
			return nil, err
		}
		b, _, err := params.NewVariable(Scope+"/"+dir+"/bias", []int{4 * H}, uniform, target)
		if err != nil {
			return nil, err
		}
		return nn.NewLSTMCell(k, b, E, cfg.ForgetBias)
	}

	fw, err := cell("fw")
	if err != nil {
		return nil, nil, fmt.Errorf("create forward cell: %w", err)
	}
	bw, err := cell("bw")
	if err != nil {
		return nil, nil, fmt.Errorf("create backward cell: %w", err)
	}
	w, _, err := params.NewVariable(Scope+"/softmax_w", []int{2 * H, C}, uniform, target)
	if err != nil {
		return nil, nil, err
	}
	b, _, err := params.NewVariable(Scope+"/softmax_b", []int{C}, uniform, target)
	if err != nil {
		return nil, nil, err
	}
	head, err := nn.NewDense(w, b)
	if err != nil {
		return nil, nil, err
	}
	return &BiLSTM{cfg: cfg, fw: fw, bw: bw, head: head}, nil, nil
}

// Config 返回配置
func (m *BiLSTM) Config() Config { return m.cfg }

// Forward 对序列做双向前向并计算交叉熵与准确率；labels 长度必须等于批大小
func (m *BiLSTM) Forward(seq *sequence.EmbeddingSequence, labels []int) (*Result, error) {
	if seq == nil || seq.Len() == 0 {
		return nil, types.NewShapeError("bilstm requires a non-empty sequence")
	}
	if seq.EmbeddingDim() != m.cfg.InputSize {
		return nil, types.NewShapeError("bilstm expects embedding dim %d, got %d", m.cfg.InputSize, seq.EmbeddingDim())
	}
	B, T := seq.BatchSize(), seq.Len()
	if len(labels) != B {
		return nil, types.NewShapeError("got %d labels for batch of %d", len(labels), B)
	}

	res := &Result{
		labels:  append([]int(nil), labels...),
		fwSteps: make([]*nn.LSTMStep, T),
		bwSteps: make([]*nn.LSTMStep, T),
	}

	h, c := m.fw.ZeroState(B)
	for t := 0; t < T; t++ {
		var err error
		if h, c, res.fwSteps[t], err = m.fw.Step(seq.At(t), h, c); err != nil {
			return nil, fmt.Errorf("forward cell step %d: %w", t, err)
		}
	}
	hFw := h

	h, c = m.bw.ZeroState(B)
	for t := T - 1; t >= 0; t-- {
		var err error
		if h, c, res.bwSteps[t], err = m.bw.Step(seq.At(t), h, c); err != nil {
			return nil, fmt.Errorf("backward cell step %d: %w", t, err)
		}
	}
	hBw := h

	final, err := tensor.Concat([]*tensor.Tensor{hFw, hBw}, 1)
	if err != nil {
		return nil, err
	}
	res.final = final

	logits, err := m.head.Forward(final)
	if err != nil {
		return nil, err
	}
	cost, probs, err := nn.SoftmaxCrossEntropy(logits, labels)
	if err != nil {
		return nil, err
	}
	res.Cost = cost
	res.Probabilities = probs
	res.Predictions = nn.ArgmaxRows(probs)
	res.Accuracy = nn.Accuracy(res.Predictions, labels)
	return res, nil
}

// Backward 沿时间反向传播，累加本模型参数的梯度，返回每个序列位置的嵌入梯度
func (m *BiLSTM) Backward(res *Result) ([]*tensor.Tensor, error) {
	if res == nil || res.final == nil {
		return nil, types.NewError(types.ErrInternalError, "bilstm backward requires a forward result")
	}
	dLogits := nn.SoftmaxCrossEntropyGrad(res.Probabilities, res.labels)
	dFinal, err := m.head.Backward(res.final, dLogits)
	if err != nil {
		return nil, err
	}
	parts, err := tensor.Split(dFinal, 1, 2)
	if err != nil {
		return nil, err
	}

	T := len(res.fwSteps)
	B := dFinal.Dim(0)
	dEmb := make([]*tensor.Tensor, T)
	for t := range dEmb {
		dEmb[t] = tensor.New(B, m.cfg.InputSize)
	}

	dh, dc := parts[0], tensor.New(B, m.cfg.HiddenSize)
	for t := T - 1; t >= 0; t-- {
		dx, dhPrev, dcPrev, err := m.fw.StepBackward(res.fwSteps[t], dh, dc)
		if err != nil {
			return nil, fmt.Errorf("forward cell step %d: %w", t, err)
		}
		dEmb[t].Add(dx)
		dh, dc = dhPrev, dcPrev
	}

	dh, dc = parts[1], tensor.New(B, m.cfg.HiddenSize)
	for t := 0; t < T; t++ {
		dx, dhPrev, dcPrev, err := m.bw.StepBackward(res.bwSteps[t], dh, dc)
		if err != nil {
			return nil, fmt.Errorf("backward cell step %d: %w", t, err)
		}
		dEmb[t].Add(dx)
		dh, dc = dhPrev, dcPrev
	}
	return dEmb, nil
}
