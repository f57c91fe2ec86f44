package nn

import (
	"math"

	"github.com/BaSui01/videoflow/tensor"
	"github.com/BaSui01/videoflow/types"
)

// DefaultForgetBias 遗忘门的默认偏置
const DefaultForgetBias = 1.0

// LSTMCell 基础 LSTM 单元。
// kernel 形状 (input+hidden, 4*hidden)，门的列顺序为 i, j, f, o：
//
//	c' = c * σ(f + forget_bias) + σ(i) * tanh(j)
//	h' = tanh(c') * σ(o)
type LSTMCell struct {
	Kernel     *Parameter
	Bias       *Parameter
	InputSize  int
	Hidden     int
	ForgetBias float64
}

// NewLSTMCell 创建 LSTM 单元并校验形状
func NewLSTMCell(kernel, bias *Parameter, inputSize int, forgetBias float64) (*LSTMCell, error) {
	if kernel.Value.Rank() != 2 || kernel.Value.Dim(1)%4 != 0 {
		return nil, types.NewShapeError("lstm kernel %s must be (input+hidden, 4*hidden), got %s", kernel.Name, kernel.Value)
	}
	hidden := kernel.Value.Dim(1) / 4
	if kernel.Value.Dim(0) != inputSize+hidden {
		return nil, types.NewShapeError("lstm kernel %s expects %d rows, got %s", kernel.Name, inputSize+hidden, kernel.Value)
	}
	if !bias.Value.HasShape(4 * hidden) {
		return nil, types.NewShapeError("lstm bias %s must have shape [%d], got %s", bias.Name, 4*hidden, bias.Value)
	}
	return &LSTMCell{
		Kernel:     kernel,
		Bias:       bias,
		InputSize:  inputSize,
		Hidden:     hidden,
		ForgetBias: forgetBias,
	}, nil
}

// LSTMStep 单步前向的中间结果
type LSTMStep struct {
	batch      int
	xh         []float64
	i, j, f, o []float64
	cPrev      []float64
	tanhC      []float64
}

// ZeroState 返回全零的 (h, c)
func (l *LSTMCell) ZeroState(batch int) (*tensor.Tensor, *tensor.Tensor) {
	return tensor.New(batch, l.Hidden), tensor.New(batch, l.Hidden)
}

// Step 执行一步前向：输入 x (batch, input)，状态 h、c (batch, hidden)
func (l *LSTMCell) Step(x, h, c *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, *LSTMStep, error) {
	if x.Rank() != 2 || x.Dim(1) != l.InputSize {
		return nil, nil, nil, types.NewShapeError("lstm %s expects input (batch, %d), got %s", l.Kernel.Name, l.InputSize, x)
	}
	B, H, in := x.Dim(0), l.Hidden, l.InputSize
	if !h.HasShape(B, H) || !c.HasShape(B, H) {
		return nil, nil, nil, types.NewShapeError("lstm %s state must be (%d, %d), got h=%s c=%s", l.Kernel.Name, B, H, h, c)
	}

	width := in + H
	xh := make([]float64, B*width)
	for b := 0; b < B; b++ {
		copy(xh[b*width:], x.Data()[b*in:(b+1)*in])
		copy(xh[b*width+in:], h.Data()[b*H:(b+1)*H])
	}

	z := make([]float64, B*4*H)
	gemm(false, false, 1, general(B, width, xh), general(width, 4*H, l.Kernel.Value.Data()), 0, general(B, 4*H, z))
	addRowVector(z, B, 4*H, l.Bias.Value.Data())

	step := &LSTMStep{
		batch: B,
		xh:    xh,
		i:     make([]float64, B*H),
		j:     make([]float64, B*H),
		f:     make([]float64, B*H),
		o:     make([]float64, B*H),
		cPrev: append([]float64(nil), c.Data()...),
		tanhC: make([]float64, B*H),
	}
	hNext := tensor.New(B, H)
	cNext := tensor.New(B, H)
	hd, cd := hNext.Data(), cNext.Data()
	for b := 0; b < B; b++ {
		row := z[b*4*H : (b+1)*4*H]
		for k := 0; k < H; k++ {
			idx := b*H + k
			ig := sigmoid(row[k])
			jg := math.Tanh(row[H+k])
			fg := sigmoid(row[2*H+k] + l.ForgetBias)
			og := sigmoid(row[3*H+k])
			cv := step.cPrev[idx]*fg + ig*jg
			tc := math.Tanh(cv)

			step.i[idx], step.j[idx], step.f[idx], step.o[idx] = ig, jg, fg, og
			step.tanhC[idx] = tc
			cd[idx] = cv
			hd[idx] = tc * og
		}
	}
	return hNext, cNext, step, nil
}

// StepBackward 反向一步：给定对 h'、c' 的梯度，累加参数梯度并返回 (dx, dh, dc)
func (l *LSTMCell) StepBackward(step *LSTMStep, dh, dc *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, *tensor.Tensor, error) {
	B, H, in := step.batch, l.Hidden, l.InputSize
	if !dh.HasShape(B, H) || !dc.HasShape(B, H) {
		return nil, nil, nil, types.NewShapeError("lstm %s state gradient must be (%d, %d)", l.Kernel.Name, B, H)
	}

	dz := make([]float64, B*4*H)
	dcPrev := tensor.New(B, H)
	dhd, dcd, dcp := dh.Data(), dc.Data(), dcPrev.Data()
	for b := 0; b < B; b++ {
		row := dz[b*4*H : (b+1)*4*H]
		for k := 0; k < H; k++ {
			idx := b*H + k
			ig, jg, fg, og := step.i[idx], step.j[idx], step.f[idx], step.o[idx]
			tc := step.tanhC[idx]

			dcTotal := dcd[idx] + dhd[idx]*og*(1-tc*tc)
			row[k] = dcTotal * jg * ig * (1 - ig)
			row[H+k] = dcTotal * ig * (1 - jg*jg)
			row[2*H+k] = dcTotal * step.cPrev[idx] * fg * (1 - fg)
			row[3*H+k] = dhd[idx] * tc * og * (1 - og)
			dcp[idx] = dcTotal * fg
		}
	}

	width := in + H
	gemm(true, false, 1, general(B, width, step.xh), general(B, 4*H, dz), 1, general(width, 4*H, l.Kernel.Grad.Data()))
	accumulateColumnSums(l.Bias.Grad.Data(), dz, B, 4*H)

	dxh := make([]float64, B*width)
	gemm(false, true, 1, general(B, 4*H, dz), general(width, 4*H, l.Kernel.Value.Data()), 0, general(B, width, dxh))

	dx := tensor.New(B, in)
	dhPrev := tensor.New(B, H)
	for b := 0; b < B; b++ {
		copy(dx.Data()[b*in:(b+1)*in], dxh[b*width:b*width+in])
		copy(dhPrev.Data()[b*H:(b+1)*H], dxh[b*width+in:(b+1)*width])
	}
	return dx, dhPrev, dcPrev, nil
}
