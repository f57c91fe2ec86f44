package nn

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/videoflow/tensor"
	"github.com/BaSui01/videoflow/types"
)

func randomTensor(rng *rand.Rand, shape ...int) *tensor.Tensor {
	x := tensor.New(shape...)
	x.FillUniform(rng, -1, 1)
	return x
}

// dot 返回 sum(a * b)，作为梯度检查的标量目标
func dot(a, b *tensor.Tensor) float64 {
	s := 0.0
	for i, v := range a.Data() {
		s += v * b.Data()[i]
	}
	return s
}

// numericGrad 以中心差分估计 f 对 x 第 i 个元素的导数
func numericGrad(x *tensor.Tensor, i int, f func() float64) float64 {
	const eps = 1e-5
	orig := x.Data()[i]
	x.Data()[i] = orig + eps
	plus := f()
	x.Data()[i] = orig - eps
	minus := f()
	x.Data()[i] = orig
	return (plus - minus) / (2 * eps)
}

func newConv(t *testing.T, rng *rand.Rand, cin, cout int) *Conv3D {
	t.Helper()
	ps := NewParameterSet("")
	w, _, err := ps.NewVariable("conv/w", []int{3, 3, 3, cin, cout}, func(x *tensor.Tensor) { x.FillUniform(rng, -0.5, 0.5) })
	require.NoError(t, err)
	b, _, err := ps.NewVariable("conv/b", []int{cout}, func(x *tensor.Tensor) { x.FillUniform(rng, -0.5, 0.5) })
	require.NoError(t, err)
	conv, err := NewConv3D(w, b)
	require.NoError(t, err)
	return conv
}

// naiveConv3D 直接按定义计算 SAME 卷积
func naiveConv3D(x *tensor.Tensor, c *Conv3D) *tensor.Tensor {
	B, D, H, W, Cin := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3), x.Dim(4)
	Cout := c.Weight.Value.Dim(4)
	out := tensor.New(B, D, H, W, Cout)
	for b := 0; b < B; b++ {
		for d := 0; d < D; d++ {
			for h := 0; h < H; h++ {
				for w := 0; w < W; w++ {
					for co := 0; co < Cout; co++ {
						s := c.Bias.Value.At(co)
						for a := 0; a < 3; a++ {
							for bb := 0; bb < 3; bb++ {
								for cc := 0; cc < 3; cc++ {
									id, ih, iw := d+a-1, h+bb-1, w+cc-1
									if id < 0 || id >= D || ih < 0 || ih >= H || iw < 0 || iw >= W {
										continue
									}
									for ci := 0; ci < Cin; ci++ {
										s += x.At(b, id, ih, iw, ci) * c.Weight.Value.At(a, bb, cc, ci, co)
									}
								}
							}
						}
						out.Set(s, b, d, h, w, co)
					}
				}
			}
		}
	}
	return out
}

func TestConv3D_ForwardMatchesDirectConvolution(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	conv := newConv(t, rng, 2, 3)
	x := randomTensor(rng, 2, 3, 4, 5, 2)

	got, err := conv.Forward(context.Background(), x)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4, 5, 3}, got.Shape())
	assert.True(t, tensor.AllClose(naiveConv3D(x, conv), got, 1e-10))
}

func TestConv3D_ChannelMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	conv := newConv(t, rng, 2, 3)
	_, err := conv.Forward(context.Background(), tensor.New(1, 2, 2, 2, 4))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrShapeMismatch))
}

func TestConv3D_ForwardCanceled(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	conv := newConv(t, rng, 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := conv.Forward(ctx, tensor.New(1, 2, 2, 2, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConv3D_BackwardGradientCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	conv := newConv(t, rng, 2, 2)
	x := randomTensor(rng, 2, 2, 3, 3, 2)
	r := randomTensor(rng, 2, 2, 3, 3, 2)
	ctx := context.Background()

	loss := func() float64 {
		y, err := conv.Forward(ctx, x)
		require.NoError(t, err)
		return dot(y, r)
	}

	dx, err := conv.Backward(ctx, x, r)
	require.NoError(t, err)

	for _, i := range []int{0, 7, 19, x.Len() - 1} {
		assert.InDelta(t, numericGrad(x, i, loss), dx.Data()[i], 1e-6, "dx[%d]", i)
	}
	for _, i := range []int{0, 13, conv.Weight.Value.Len() - 1} {
		assert.InDelta(t, numericGrad(conv.Weight.Value, i, loss), conv.Weight.Grad.Data()[i], 1e-6, "dW[%d]", i)
	}
	for i := 0; i < conv.Bias.Value.Len(); i++ {
		assert.InDelta(t, numericGrad(conv.Bias.Value, i, loss), conv.Bias.Grad.Data()[i], 1e-6, "db[%d]", i)
	}
}

func TestConv3D_WorkerCountDoesNotChangeResult(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	conv := newConv(t, rng, 1, 2)
	x := randomTensor(rng, 4, 2, 3, 3, 1)
	r := randomTensor(rng, 4, 2, 3, 3, 2)
	ctx := context.Background()

	conv.Workers = 1
	y1, err := conv.Forward(ctx, x)
	require.NoError(t, err)
	dx1, err := conv.Backward(ctx, x, r)
	require.NoError(t, err)
	grad1 := conv.Weight.Grad.Clone()

	conv.Weight.Grad.Zero()
	conv.Bias.Grad.Zero()
	conv.Workers = 4
	y4, err := conv.Forward(ctx, x)
	require.NoError(t, err)
	dx4, err := conv.Backward(ctx, x, r)
	require.NoError(t, err)

	assert.True(t, tensor.Equal(y1, y4))
	assert.True(t, tensor.Equal(dx1, dx4))
	assert.True(t, tensor.Equal(grad1, conv.Weight.Grad))
}

func TestMaxPool3D_SamePadding(t *testing.T) {
	out, before := samePadding(3, 2)
	assert.Equal(t, 2, out)
	assert.Equal(t, 0, before)

	out, before = samePadding(5, 4)
	assert.Equal(t, 2, out)
	assert.Equal(t, 1, before)

	out, before = samePadding(4, 1)
	assert.Equal(t, 4, out)
	assert.Equal(t, 0, before)

	p := MaxPool3D{Depth: 2, Height: 2, Width: 2}
	assert.Equal(t, []int{1, 8, 56, 56, 64}, p.OutputShape([]int{1, 16, 112, 112, 64}))
	assert.Equal(t, []int{1, 1, 4, 4, 512}, p.OutputShape([]int{1, 1, 7, 7, 512}))
}

func TestMaxPool3D_ForwardBackward(t *testing.T) {
	x, err := tensor.FromData([]float64{
		1, 5, 3,
		4, 2, 6,
	}, 1, 1, 2, 3, 1)
	require.NoError(t, err)

	p := MaxPool3D{Depth: 1, Height: 2, Width: 2}
	y, trace, err := p.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1, 2, 1}, y.Shape())
	assert.Equal(t, []float64{5, 6}, y.Data())

	dy, _ := tensor.FromData([]float64{10, 20}, 1, 1, 1, 2, 1)
	dx, err := p.Backward(trace, dy)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 10, 0, 0, 0, 20}, dx.Data())
}

func TestReLU(t *testing.T) {
	x, _ := tensor.FromData([]float64{-1, 0, 2}, 3)
	y := ReLU(x)
	assert.Equal(t, []float64{0, 0, 2}, y.Data())

	dy, _ := tensor.FromData([]float64{1, 1, 1}, 3)
	dx, err := ReLUBackward(y, dy)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1}, dx.Data())
}

func TestDense_GradientCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	ps := NewParameterSet("")
	init := func(x *tensor.Tensor) { x.FillUniform(rng, -1, 1) }
	w, _, _ := ps.NewVariable("w", []int{4, 3}, init)
	b, _, _ := ps.NewVariable("b", []int{3}, init)
	layer, err := NewDense(w, b)
	require.NoError(t, err)

	x := randomTensor(rng, 2, 4)
	r := randomTensor(rng, 2, 3)
	loss := func() float64 {
		y, err := layer.Forward(x)
		require.NoError(t, err)
		return dot(y, r)
	}
	dx, err := layer.Backward(x, r)
	require.NoError(t, err)

	for i := 0; i < x.Len(); i++ {
		assert.InDelta(t, numericGrad(x, i, loss), dx.Data()[i], 1e-7)
	}
	for i := 0; i < w.Value.Len(); i++ {
		assert.InDelta(t, numericGrad(w.Value, i, loss), w.Grad.Data()[i], 1e-7)
	}

	_, err = layer.Forward(tensor.New(2, 5))
	assert.Error(t, err)
}

func TestLSTMCell_GradientCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	ps := NewParameterSet("")
	init := func(x *tensor.Tensor) { x.FillUniform(rng, -0.5, 0.5) }
	const in, hidden, batch = 3, 2, 2
	k, _, _ := ps.NewVariable("k", []int{in + hidden, 4 * hidden}, init)
	b, _, _ := ps.NewVariable("b", []int{4 * hidden}, init)
	cell, err := NewLSTMCell(k, b, in, DefaultForgetBias)
	require.NoError(t, err)

	x := randomTensor(rng, batch, in)
	h0 := randomTensor(rng, batch, hidden)
	c0 := randomTensor(rng, batch, hidden)
	rh := randomTensor(rng, batch, hidden)
	rc := randomTensor(rng, batch, hidden)

	loss := func() float64 {
		h, c, _, err := cell.Step(x, h0, c0)
		require.NoError(t, err)
		return dot(h, rh) + dot(c, rc)
	}

	_, _, step, err := cell.Step(x, h0, c0)
	require.NoError(t, err)
	dx, dh, dc, err := cell.StepBackward(step, rh, rc)
	require.NoError(t, err)

	for i := 0; i < x.Len(); i++ {
		assert.InDelta(t, numericGrad(x, i, loss), dx.Data()[i], 1e-7, "dx[%d]", i)
	}
	for i := 0; i < h0.Len(); i++ {
		assert.InDelta(t, numericGrad(h0, i, loss), dh.Data()[i], 1e-7, "dh[%d]", i)
		assert.InDelta(t, numericGrad(c0, i, loss), dc.Data()[i], 1e-7, "dc[%d]", i)
	}
	for i := 0; i < k.Value.Len(); i++ {
		assert.InDelta(t, numericGrad(k.Value, i, loss), k.Grad.Data()[i], 1e-7, "dK[%d]", i)
	}
	for i := 0; i < b.Value.Len(); i++ {
		assert.InDelta(t, numericGrad(b.Value, i, loss), b.Grad.Data()[i], 1e-7, "db[%d]", i)
	}
}

func TestLSTMCell_ZeroInputKeepsForgetBias(t *testing.T) {
	ps := NewParameterSet("")
	k, _, _ := ps.NewVariable("k", []int{2, 4}, nil)
	b, _, _ := ps.NewVariable("b", []int{4}, nil)
	cell, err := NewLSTMCell(k, b, 1, DefaultForgetBias)
	require.NoError(t, err)

	c0, _ := tensor.FromData([]float64{2}, 1, 1)
	_, c, _, err := cell.Step(tensor.New(1, 1), tensor.New(1, 1), c0)
	require.NoError(t, err)
	// 所有预激活为 0：c' = 2 * σ(1) + 0.5 * tanh(0)
	assert.InDelta(t, 2*sigmoid(1), c.At(0, 0), 1e-12)
}

func TestSoftmaxCrossEntropy(t *testing.T) {
	logits, _ := tensor.FromData([]float64{0, 0, 1000, 0}, 2, 2)
	loss, probs, err := SoftmaxCrossEntropy(logits, []int{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, math.Log(2)/2, loss, 1e-9)
	assert.InDelta(t, 0.5, probs.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, probs.At(1, 0), 1e-12)

	grad := SoftmaxCrossEntropyGrad(probs, []int{1, 0})
	assert.InDelta(t, 0.25, grad.At(0, 0), 1e-12)
	assert.InDelta(t, -0.25, grad.At(0, 1), 1e-12)

	assert.Equal(t, []int{0, 0}, ArgmaxRows(logits))
	assert.Equal(t, 0.5, Accuracy([]int{0, 0}, []int{1, 0}))

	_, _, err = SoftmaxCrossEntropy(logits, []int{2, 0})
	assert.Error(t, err)
	_, _, err = SoftmaxCrossEntropy(logits, []int{0})
	assert.Error(t, err)
}

func TestSGD_ClipsByGlobalNorm(t *testing.T) {
	ps := NewParameterSet("")
	a, _, _ := ps.NewVariable("a", []int{1}, nil)
	b, _, _ := ps.NewVariable("b", []int{1}, nil)
	a.Grad.Data()[0] = 6
	b.Grad.Data()[0] = 8

	opt := NewSGD(0.5, 5)
	norm, err := opt.Step(ps)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, norm, 1e-12)
	// 梯度缩放到范数 5：(3, 4)
	assert.InDelta(t, -1.5, a.Value.At(0), 1e-12)
	assert.InDelta(t, -2.0, b.Value.At(0), 1e-12)

	ps.ZeroGrad()
	a.Grad.Data()[0] = 1
	_, err = opt.Step(ps)
	require.NoError(t, err)
	assert.InDelta(t, -2.0, a.Value.At(0), 1e-12)
}

func TestSGD_RejectsNonFiniteGradients(t *testing.T) {
	ps := NewParameterSet("")
	a, _, _ := ps.NewVariable("a", []int{1}, nil)
	a.Grad.Data()[0] = math.NaN()

	_, err := NewSGD(1, 0).Step(ps)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrNumerical))
	assert.Equal(t, 0.0, a.Value.At(0))
}
