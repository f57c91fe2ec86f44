package nn

import (
	"github.com/BaSui01/videoflow/tensor"
	"github.com/BaSui01/videoflow/types"
)

// Dense 全连接层：y = x·W + b，W 形状 (in, out)
type Dense struct {
	Weight *Parameter
	Bias   *Parameter
}

// NewDense 创建全连接层并校验形状
func NewDense(weight, bias *Parameter) (*Dense, error) {
	if weight.Value.Rank() != 2 {
		return nil, types.NewShapeError("dense weight %s must be rank 2, got %s", weight.Name, weight.Value)
	}
	if !bias.Value.HasShape(weight.Value.Dim(1)) {
		return nil, types.NewShapeError("dense bias %s must have shape [%d], got %s",
			bias.Name, weight.Value.Dim(1), bias.Value)
	}
	return &Dense{Weight: weight, Bias: bias}, nil
}

// InputDim 输入维度
func (l *Dense) InputDim() int { return l.Weight.Value.Dim(0) }

// OutputDim 输出维度
func (l *Dense) OutputDim() int { return l.Weight.Value.Dim(1) }

// Forward 计算 x·W + b，x 形状 (n, in)
func (l *Dense) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Rank() != 2 || x.Dim(1) != l.InputDim() {
		return nil, types.NewShapeError("dense %s expects input (n, %d), got %s", l.Weight.Name, l.InputDim(), x)
	}
	n, in, out := x.Dim(0), l.InputDim(), l.OutputDim()
	y := tensor.New(n, out)
	gemm(false, false, 1, general(n, in, x.Data()), general(in, out, l.Weight.Value.Data()), 0, general(n, out, y.Data()))
	addRowVector(y.Data(), n, out, l.Bias.Value.Data())
	return y, nil
}

// Backward 累加参数梯度并返回 dx
func (l *Dense) Backward(x, dy *tensor.Tensor) (*tensor.Tensor, error) {
	n, in, out := x.Dim(0), l.InputDim(), l.OutputDim()
	if !dy.HasShape(n, out) {
		return nil, types.NewShapeError("dense %s gradient %s does not match output (%d, %d)", l.Weight.Name, dy, n, out)
	}
	gemm(true, false, 1, general(n, in, x.Data()), general(n, out, dy.Data()), 1, general(in, out, l.Weight.Grad.Data()))
	accumulateColumnSums(l.Bias.Grad.Data(), dy.Data(), n, out)

	dx := tensor.New(n, in)
	gemm(false, true, 1, general(n, out, dy.Data()), general(in, out, l.Weight.Value.Data()), 0, general(n, in, dx.Data()))
	return dx, nil
}
