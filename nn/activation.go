package nn

import (
	"math"

	"github.com/BaSui01/videoflow/tensor"
	"github.com/BaSui01/videoflow/types"
)

// ReLU 返回 max(x, 0) 的新张量
func ReLU(x *tensor.Tensor) *tensor.Tensor {
	y := x.Clone()
	d := y.Data()
	for i, v := range d {
		if v < 0 {
			d[i] = 0
		}
	}
	return y
}

// ReLUBackward 按前向输出 y 的正值掩码传递梯度
func ReLUBackward(y, dy *tensor.Tensor) (*tensor.Tensor, error) {
	if !y.SameShape(dy) {
		return nil, types.NewShapeError("relu gradient %s does not match output %s", dy, y)
	}
	dx := dy.Clone()
	d, yd := dx.Data(), y.Data()
	for i := range d {
		if yd[i] <= 0 {
			d[i] = 0
		}
	}
	return dx, nil
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}
