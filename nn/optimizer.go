package nn

import (
	"math"

	"github.com/BaSui01/videoflow/types"
)

// DefaultMaxGradNorm 默认全局梯度范数上限
const DefaultMaxGradNorm = 5.0

// SGD 带全局范数裁剪的随机梯度下降
type SGD struct {
	learningRate float64
	maxGradNorm  float64
}

// NewSGD 创建优化器；maxGradNorm <= 0 时使用默认值
func NewSGD(learningRate, maxGradNorm float64) *SGD {
	if maxGradNorm <= 0 {
		maxGradNorm = DefaultMaxGradNorm
	}
	return &SGD{learningRate: learningRate, maxGradNorm: maxGradNorm}
}

// LearningRate 当前学习率
func (o *SGD) LearningRate() float64 { return o.learningRate }

// SetLearningRate 更新学习率，下一次 Step 生效
func (o *SGD) SetLearningRate(lr float64) { o.learningRate = lr }

// MaxGradNorm 梯度范数上限
func (o *SGD) MaxGradNorm() float64 { return o.maxGradNorm }

// GlobalNorm 返回所有梯度拼接后的 L2 范数
func GlobalNorm(params []*Parameter) float64 {
	sum := 0.0
	for _, p := range params {
		sum += p.Grad.SumSquares()
	}
	return math.Sqrt(sum)
}

// ClipByGlobalNorm 将梯度整体缩放为 g * maxNorm / max(norm, maxNorm)，返回裁剪前的范数
func ClipByGlobalNorm(params []*Parameter, maxNorm float64) float64 {
	norm := GlobalNorm(params)
	if norm > maxNorm {
		scale := maxNorm / norm
		for _, p := range params {
			p.Grad.Scale(scale)
		}
	}
	return norm
}

// Step 裁剪梯度并执行 w -= lr * g，返回裁剪前的全局范数
func (o *SGD) Step(params *ParameterSet) (float64, error) {
	ps := params.Params()
	norm := GlobalNorm(ps)
	if math.IsNaN(norm) || math.IsInf(norm, 0) {
		return norm, types.NewError(types.ErrNumerical, "gradient global norm is not finite")
	}
	ClipByGlobalNorm(ps, o.maxGradNorm)
	for _, p := range ps {
		p.Value.AddScaled(-o.learningRate, p.Grad)
	}
	return norm, nil
}
