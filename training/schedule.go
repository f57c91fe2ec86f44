package training

import "math"

// LearningRate 计算一轮的学习率: base * decay^max(epoch-warmup, 0)。
// epoch 为从 0 开始的轮次下标，前 warmup 轮保持基础学习率。
func LearningRate(base, decay float64, epoch, warmup int) float64 {
	exp := epoch - warmup
	if exp < 0 {
		exp = 0
	}
	return base * math.Pow(decay, float64(exp))
}
