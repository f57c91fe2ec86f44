package dataset

import (
	"context"

	"github.com/BaSui01/videoflow/config"
	"github.com/BaSui01/videoflow/tensor"
	"github.com/BaSui01/videoflow/types"
)

// Input 训练数据输入：每步提供一个批次，并暴露每轮步数、批大小与视频帧数
type Input interface {
	// EpochSize 每轮步数
	EpochSize() int
	// BatchSize 批大小
	BatchSize() int
	// NumSteps 每个视频的帧数
	NumSteps() int
	// Next 返回下一批数据
	Next(ctx context.Context) (*Batch, error)
	// Reset 开始新一轮（epoch 从 0 开始）
	Reset(epoch int)
}

// Batch 一批视频与对齐的标签
type Batch struct {
	// Videos 形状 (batch, num_steps, height, width, channels)
	Videos *tensor.Tensor
	Labels []int
}

// Shape 批次的期望形状
type Shape struct {
	BatchSize  int
	NumSteps   int
	Height     int
	Width      int
	Channels   int
	NumClasses int
}

// ShapeFromConfig 由模型配置得到批次形状
func ShapeFromConfig(cfg config.ModelConfig) Shape {
	return Shape{
		BatchSize:  cfg.BatchSize,
		NumSteps:   cfg.NumSteps,
		Height:     cfg.Height,
		Width:      cfg.Width,
		Channels:   cfg.Channels,
		NumClasses: cfg.NumClasses,
	}
}

// Dims 返回视频张量的期望维度
func (s Shape) Dims() []int {
	return []int{s.BatchSize, s.NumSteps, s.Height, s.Width, s.Channels}
}

func (s Shape) validate() error {
	for _, d := range s.Dims() {
		if d <= 0 {
			return types.NewConfigError("batch shape %v must be positive", s.Dims())
		}
	}
	if s.NumClasses < 2 {
		return types.NewConfigError("num_classes must be at least 2, got %d", s.NumClasses)
	}
	return nil
}

// Check 校验批次形状与标签范围
func (b *Batch) Check(s Shape) error {
	if b == nil || b.Videos == nil {
		return types.NewShapeError("batch has no videos")
	}
	if !b.Videos.HasShape(s.Dims()...) {
		return types.NewShapeError("batch videos have shape %s, expected %s",
			b.Videos, tensor.ShapeString(s.Dims()))
	}
	if len(b.Labels) != s.BatchSize {
		return types.NewShapeError("batch has %d labels for %d videos", len(b.Labels), s.BatchSize)
	}
	for i, l := range b.Labels {
		if l < 0 || l >= s.NumClasses {
			return types.NewShapeError("label %d of video %d out of range [0, %d)", l, i, s.NumClasses)
		}
	}
	return nil
}
