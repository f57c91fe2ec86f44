package dataset

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/BaSui01/videoflow/tensor"
	"github.com/BaSui01/videoflow/types"
)

// Synthetic 由种子确定的随机视频数据源。
// 每个视频的像素为均匀噪声叠加与标签相关的亮度偏移，模型可以从中学到类别。
type Synthetic struct {
	shape     Shape
	epochSize int
	seed      int64
	rng       *rand.Rand
	step      int
}

var _ Input = (*Synthetic)(nil)

// NewSynthetic 创建合成数据源
func NewSynthetic(shape Shape, epochSize int, seed int64) (*Synthetic, error) {
	if err := shape.validate(); err != nil {
		return nil, err
	}
	if epochSize <= 0 {
		return nil, types.NewConfigError("epoch_size must be positive, got %d", epochSize)
	}
	s := &Synthetic{shape: shape, epochSize: epochSize, seed: seed}
	s.Reset(0)
	return s, nil
}

func (s *Synthetic) EpochSize() int { return s.epochSize }
func (s *Synthetic) BatchSize() int { return s.shape.BatchSize }
func (s *Synthetic) NumSteps() int  { return s.shape.NumSteps }

// Reset 以 seed+epoch 重新播种，同一轮的批次序列可复现
func (s *Synthetic) Reset(epoch int) {
	s.rng = rand.New(rand.NewSource(s.seed + int64(epoch)))
	s.step = 0
}

// Next 生成下一批；超过 EpochSize 步后返回 DATA_SOURCE 错误
func (s *Synthetic) Next(ctx context.Context) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.step >= s.epochSize {
		return nil, types.NewError(types.ErrDataSource,
			fmt.Sprintf("synthetic epoch exhausted after %d steps", s.epochSize))
	}
	s.step++

	videos := tensor.New(s.shape.Dims()...)
	labels := make([]int, s.shape.BatchSize)
	per := videos.Len() / s.shape.BatchSize
	data := videos.Data()
	for b := range labels {
		labels[b] = s.rng.Intn(s.shape.NumClasses)
		offset := 0.5 * float64(labels[b]) / float64(s.shape.NumClasses-1)
		for i := b * per; i < (b+1)*per; i++ {
			data[i] = 0.5*s.rng.Float64() + offset
		}
	}
	return &Batch{Videos: videos, Labels: labels}, nil
}
