// Package sequence 在视频与片段序列之间转换：沿时间轴切分片段，并将片段嵌入按顺序组装为序列。
package sequence

import (
	"github.com/BaSui01/videoflow/tensor"
	"github.com/BaSui01/videoflow/types"
)

// timeAxis 视频张量 (batch, time, height, width, channels) 的时间轴
const timeAxis = 1

// EmbeddingSequence 按片段下标排列的嵌入序列，每个元素形状 (batch, embedding_dim)
type EmbeddingSequence struct {
	steps []*tensor.Tensor
}

// Len 序列长度
func (s *EmbeddingSequence) Len() int { return len(s.steps) }

// At 第 i 个位置的嵌入
func (s *EmbeddingSequence) At(i int) *tensor.Tensor { return s.steps[i] }

// Steps 返回全部位置的嵌入
func (s *EmbeddingSequence) Steps() []*tensor.Tensor {
	return append([]*tensor.Tensor(nil), s.steps...)
}

// BatchSize 批大小
func (s *EmbeddingSequence) BatchSize() int { return s.steps[0].Dim(0) }

// EmbeddingDim 嵌入维度
func (s *EmbeddingSequence) EmbeddingDim() int { return s.steps[0].Dim(1) }

// ValidateClipLength 要求 clipLength 为正且整除 videoLength
func ValidateClipLength(videoLength, clipLength int) error {
	if clipLength <= 0 {
		return types.NewConfigError("clip length must be positive, got %d", clipLength)
	}
	if videoLength <= 0 {
		return types.NewConfigError("video length must be positive, got %d", videoLength)
	}
	if videoLength%clipLength != 0 {
		return types.NewConfigError("video length %d is not divisible by clip length %d", videoLength, clipLength)
	}
	return nil
}

// NumClips 返回每个视频切出的片段数
func NumClips(videoLength, clipLength int) (int, error) {
	if err := ValidateClipLength(videoLength, clipLength); err != nil {
		return 0, err
	}
	return videoLength / clipLength, nil
}

// Split 沿时间轴把视频切成连续、不重叠、按时间排序的片段，不截断也不填充
func Split(video *tensor.Tensor, clipLength int) ([]*tensor.Tensor, error) {
	if video.Rank() != 5 {
		return nil, types.NewShapeError("video must be (batch, time, height, width, channels), got %s", video)
	}
	n, err := NumClips(video.Dim(timeAxis), clipLength)
	if err != nil {
		return nil, err
	}
	return tensor.Split(video, timeAxis, n)
}

// Assemble 以片段下标为序列位置组装嵌入，所有嵌入形状必须一致
func Assemble(embeddings []*tensor.Tensor) (*EmbeddingSequence, error) {
	if len(embeddings) == 0 {
		return nil, types.NewShapeError("cannot assemble an empty embedding sequence")
	}
	first := embeddings[0]
	if first.Rank() != 2 {
		return nil, types.NewShapeError("embedding 0 must be (batch, embedding_dim), got %s", first)
	}
	for i, e := range embeddings[1:] {
		if !e.SameShape(first) {
			return nil, types.NewShapeError("embedding %d has shape %s, expected %s", i+1, e, first)
		}
	}
	return &EmbeddingSequence{steps: append([]*tensor.Tensor(nil), embeddings...)}, nil
}
