package c3d

import (
	"github.com/BaSui01/videoflow/nn"
	"github.com/BaSui01/videoflow/types"
)

// 默认结构参数
const (
	DefaultEmbeddingDim     = 4096
	DefaultWeightStddev     = 0.04
	DefaultDenseWeightDecay = 0.001
	DefaultKeepProb         = 1.0
)

// convNames 八个卷积层的名称，按前向顺序
var convNames = [8]string{"1", "2", "3a", "3b", "4a", "4b", "5a", "5b"}

// blocks 每个池化前的卷积层下标
var blocks = [5][]int{{0}, {1}, {2, 3}, {4, 5}, {6, 7}}

// poolWindows 五个池化层的窗口 (时间, 高, 宽)，步长与窗口相同
var poolWindows = [5]nn.MaxPool3D{
	{Depth: 1, Height: 2, Width: 2},
	{Depth: 2, Height: 2, Width: 2},
	{Depth: 2, Height: 2, Width: 2},
	{Depth: 2, Height: 2, Width: 2},
	{Depth: 2, Height: 2, Width: 2},
}

// DefaultChannelWidths 返回八个卷积层的默认输出通道数
func DefaultChannelWidths() []int {
	return []int{64, 128, 256, 256, 512, 512, 512, 512}
}

// Config 片段特征提取器配置
type Config struct {
	ClipLength    int
	Height        int
	Width         int
	Channels      int
	ChannelWidths []int
	EmbeddingDim  int

	// DenseInputDim 非零时必须与推导出的展平维度一致
	DenseInputDim int

	WeightStddev     float64
	DenseWeightDecay float64
	KeepProb         float64
	Target           string
	Workers          int
}

// DefaultConfig 返回 16×112×112×3 输入的标准配置
func DefaultConfig() Config {
	return Config{
		ClipLength:       16,
		Height:           112,
		Width:            112,
		Channels:         3,
		ChannelWidths:    DefaultChannelWidths(),
		EmbeddingDim:     DefaultEmbeddingDim,
		WeightStddev:     DefaultWeightStddev,
		DenseWeightDecay: DefaultDenseWeightDecay,
		KeepProb:         DefaultKeepProb,
		Target:           nn.DefaultTarget,
	}
}

// Validate 校验配置，包括展平维度与 DenseInputDim 的一致性
func (c Config) Validate() error {
	if c.ClipLength <= 0 || c.Height <= 0 || c.Width <= 0 || c.Channels <= 0 {
		return types.NewConfigError("clip shape %dx%dx%dx%d must be positive",
			c.ClipLength, c.Height, c.Width, c.Channels)
	}
	if len(c.ChannelWidths) != len(convNames) {
		return types.NewConfigError("channel_widths must list %d widths, got %d", len(convNames), len(c.ChannelWidths))
	}
	for i, w := range c.ChannelWidths {
		if w <= 0 {
			return types.NewConfigError("channel width of conv%s must be positive, got %d", convNames[i], w)
		}
	}
	if c.EmbeddingDim <= 0 {
		return types.NewConfigError("embedding_dim must be positive, got %d", c.EmbeddingDim)
	}
	if c.WeightStddev <= 0 {
		return types.NewConfigError("weight_stddev must be positive, got %g", c.WeightStddev)
	}
	if c.DenseWeightDecay < 0 {
		return types.NewConfigError("dense_weight_decay must not be negative, got %g", c.DenseWeightDecay)
	}
	if c.KeepProb <= 0 || c.KeepProb > 1 {
		return types.NewConfigError("keep_prob must be in (0, 1], got %g", c.KeepProb)
	}
	if c.DenseInputDim != 0 && c.DenseInputDim != c.FlattenedDim() {
		return types.NewConfigError("dense input dim %d does not match flattened pool5 dim %d for %dx%dx%d clips",
			c.DenseInputDim, c.FlattenedDim(), c.ClipLength, c.Height, c.Width)
	}
	return nil
}

// Pool5Shape 返回单个样本 pool5 输出的 (depth, height, width, channels)
func (c Config) Pool5Shape() [4]int {
	shape := []int{1, c.ClipLength, c.Height, c.Width, 1}
	for _, p := range poolWindows {
		shape = p.OutputShape(shape)
	}
	channels := 0
	if len(c.ChannelWidths) == len(convNames) {
		channels = c.ChannelWidths[len(convNames)-1]
	}
	return [4]int{shape[1], shape[2], shape[3], channels}
}

// FlattenedDim 返回 pool5 展平后的维度
func (c Config) FlattenedDim() int {
	s := c.Pool5Shape()
	return s[0] * s[1] * s[2] * s[3]
}
