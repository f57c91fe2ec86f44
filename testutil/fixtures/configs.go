// Package fixtures 提供测试用的小尺寸配置。
package fixtures

import (
	"time"

	"github.com/BaSui01/videoflow/config"
)

// TinyModelConfig 返回 4 帧 4×4 RGB 视频、每个视频两个 2 帧片段的小模型配置
func TinyModelConfig() config.ModelConfig {
	cfg := config.DefaultModelConfig()
	cfg.BatchSize = 1
	cfg.NumSteps = 4
	cfg.C3DNumSteps = 2
	cfg.Height = 4
	cfg.Width = 4
	cfg.Channels = 3
	cfg.ChannelWidths = []int{2, 2, 2, 2, 2, 2, 2, 2}
	cfg.EmbeddingDim = 6
	cfg.DenseInputDim = 0
	cfg.HiddenSize = 3
	cfg.NumClasses = 2
	cfg.WeightStddev = 0.3
	cfg.Workers = 2
	return cfg
}

// TinyConfig 返回使用合成数据、内存检查点、关闭指标端口的完整配置
func TinyConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Model = TinyModelConfig()
	cfg.Training.LearningRate = 0.1
	cfg.Training.MaxEpoch = 1
	cfg.Training.MaxMaxEpoch = 2
	cfg.Training.LogEvery = 1
	cfg.Data.Source = "synthetic"
	cfg.Data.EpochSize = 2
	cfg.Checkpoint.Backend = "memory"
	cfg.Checkpoint.SaveInterval = time.Hour
	cfg.Metrics.Enabled = false
	cfg.Log.Level = "debug"
	return cfg
}
