package config

import (
	"fmt"
	"strings"

	"github.com/BaSui01/videoflow/types"
)

// Validate 验证配置，汇总所有错误后一次返回
func (c *Config) Validate() error {
	var missing, invalid []string

	m := c.Model
	required := []struct {
		name  string
		value int
	}{
		{"model.batch_size", m.BatchSize},
		{"model.num_steps", m.NumSteps},
		{"model.c3d_num_steps", m.C3DNumSteps},
		{"training.max_max_epoch", c.Training.MaxMaxEpoch},
	}
	for _, r := range required {
		if r.value == 0 {
			missing = append(missing, r.name)
		}
	}
	if c.Training.LearningRate == 0 {
		missing = append(missing, "training.learning_rate")
	}
	if len(missing) > 0 {
		return types.NewError(types.ErrMissingField,
			fmt.Sprintf("missing required config fields: %s", strings.Join(missing, ", ")))
	}

	if err := m.Validate(); err != nil {
		invalid = append(invalid, err.Error())
	}

	t := c.Training
	if t.LearningRate < 0 {
		invalid = append(invalid, "learning_rate must be positive")
	}
	if t.LRDecay < 0 {
		invalid = append(invalid, "lr_decay must not be negative")
	}
	if t.MaxEpoch < 0 || t.MaxMaxEpoch < 0 {
		invalid = append(invalid, "max_epoch and max_max_epoch must not be negative")
	}
	if t.MaxGradNorm <= 0 {
		invalid = append(invalid, "max_grad_norm must be positive")
	}
	if t.LogEvery <= 0 {
		invalid = append(invalid, "log_every must be positive")
	}

	switch c.Data.Source {
	case "synthetic":
		if c.Data.EpochSize <= 0 {
			invalid = append(invalid, "data.epoch_size must be positive for the synthetic source")
		}
	case "frames":
		if c.Data.Root == "" {
			invalid = append(invalid, "data.root is required for the frames source")
		}
	default:
		invalid = append(invalid, fmt.Sprintf("unknown data source %q", c.Data.Source))
	}

	switch c.Checkpoint.Backend {
	case "file", "redis", "memory":
	default:
		invalid = append(invalid, fmt.Sprintf("unknown checkpoint backend %q", c.Checkpoint.Backend))
	}
	if c.Checkpoint.SaveInterval < 0 {
		invalid = append(invalid, "checkpoint.save_interval must not be negative")
	}

	if c.Database.Enabled {
		switch c.Database.Driver {
		case "postgres", "mysql", "sqlite":
		default:
			invalid = append(invalid, fmt.Sprintf("unknown database driver %q", c.Database.Driver))
		}
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		invalid = append(invalid, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(invalid) > 0 {
		return types.NewConfigError("config validation errors: %s", strings.Join(invalid, "; "))
	}
	return nil
}

// Validate 校验模型结构的构造期约束，在分配任何参数之前调用
func (m ModelConfig) Validate() error {
	if m.BatchSize <= 0 {
		return types.NewConfigError("batch_size must be positive, got %d", m.BatchSize)
	}
	if m.C3DNumSteps <= 0 {
		return types.NewConfigError("c3d_num_steps must be positive, got %d", m.C3DNumSteps)
	}
	if m.NumSteps <= 0 || m.NumSteps%m.C3DNumSteps != 0 {
		return types.NewConfigError("num_steps %d is not divisible by c3d_num_steps %d", m.NumSteps, m.C3DNumSteps)
	}
	if m.Height <= 0 || m.Width <= 0 || m.Channels <= 0 {
		return types.NewConfigError("frame shape %dx%dx%d must be positive", m.Height, m.Width, m.Channels)
	}
	if m.HiddenSize <= 0 || m.NumClasses < 2 || m.EmbeddingDim <= 0 {
		return types.NewConfigError("hidden_size, embedding_dim must be positive and num_classes at least 2")
	}
	if m.KeepProb <= 0 || m.KeepProb > 1 {
		return types.NewConfigError("keep_prob must be in (0, 1], got %g", m.KeepProb)
	}
	if m.InitScale <= 0 {
		return types.NewConfigError("init_scale must be positive, got %g", m.InitScale)
	}
	return nil
}

// NumClips 每个视频切出的片段数
func (m ModelConfig) NumClips() int {
	if m.C3DNumSteps <= 0 {
		return 0
	}
	return m.NumSteps / m.C3DNumSteps
}
