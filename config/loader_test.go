// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/videoflow/types"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// 验证模型默认值
	assert.Equal(t, 32, cfg.Model.NumSteps)
	assert.Equal(t, 16, cfg.Model.C3DNumSteps)
	assert.Equal(t, 2, cfg.Model.NumClips())
	assert.Equal(t, []int{64, 128, 256, 256, 512, 512, 512, 512}, cfg.Model.ChannelWidths)
	assert.Equal(t, 8192, cfg.Model.DenseInputDim)
	assert.Equal(t, 1.0, cfg.Model.KeepProb)
	assert.Equal(t, "cpu:0", cfg.Model.Target)

	// 验证训练默认值
	assert.Equal(t, 5.0, cfg.Training.MaxGradNorm)
	assert.Equal(t, 10, cfg.Training.LogEvery)

	// 验证检查点默认值
	assert.Equal(t, "file", cfg.Checkpoint.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Checkpoint.SaveInterval)
	assert.True(t, cfg.Checkpoint.Restore)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	require.NoError(t, cfg.Validate())
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 10, cfg.Model.BatchSize)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
model:
  batch_size: 1
  num_steps: 4
  c3d_num_steps: 2
  height: 4
  width: 4
  channel_widths: [2, 2, 2, 2, 2, 2, 2, 2]
  embedding_dim: 8
  dense_input_dim: 0

training:
  learning_rate: 0.5
  max_max_epoch: 2
  verbose: false

checkpoint:
  save_path: "/tmp/videoflow/model"
  backend: "memory"
  save_interval: 30s

log:
  level: "debug"
  format: "console"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	// 验证 YAML 值覆盖了默认值
	assert.Equal(t, 1, cfg.Model.BatchSize)
	assert.Equal(t, 4, cfg.Model.NumSteps)
	assert.Equal(t, []int{2, 2, 2, 2, 2, 2, 2, 2}, cfg.Model.ChannelWidths)
	assert.Equal(t, 0.5, cfg.Training.LearningRate)
	assert.False(t, cfg.Training.Verbose)
	assert.Equal(t, "memory", cfg.Checkpoint.Backend)
	assert.Equal(t, 30*time.Second, cfg.Checkpoint.SaveInterval)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 未出现在 YAML 中的字段保留默认值
	assert.Equal(t, 3, cfg.Model.Channels)
	assert.Equal(t, 0.5, cfg.Training.LRDecay)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("VIDEOFLOW_MODEL_BATCH_SIZE", "3")
	t.Setenv("VIDEOFLOW_MODEL_CHANNEL_WIDTHS", "4, 4, 8, 8, 8, 8, 8, 8")
	t.Setenv("VIDEOFLOW_TRAINING_LEARNING_RATE", "0.25")
	t.Setenv("VIDEOFLOW_CHECKPOINT_SAVE_INTERVAL", "1m")
	t.Setenv("VIDEOFLOW_LOG_OUTPUT_PATHS", "stdout, /tmp/train.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Model.BatchSize)
	assert.Equal(t, []int{4, 4, 8, 8, 8, 8, 8, 8}, cfg.Model.ChannelWidths)
	assert.Equal(t, 0.25, cfg.Training.LearningRate)
	assert.Equal(t, time.Minute, cfg.Checkpoint.SaveInterval)
	assert.Equal(t, []string{"stdout", "/tmp/train.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("model:\n  batch_size: 7\n"), 0644))
	t.Setenv("VIDEOFLOW_MODEL_BATCH_SIZE", "9")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Model.BatchSize)
}

func TestLoader_CustomPrefix(t *testing.T) {
	t.Setenv("VF_MODEL_HIDDEN_SIZE", "32")
	cfg, err := NewLoader().WithEnvPrefix("VF").Load()
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Model.HiddenSize)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("VIDEOFLOW_MODEL_BATCH_SIZE", "many")
	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Model.BatchSize)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("model: [unclosed"), 0644))
	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

func TestLoader_WithValidator(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("model:\n  c3d_num_steps: 3\n  num_steps: 4\n"), 0644))

	_, err := NewLoader().
		WithConfigPath(configPath).
		WithValidator(func(c *Config) error { return c.Validate() }).
		Load()
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err))
}

func TestLoader_ErrorsAreConfigErrors(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("model: [unclosed"), 0644))
	_, err := NewLoader().WithConfigPath(configPath).Load()
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrConfigInvalid))

	t.Setenv("VIDEOFLOW_MODEL_CHANNEL_WIDTHS", "4,x")
	_, err = NewLoader().Load()
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err))
	assert.Contains(t, err.Error(), "VIDEOFLOW_MODEL_CHANNEL_WIDTHS")
}

func TestLoader_EmptyEnvIgnored(t *testing.T) {
	t.Setenv("VIDEOFLOW_MODEL_BATCH_SIZE", "")
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Model.BatchSize, cfg.Model.BatchSize)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{"postgres", "host=db port=5432 user=u password=p dbname=runs sslmode=disable"},
		{"mysql", "u:p@tcp(db:5432)/runs?parseTime=true"},
		{"sqlite", "runs"},
		{"oracle", ""},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d := DatabaseConfig{Driver: tt.driver, Host: "db", Port: 5432, User: "u", Password: "p", Name: "runs", SSLMode: "disable"}
			assert.Equal(t, tt.want, d.DSN())
		})
	}
}
