package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/videoflow/types"
)

func TestValidate_MissingFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model.BatchSize = 0
	cfg.Training.LearningRate = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrMissingField))
	assert.Contains(t, err.Error(), "model.batch_size")
	assert.Contains(t, err.Error(), "training.learning_rate")
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"clip length does not divide video", func(c *Config) { c.Model.C3DNumSteps = 3; c.Model.NumSteps = 4 }},
		{"keep prob zero", func(c *Config) { c.Model.KeepProb = 0 }},
		{"negative lr decay", func(c *Config) { c.Training.LRDecay = -0.5 }},
		{"negative grad norm", func(c *Config) { c.Training.MaxGradNorm = -1 }},
		{"zero log interval", func(c *Config) { c.Training.LogEvery = 0 }},
		{"unknown data source", func(c *Config) { c.Data.Source = "webcam" }},
		{"frames without root", func(c *Config) { c.Data.Source = "frames" }},
		{"unknown backend", func(c *Config) { c.Checkpoint.Backend = "s3" }},
		{"unknown database driver", func(c *Config) { c.Database.Enabled = true; c.Database.Driver = "oracle" }},
		{"sample rate above one", func(c *Config) { c.Telemetry.SampleRate = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, types.IsErrorCode(err, types.ErrConfigInvalid))
		})
	}
}

func TestValidate_ZeroLRDecay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Training.LRDecay = 0
	assert.NoError(t, cfg.Validate())
}

func TestModelConfig_NumClips(t *testing.T) {
	m := DefaultModelConfig()
	m.NumSteps, m.C3DNumSteps = 4, 2
	assert.Equal(t, 2, m.NumClips())
	m.C3DNumSteps = 0
	assert.Equal(t, 0, m.NumClips())
}
