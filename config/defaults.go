// =============================================================================
// 📦 VideoFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Model:      DefaultModelConfig(),
		Training:   DefaultTrainingConfig(),
		Data:       DefaultDataConfig(),
		Checkpoint: DefaultCheckpointConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
		Metrics:    DefaultMetricsConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultModelConfig 返回默认模型配置（16 帧 112×112 RGB 片段）
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		BatchSize:        10,
		NumSteps:         32,
		C3DNumSteps:      16,
		Height:           112,
		Width:            112,
		Channels:         3,
		ChannelWidths:    []int{64, 128, 256, 256, 512, 512, 512, 512},
		EmbeddingDim:     4096,
		DenseInputDim:    8192,
		HiddenSize:       200,
		NumClasses:       101,
		KeepProb:         1.0,
		InitScale:        0.1,
		WeightStddev:     0.04,
		DenseWeightDecay: 0.001,
		Target:           "cpu:0",
		Workers:          0,
		Seed:             1,
	}
}

// DefaultTrainingConfig 返回默认训练配置
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		LearningRate: 1.0,
		LRDecay:      0.5,
		MaxEpoch:     4,
		MaxMaxEpoch:  13,
		MaxGradNorm:  5,
		LogEvery:     10,
		Verbose:      true,
	}
}

// DefaultDataConfig 返回默认数据源配置
func DefaultDataConfig() DataConfig {
	return DataConfig{
		Source:    "synthetic",
		Root:      "",
		EpochSize: 100,
		Shuffle:   true,
		Seed:      1,
	}
}

// DefaultCheckpointConfig 返回默认检查点配置
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		SavePath:     "",
		Backend:      "file",
		SaveInterval: 10 * time.Minute,
		Restore:      true,
		MaxToKeep:    5,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "videoflow:checkpoint",
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "videoflow",
		Password:        "",
		Name:            "videoflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:         true,
		Namespace:       "videoflow",
		Addr:            "",
		ShutdownTimeout: 5 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "videoflow",
		SampleRate:   0.1,
	}
}
