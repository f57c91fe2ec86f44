package config

import (
	"fmt"
	"time"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 VideoFlow 的完整配置结构
type Config struct {
	// Model 模型结构配置
	Model ModelConfig `yaml:"model" env:"MODEL"`

	// Training 训练过程配置
	Training TrainingConfig `yaml:"training" env:"TRAINING"`

	// Data 数据源配置
	Data DataConfig `yaml:"data" env:"DATA"`

	// Checkpoint 检查点配置
	Checkpoint CheckpointConfig `yaml:"checkpoint" env:"CHECKPOINT"`

	// Redis 检查点后端配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 训练历史数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ModelConfig 模型结构配置
type ModelConfig struct {
	// 批大小
	BatchSize int `yaml:"batch_size" env:"BATCH_SIZE"`
	// 视频帧数（video_length）
	NumSteps int `yaml:"num_steps" env:"NUM_STEPS"`
	// 片段帧数（clip_length），必须整除 NumSteps
	C3DNumSteps int `yaml:"c3d_num_steps" env:"C3D_NUM_STEPS"`
	// 帧高
	Height int `yaml:"height" env:"HEIGHT"`
	// 帧宽
	Width int `yaml:"width" env:"WIDTH"`
	// 通道数
	Channels int `yaml:"channels" env:"CHANNELS"`
	// 八个卷积层的输出通道数
	ChannelWidths []int `yaml:"channel_widths" env:"CHANNEL_WIDTHS"`
	// 片段嵌入维度
	EmbeddingDim int `yaml:"embedding_dim" env:"EMBEDDING_DIM"`
	// 全连接层输入维度，0 表示由输入尺寸推导
	DenseInputDim int `yaml:"dense_input_dim" env:"DENSE_INPUT_DIM"`
	// LSTM 隐藏单元数
	HiddenSize int `yaml:"hidden_size" env:"HIDDEN_SIZE"`
	// 类别数
	NumClasses int `yaml:"num_classes" env:"NUM_CLASSES"`
	// dropout 保留概率（当前前向不使用）
	KeepProb float64 `yaml:"keep_prob" env:"KEEP_PROB"`
	// 循环层均匀初始化范围
	InitScale float64 `yaml:"init_scale" env:"INIT_SCALE"`
	// 卷积与全连接权重的截断正态标准差
	WeightStddev float64 `yaml:"weight_stddev" env:"WEIGHT_STDDEV"`
	// 全连接权重的 L2 衰减系数
	DenseWeightDecay float64 `yaml:"dense_weight_decay" env:"DENSE_WEIGHT_DECAY"`
	// 参数首选执行目标
	Target string `yaml:"target" env:"TARGET"`
	// 卷积核并行度，0 表示 GOMAXPROCS
	Workers int `yaml:"workers" env:"WORKERS"`
	// 初始化随机种子
	Seed int64 `yaml:"seed" env:"SEED"`
}

// TrainingConfig 训练过程配置
type TrainingConfig struct {
	// 基础学习率
	LearningRate float64 `yaml:"learning_rate" env:"LEARNING_RATE"`
	// 学习率衰减系数
	LRDecay float64 `yaml:"lr_decay" env:"LR_DECAY"`
	// 保持基础学习率的轮数
	MaxEpoch int `yaml:"max_epoch" env:"MAX_EPOCH"`
	// 总训练轮数
	MaxMaxEpoch int `yaml:"max_max_epoch" env:"MAX_MAX_EPOCH"`
	// 全局梯度范数上限
	MaxGradNorm float64 `yaml:"max_grad_norm" env:"MAX_GRAD_NORM"`
	// 进度日志间隔（步）
	LogEvery int `yaml:"log_every" env:"LOG_EVERY"`
	// 是否输出步级进度
	Verbose bool `yaml:"verbose" env:"VERBOSE"`
}

// DataConfig 数据源配置
type DataConfig struct {
	// 数据源: synthetic, frames
	Source string `yaml:"source" env:"SOURCE"`
	// 帧目录根路径（frames）
	Root string `yaml:"root" env:"ROOT"`
	// 每轮步数（synthetic）
	EpochSize int `yaml:"epoch_size" env:"EPOCH_SIZE"`
	// 是否每轮打乱
	Shuffle bool `yaml:"shuffle" env:"SHUFFLE"`
	// 随机种子
	Seed int64 `yaml:"seed" env:"SEED"`
}

// CheckpointConfig 检查点配置
type CheckpointConfig struct {
	// 保存路径，为空时不保存
	SavePath string `yaml:"save_path" env:"SAVE_PATH"`
	// 后端: file, redis, memory
	Backend string `yaml:"backend" env:"BACKEND"`
	// 周期保存间隔，0 表示只在结束时保存
	SaveInterval time.Duration `yaml:"save_interval" env:"SAVE_INTERVAL"`
	// 启动时是否恢复最新检查点
	Restore bool `yaml:"restore" env:"RESTORE"`
	// 保留的检查点数量，0 表示全部保留
	MaxToKeep int `yaml:"max_to_keep" env:"MAX_TO_KEEP"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 是否使用 TLS 连接
	TLS bool `yaml:"tls" env:"TLS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 是否记录训练历史
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// HTTP 监听地址，为空时不暴露
	Addr string `yaml:"addr" env:"ADDR"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
