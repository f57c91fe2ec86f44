package training

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/config"
	"github.com/BaSui01/videoflow/dataset"
	"github.com/BaSui01/videoflow/model"
	"github.com/BaSui01/videoflow/types"
)

// Option 训练入口选项
type Option func(*options)

type options struct {
	logger *zap.Logger
	report func(*Report)
}

// WithLogger 设置日志记录器
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithReport 训练成功后接收结果
func WithReport(fn func(*Report)) Option {
	return func(o *options) { o.report = fn }
}

// NewInput 按数据源配置创建训练输入
func NewInput(cfg *config.Config, logger *zap.Logger) (dataset.Input, error) {
	shape := dataset.ShapeFromConfig(cfg.Model)
	switch cfg.Data.Source {
	case "synthetic":
		return dataset.NewSynthetic(shape, cfg.Data.EpochSize, cfg.Data.Seed)
	case "frames":
		return dataset.NewFrameDirectory(cfg.Data.Root, shape, dataset.FrameOptions{
			Shuffle: cfg.Data.Shuffle,
			Seed:    cfg.Data.Seed,
			Workers: cfg.Model.Workers,
			Logger:  logger,
		})
	default:
		return nil, types.NewConfigError("unknown data source %q", cfg.Data.Source)
	}
}

// Train 训练入口：校验配置、构建模型、打开会话并运行全部轮次。
// data 为 nil 时按 cfg.Data 创建数据源。
func Train(ctx context.Context, cfg *config.Config, data dataset.Input, opts ...Option) error {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if data == nil {
		var err error
		if data, err = NewInput(cfg, o.logger); err != nil {
			return fmt.Errorf("create input: %w", err)
		}
	}
	if data.BatchSize() != cfg.Model.BatchSize || data.NumSteps() != cfg.Model.NumSteps {
		return types.NewConfigError("input provides batch_size %d num_steps %d, model expects %d and %d",
			data.BatchSize(), data.NumSteps(), cfg.Model.BatchSize, cfg.Model.NumSteps)
	}

	m, err := model.New(cfg.Model,
		model.WithLogger(o.logger),
		model.WithLearningRate(cfg.Training.LearningRate),
		model.WithMaxGradNorm(cfg.Training.MaxGradNorm))
	if err != nil {
		return err
	}

	session, err := OpenSession(ctx, cfg, o.logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := session.Close(context.WithoutCancel(ctx)); closeErr != nil {
			o.logger.Warn("close training session", zap.Error(closeErr))
		}
	}()

	report, err := NewTrainer(cfg, m, data, session, o.logger).Train(ctx)
	if err != nil {
		return err
	}
	if o.report != nil {
		o.report(report)
	}
	return nil
}
