// Package model 组合片段切分、C3D 特征提取与双向 LSTM，构成端到端的视频分类模型。
//
// 一个 VideoModel 持有唯一的 ParameterSet：同一步内所有片段共用同一个提取器实例，
// 所有片段的梯度累加到同一组共享参数上，读取阶段完成后才进入更新阶段。
package model

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/bilstm"
	"github.com/BaSui01/videoflow/c3d"
	"github.com/BaSui01/videoflow/config"
	"github.com/BaSui01/videoflow/dataset"
	"github.com/BaSui01/videoflow/nn"
	"github.com/BaSui01/videoflow/sequence"
	"github.com/BaSui01/videoflow/tensor"
	"github.com/BaSui01/videoflow/types"
)

// StepResult 一步的结果
type StepResult struct {
	// Cost 批平均交叉熵（不含权重衰减）
	Cost float64
	// Accuracy 批内预测正确的比例
	Accuracy float64
	// Penalty 权重衰减损失
	Penalty float64
	// TotalLoss 参与求梯度的总损失 Cost + Penalty
	TotalLoss float64
	// GradNorm 裁剪前的全局梯度范数，只在训练步有值
	GradNorm    float64
	Predictions []int
	NumClips    int
}

// Option 模型选项
type Option func(*options)

type options struct {
	logger       *zap.Logger
	learningRate float64
	maxGradNorm  float64
}

// WithLogger 设置日志记录器
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithLearningRate 设置初始学习率
func WithLearningRate(lr float64) Option {
	return func(o *options) { o.learningRate = lr }
}

// WithMaxGradNorm 设置全局梯度范数上限
func WithMaxGradNorm(norm float64) Option {
	return func(o *options) { o.maxGradNorm = norm }
}

// VideoModel C3D + BiLSTM 视频分类模型
type VideoModel struct {
	cfg       config.ModelConfig
	shape     dataset.Shape
	params    *nn.ParameterSet
	extractor *c3d.Extractor
	sequence  *bilstm.BiLSTM
	penalties nn.Penalties
	optimizer *nn.SGD
	logger    *zap.Logger
}

// ExtractorConfig 将模型配置映射为提取器配置
func ExtractorConfig(cfg config.ModelConfig) c3d.Config {
	widths := cfg.ChannelWidths
	if len(widths) == 0 {
		widths = c3d.DefaultChannelWidths()
	}
	return c3d.Config{
		ClipLength:       cfg.C3DNumSteps,
		Height:           cfg.Height,
		Width:            cfg.Width,
		Channels:         cfg.Channels,
		ChannelWidths:    widths,
		EmbeddingDim:     cfg.EmbeddingDim,
		DenseInputDim:    cfg.DenseInputDim,
		WeightStddev:     cfg.WeightStddev,
		DenseWeightDecay: cfg.DenseWeightDecay,
		KeepProb:         cfg.KeepProb,
		Target:           cfg.Target,
		Workers:          cfg.Workers,
	}
}

// SequenceConfig 将模型配置映射为双向 LSTM 配置
func SequenceConfig(cfg config.ModelConfig) bilstm.Config {
	return bilstm.Config{
		InputSize:  cfg.EmbeddingDim,
		HiddenSize: cfg.HiddenSize,
		NumClasses: cfg.NumClasses,
		InitScale:  cfg.InitScale,
		ForgetBias: nn.DefaultForgetBias,
		Target:     cfg.Target,
	}
}

// New 校验完整配置后创建模型；任何配置错误都在分配 ParameterSet 之前返回
func New(cfg config.ModelConfig, opts ...Option) (*VideoModel, error) {
	o := options{maxGradNorm: nn.DefaultMaxGradNorm}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := sequence.ValidateClipLength(cfg.NumSteps, cfg.C3DNumSteps); err != nil {
		return nil, err
	}
	extractorCfg := ExtractorConfig(cfg)
	if err := extractorCfg.Validate(); err != nil {
		return nil, err
	}
	sequenceCfg := SequenceConfig(cfg)
	if err := sequenceCfg.Validate(); err != nil {
		return nil, err
	}

	params := nn.NewParameterSet(cfg.Target)
	init := nn.NewInitializer(cfg.Seed)

	extractor, extractorPenalties, err := c3d.New(extractorCfg, params, init)
	if err != nil {
		return nil, fmt.Errorf("create feature extractor: %w", err)
	}
	seqModel, seqPenalties, err := bilstm.New(sequenceCfg, params, init)
	if err != nil {
		return nil, fmt.Errorf("create sequence model: %w", err)
	}

	m := &VideoModel{
		cfg:       cfg,
		shape:     dataset.ShapeFromConfig(cfg),
		params:    params,
		extractor: extractor,
		sequence:  seqModel,
		penalties: extractorPenalties.Merge(seqPenalties),
		optimizer: nn.NewSGD(o.learningRate, o.maxGradNorm),
		logger:    o.logger.With(zap.String("component", "video_model")),
	}
	m.logger.Info("video model created",
		zap.Int("clips_per_video", cfg.NumClips()),
		zap.Int("embedding_dim", extractor.EmbeddingDim()),
		zap.Int("variables", params.Len()),
		zap.Int("parameters", params.NumElements()),
		zap.String("target", params.Target()))
	return m, nil
}

// Config 返回模型配置
func (m *VideoModel) Config() config.ModelConfig { return m.cfg }

// Parameters 返回共享参数集，供检查点读写
func (m *VideoModel) Parameters() *nn.ParameterSet { return m.params }

// Extractor 返回片段特征提取器
func (m *VideoModel) Extractor() *c3d.Extractor { return m.extractor }

// LR 当前学习率
func (m *VideoModel) LR() float64 { return m.optimizer.LearningRate() }

// AssignLR 更新学习率，不重建模型
func (m *VideoModel) AssignLR(lr float64) { m.optimizer.SetLearningRate(lr) }

// TrainOp 返回执行参数更新的优化器
func (m *VideoModel) TrainOp() *nn.SGD { return m.optimizer }

// KeepProb 返回声明的 dropout 保留概率
func (m *VideoModel) KeepProb() float64 { return m.extractor.KeepProb() }

// EmbedVideo 用同一个 Embedder 依次嵌入视频的每个片段并组装为序列
func EmbedVideo(ctx context.Context, e c3d.Embedder, video *tensor.Tensor, clipLength int) (*sequence.EmbeddingSequence, error) {
	clips, err := sequence.Split(video, clipLength)
	if err != nil {
		return nil, err
	}
	embeddings := make([]*tensor.Tensor, len(clips))
	for i, clip := range clips {
		if embeddings[i], err = e.Embed(ctx, clip); err != nil {
			return nil, fmt.Errorf("embed clip %d: %w", i, err)
		}
	}
	return sequence.Assemble(embeddings)
}

// Run 对一个批次执行前向；withTrainOp 为 true 时再反向传播并更新参数
func (m *VideoModel) Run(ctx context.Context, batch *dataset.Batch, withTrainOp bool) (*StepResult, error) {
	if err := batch.Check(m.shape); err != nil {
		return nil, err
	}
	if !withTrainOp {
		seq, err := EmbedVideo(ctx, m.extractor, batch.Videos, m.cfg.C3DNumSteps)
		if err != nil {
			return nil, err
		}
		res, err := m.sequence.Forward(seq, batch.Labels)
		if err != nil {
			return nil, err
		}
		return m.result(res, seq.Len()), nil
	}

	clips, err := sequence.Split(batch.Videos, m.cfg.C3DNumSteps)
	if err != nil {
		return nil, err
	}
	embeddings := make([]*tensor.Tensor, len(clips))
	traces := make([]*c3d.Trace, len(clips))
	for i, clip := range clips {
		if embeddings[i], traces[i], err = m.extractor.Forward(ctx, clip); err != nil {
			return nil, fmt.Errorf("embed clip %d: %w", i, err)
		}
	}
	seq, err := sequence.Assemble(embeddings)
	if err != nil {
		return nil, err
	}
	res, err := m.sequence.Forward(seq, batch.Labels)
	if err != nil {
		return nil, err
	}
	out := m.result(res, len(clips))

	m.params.ZeroGrad()
	dEmb, err := m.sequence.Backward(res)
	if err != nil {
		return nil, fmt.Errorf("sequence backward: %w", err)
	}
	for i := range clips {
		if err := m.extractor.Backward(ctx, traces[i], dEmb[i]); err != nil {
			return nil, fmt.Errorf("extractor backward clip %d: %w", i, err)
		}
	}
	m.penalties.ApplyGradients()

	if out.GradNorm, err = m.optimizer.Step(m.params); err != nil {
		return nil, err
	}
	m.logger.Debug("train step applied", append(contextFields(ctx),
		zap.Float64("cost", out.Cost),
		zap.Float64("penalty", out.Penalty),
		zap.Float64("grad_norm", out.GradNorm),
		zap.Float64("learning_rate", m.LR()))...)
	return out, nil
}

// contextFields 取出上下文中的运行标识
func contextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if id, ok := types.RunID(ctx); ok {
		fields = append(fields, zap.String("run_id", id))
	}
	if epoch, ok := types.Epoch(ctx); ok {
		fields = append(fields, zap.Int("epoch", epoch))
	}
	if id, ok := types.TraceID(ctx); ok {
		fields = append(fields, zap.String("trace_id", id))
	}
	return fields
}

func (m *VideoModel) result(res *bilstm.Result, numClips int) *StepResult {
	penalty := m.penalties.Loss()
	return &StepResult{
		Cost:        res.Cost,
		Accuracy:    res.Accuracy,
		Penalty:     penalty,
		TotalLoss:   res.Cost + penalty,
		Predictions: res.Predictions,
		NumClips:    numClips,
	}
}
