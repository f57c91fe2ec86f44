package training

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/videoflow/checkpoint"
	"github.com/BaSui01/videoflow/config"
	"github.com/BaSui01/videoflow/dataset"
	"github.com/BaSui01/videoflow/internal/history"
	"github.com/BaSui01/videoflow/model"
	"github.com/BaSui01/videoflow/types"
)

// EpochReport 一轮的结果
type EpochReport struct {
	Epoch        int
	LearningRate float64
	Perplexity   float64
	Duration     time.Duration
}

// Report 一次训练的结果
type Report struct {
	RunID      string
	GlobalStep int64
	// StartEpoch 从检查点恢复时已完成的轮数
	StartEpoch int
	Epochs     []EpochReport
	// SavedTo 最终检查点的 ID，未保存时为空
	SavedTo string
}

// Trainer 驱动 max_max_epoch 轮训练：每轮开始前下发学习率，
// 按 save_interval 周期保存检查点，结束后保存最终参数。
type Trainer struct {
	cfg     *config.Config
	model   *model.VideoModel
	input   dataset.Input
	session *Session
	machine *Machine
	saver   *rate.Sometimes
	logger  *zap.Logger

	runID      string
	globalStep int64
	epochsDone int
}

// NewTrainer 创建训练器
func NewTrainer(cfg *config.Config, m *model.VideoModel, input dataset.Input, session *Session, logger *zap.Logger) *Trainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Trainer{
		cfg:     cfg,
		model:   m,
		input:   input,
		session: session,
		logger:  logger.With(zap.String("component", "trainer")),
		runID:   uuid.New().String(),
	}
	t.machine = NewMachine(func(from, to State) {
		if session.Metrics != nil {
			session.Metrics.RecordStateTransition(string(from), string(to))
		}
	})
	if session.Store != nil && cfg.Checkpoint.SaveInterval > 0 {
		t.saver = &rate.Sometimes{Interval: cfg.Checkpoint.SaveInterval}
	}
	return t
}

// State 当前训练状态
func (t *Trainer) State() State { return t.machine.State() }

// GlobalStep 已执行的训练步数（含恢复的步数）
func (t *Trainer) GlobalStep() int64 { return t.globalStep }

// RunID 本次运行的历史记录 ID
func (t *Trainer) RunID() string { return t.runID }

// Train 执行训练；任何错误都终止训练并把状态置为 failed
func (t *Trainer) Train(ctx context.Context) (report *Report, err error) {
	if t.machine.State() != StateIdle {
		return nil, types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("trainer already in state %s", t.machine.State()))
	}

	mc := t.cfg.Model
	if err := t.session.History.StartRun(ctx, &history.TrainingRun{
		ID:          t.runID,
		SavePath:    t.cfg.Checkpoint.SavePath,
		BatchSize:   mc.BatchSize,
		NumSteps:    mc.NumSteps,
		C3DNumSteps: mc.C3DNumSteps,
		NumClasses:  mc.NumClasses,
		MaxEpochs:   t.cfg.Training.MaxMaxEpoch,
	}); err != nil {
		return nil, err
	}
	ctx = types.WithRunID(ctx, t.runID)
	defer func() {
		if err != nil {
			t.machine.Fail()
			t.logger.Error("training failed", zap.String("state", string(t.machine.State())), zap.Error(err))
		}
		if finishErr := t.session.History.FinishRun(context.WithoutCancel(ctx), t.runID, err); finishErr != nil {
			t.logger.Warn("record run result failed", zap.Error(finishErr))
		}
	}()

	if err := t.restore(ctx); err != nil {
		return nil, err
	}
	report = &Report{RunID: t.runID, StartEpoch: t.epochsDone}

	if t.saver != nil {
		// 第一次 Do 总会执行，这里只用来开始计时
		t.saver.Do(func() {})
	}

	tc := t.cfg.Training
	for i := t.epochsDone; i < tc.MaxMaxEpoch; i++ {
		epoch, err := t.runEpoch(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("epoch %d: %w", i+1, err)
		}
		report.Epochs = append(report.Epochs, *epoch)
	}

	if t.session.Store != nil {
		ckpt, err := t.save(ctx)
		if err != nil {
			return nil, err
		}
		report.SavedTo = ckpt.ID
	}

	if err := t.machine.Transition(StateFinished); err != nil {
		return nil, err
	}
	report.GlobalStep = t.globalStep
	t.logger.Info("training finished",
		zap.Int64("global_step", t.globalStep),
		zap.Int("epochs", len(report.Epochs)))
	return report, nil
}

// restore 从保存路径加载最新检查点；不存在时从头开始
func (t *Trainer) restore(ctx context.Context) error {
	if t.session.Store == nil || !t.cfg.Checkpoint.Restore {
		return nil
	}
	ckpt, err := t.session.Store.LoadLatest(ctx, t.cfg.Checkpoint.SavePath)
	if types.IsErrorCode(err, types.ErrCheckpointNotFound) {
		t.logger.Info("no checkpoint to restore, starting fresh", zap.String("path", t.cfg.Checkpoint.SavePath))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if err := ckpt.Restore(t.model.Parameters()); err != nil {
		return fmt.Errorf("restore checkpoint %s: %w", ckpt.ID, err)
	}
	t.globalStep = ckpt.GlobalStep
	t.epochsDone = ckpt.Epoch
	t.logger.Info("checkpoint restored",
		zap.String("id", ckpt.ID),
		zap.Int64("global_step", ckpt.GlobalStep),
		zap.Int("epoch", ckpt.Epoch))
	return nil
}

func (t *Trainer) runEpoch(ctx context.Context, i int) (*EpochReport, error) {
	tc := t.cfg.Training
	lr := LearningRate(tc.LearningRate, tc.LRDecay, i, tc.MaxEpoch)

	if err := t.machine.Transition(StateEpochRunning); err != nil {
		return nil, err
	}
	t.model.AssignLR(lr)
	t.logger.Info("epoch started", zap.Int("epoch", i+1), zap.Float64("learning_rate", t.model.LR()))

	ctx, span := t.session.Instruments.StartEpoch(ctx, i+1, true, lr)
	defer span.End()
	ctx = types.WithEpoch(ctx, i+1)
	if sc := span.SpanContext(); sc.HasTraceID() {
		ctx = types.WithTraceID(ctx, sc.TraceID().String())
	}

	if t.session.Metrics != nil {
		t.session.Metrics.SetLearningRate(lr)
	}
	if err := t.session.History.RecordScalars(ctx, t.runID, t.globalStep,
		map[string]float64{history.TagLearningRate: lr}); err != nil {
		return nil, err
	}

	start := time.Now()
	t.input.Reset(i)
	ppl, err := RunEpoch(ctx, t.model, t.input, EpochOptions{
		Train:    true,
		Verbose:  tc.Verbose,
		LogEvery: tc.LogEvery,
		State:    t.machine,
		OnStep:   t.onStep,
		OnProgress: func(p Progress) {
			if t.session.Metrics != nil {
				t.session.Metrics.RecordProgress("train", p.Perplexity, p.VideosPerSecond)
			}
		},
		Logger: t.logger,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	duration := time.Since(start)
	t.epochsDone = i + 1

	t.logger.Info("epoch finished", zap.Int("epoch", i+1), zap.Float64("train_perplexity", ppl))
	t.session.Instruments.RecordEpoch(ctx, true, duration)
	if t.session.Metrics != nil {
		t.session.Metrics.RecordEpoch("train", ppl)
	}
	if err := t.session.History.RecordEpoch(ctx, &history.EpochSummary{
		RunID:        t.runID,
		Epoch:        i + 1,
		Mode:         "train",
		LearningRate: lr,
		Perplexity:   ppl,
		Steps:        t.input.EpochSize(),
		Seconds:      duration.Seconds(),
	}); err != nil {
		return nil, err
	}
	return &EpochReport{Epoch: i + 1, LearningRate: lr, Perplexity: ppl, Duration: duration}, nil
}

func (t *Trainer) onStep(ctx context.Context, res *model.StepResult, duration time.Duration) error {
	t.globalStep++

	t.session.Instruments.RecordStep(ctx, true, duration)
	if m := t.session.Metrics; m != nil {
		m.RecordStep("train", duration, res.Cost, res.Accuracy)
		m.RecordGradNorm(res.GradNorm)
	}
	if err := t.session.History.RecordScalars(ctx, t.runID, t.globalStep,
		map[string]float64{history.TagTrainingLoss: res.Cost}); err != nil {
		return err
	}

	if t.saver == nil {
		return nil
	}
	var saveErr error
	t.saver.Do(func() {
		_, saveErr = t.save(ctx)
	})
	return saveErr
}

// save 保存当前参数；失败对训练是致命的
func (t *Trainer) save(ctx context.Context) (*checkpoint.Checkpoint, error) {
	path := t.cfg.Checkpoint.SavePath
	ctx, span := t.session.Instruments.StartCheckpoint(ctx, path, t.globalStep)
	defer span.End()

	runID, _ := types.RunID(ctx)
	t.logger.Info("saving model",
		zap.String("path", path),
		zap.String("run_id", runID),
		zap.Int64("global_step", t.globalStep))
	start := time.Now()
	ckpt := checkpoint.FromParameters(path, t.globalStep, t.epochsDone, t.model.Parameters())
	err := t.session.Store.Save(ctx, ckpt)

	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	t.session.Instruments.RecordCheckpoint(ctx, err == nil)
	if t.session.Metrics != nil {
		t.session.Metrics.RecordCheckpoint(status, time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("save checkpoint: %w", err)
	}
	return ckpt, nil
}
