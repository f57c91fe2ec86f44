package training

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/dataset"
	"github.com/BaSui01/videoflow/model"
	"github.com/BaSui01/videoflow/types"
)

// DefaultLogEvery 默认进度日志间隔（步）
const DefaultLogEvery = 10

// Model 一轮训练所需的模型能力
type Model interface {
	Run(ctx context.Context, batch *dataset.Batch, withTrainOp bool) (*model.StepResult, error)
}

// Progress 周期性进度
type Progress struct {
	Step            int
	Fraction        float64
	Accuracy        float64
	Perplexity      float64
	VideosPerSecond float64
}

// EpochOptions 一轮的执行选项
type EpochOptions struct {
	// Train 为 true 时执行参数更新
	Train bool
	// Verbose 为 true 时每 LogEvery 步输出进度
	Verbose  bool
	LogEvery int

	// State 可选，每步前转到 step_running，结束后转到 epoch_done
	State *Machine

	// OnStep 每步完成后调用，返回错误会终止本轮
	OnStep func(ctx context.Context, res *model.StepResult, duration time.Duration) error
	// OnProgress 与进度日志同频调用
	OnProgress func(p Progress)

	Logger *zap.Logger
}

// Mode 返回指标使用的模式标签
func (o EpochOptions) Mode() string {
	if o.Train {
		return "train"
	}
	return "eval"
}

// RunEpoch 在数据源上跑完一轮，返回 exp(总损失 / 总时间步)。
// 每步累加一次损失与 input.NumSteps() 个时间步。
func RunEpoch(ctx context.Context, m Model, input dataset.Input, opts EpochOptions) (float64, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logEvery := opts.LogEvery
	if logEvery <= 0 {
		logEvery = DefaultLogEvery
	}

	epochSize := input.EpochSize()
	if epochSize <= 0 {
		return 0, types.NewError(types.ErrDataSource, fmt.Sprintf("epoch size must be positive, got %d", epochSize))
	}

	start := time.Now()
	costs := 0.0
	iters := 0

	for step := 0; step < epochSize; step++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if opts.State != nil {
			if err := opts.State.Transition(StateStepRunning); err != nil {
				return 0, err
			}
		}

		batch, err := input.Next(ctx)
		if err != nil {
			return 0, fmt.Errorf("fetch batch %d: %w", step, err)
		}
		stepStart := time.Now()
		res, err := m.Run(ctx, batch, opts.Train)
		if err != nil {
			return 0, fmt.Errorf("step %d: %w", step, err)
		}
		stepDuration := time.Since(stepStart)

		costs += res.Cost
		iters += input.NumSteps()

		if opts.OnStep != nil {
			if err := opts.OnStep(ctx, res, stepDuration); err != nil {
				return 0, err
			}
		}

		if opts.Verbose && step%logEvery == logEvery-1 {
			p := Progress{
				Step:            step + 1,
				Fraction:        float64(step) / float64(epochSize),
				Accuracy:        res.Accuracy,
				Perplexity:      math.Exp(costs / float64(iters)),
				VideosPerSecond: float64((step+1)*input.BatchSize()) / time.Since(start).Seconds(),
			}
			logger.Info("epoch progress",
				zap.String("mode", opts.Mode()),
				zap.Float64("progress", p.Fraction),
				zap.Float64("accuracy", p.Accuracy),
				zap.Float64("perplexity", p.Perplexity),
				zap.Float64("speed_vps", p.VideosPerSecond))
			if opts.OnProgress != nil {
				opts.OnProgress(p)
			}
		}
	}

	if opts.State != nil {
		if err := opts.State.Transition(StateEpochDone); err != nil {
			return 0, err
		}
	}
	return math.Exp(costs / float64(iters)), nil
}
