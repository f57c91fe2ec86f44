package history

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/videoflow/internal/database"
	"github.com/BaSui01/videoflow/types"
)

// Recorder 训练历史记录接口
type Recorder interface {
	StartRun(ctx context.Context, run *TrainingRun) error
	RecordEpoch(ctx context.Context, summary *EpochSummary) error
	RecordScalars(ctx context.Context, runID string, step int64, scalars map[string]float64) error
	FinishRun(ctx context.Context, runID string, runErr error) error
	Close() error
}

// QueryRecorder 记录数据库操作耗时
type QueryRecorder interface {
	RecordDBQuery(database, operation string, duration time.Duration)
}

// =============================================================================
// 🗄️ GORM 实现
// =============================================================================

// GormRecorder 基于 GORM 的历史记录器
type GormRecorder struct {
	pool    *database.PoolManager
	queries QueryRecorder
	logger  *zap.Logger
}

var _ Recorder = (*GormRecorder)(nil)

// NewGormRecorder 迁移表结构并创建记录器；queries 可以为 nil
func NewGormRecorder(pool *database.PoolManager, queries QueryRecorder, logger *zap.Logger) (*GormRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.DB().AutoMigrate(&TrainingRun{}, &EpochSummary{}, &ScalarSummary{}); err != nil {
		return nil, types.NewError(types.ErrHistoryIO, "migrate history tables").WithCause(err)
	}
	return &GormRecorder{
		pool:    pool,
		queries: queries,
		logger:  logger.With(zap.String("component", "history")),
	}, nil
}

func (r *GormRecorder) observe(operation string, start time.Time) {
	if r.queries != nil {
		r.queries.RecordDBQuery("history", operation, time.Since(start))
	}
}

// StartRun 创建运行记录
func (r *GormRecorder) StartRun(ctx context.Context, run *TrainingRun) error {
	defer r.observe("start_run", time.Now())

	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if err := r.pool.DB().WithContext(ctx).Create(run).Error; err != nil {
		return types.NewError(types.ErrHistoryIO, "create training run").WithCause(err)
	}
	r.logger.Debug("training run recorded", zap.String("run_id", run.ID))
	return nil
}

// RecordEpoch 写入一轮汇总
func (r *GormRecorder) RecordEpoch(ctx context.Context, summary *EpochSummary) error {
	defer r.observe("record_epoch", time.Now())

	if err := r.pool.DB().WithContext(ctx).Create(summary).Error; err != nil {
		return types.NewError(types.ErrHistoryIO, "create epoch summary").WithCause(err)
	}
	return nil
}

// RecordScalars 在一个事务中写入同一步的全部标量
func (r *GormRecorder) RecordScalars(ctx context.Context, runID string, step int64, scalars map[string]float64) error {
	if len(scalars) == 0 {
		return nil
	}
	defer r.observe("record_scalars", time.Now())

	tags := make([]string, 0, len(scalars))
	for tag := range scalars {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	rows := make([]ScalarSummary, len(tags))
	for i, tag := range tags {
		rows[i] = ScalarSummary{RunID: runID, Tag: tag, Step: step, Value: scalars[tag]}
	}

	err := r.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		return types.NewError(types.ErrHistoryIO, "create scalar summaries").WithCause(err)
	}
	return nil
}

// FinishRun 更新运行状态；runErr 非空时记为失败
func (r *GormRecorder) FinishRun(ctx context.Context, runID string, runErr error) error {
	defer r.observe("finish_run", time.Now())

	now := time.Now()
	updates := map[string]any{
		"status":      RunStatusFinished,
		"finished_at": &now,
	}
	if runErr != nil {
		updates["status"] = RunStatusFailed
		updates["error"] = runErr.Error()
	}
	err := r.pool.DB().WithContext(ctx).Model(&TrainingRun{}).Where("id = ?", runID).Updates(updates).Error
	if err != nil {
		return types.NewError(types.ErrHistoryIO, "finish training run").WithCause(err)
	}
	return nil
}

// Run 读取运行记录
func (r *GormRecorder) Run(ctx context.Context, runID string) (*TrainingRun, error) {
	var run TrainingRun
	if err := r.pool.DB().WithContext(ctx).First(&run, "id = ?", runID).Error; err != nil {
		return nil, types.NewError(types.ErrHistoryIO, "load training run "+runID).WithCause(err)
	}
	return &run, nil
}

// Epochs 按轮次顺序读取运行的汇总
func (r *GormRecorder) Epochs(ctx context.Context, runID string) ([]EpochSummary, error) {
	var out []EpochSummary
	err := r.pool.DB().WithContext(ctx).Where("run_id = ?", runID).Order("epoch, id").Find(&out).Error
	if err != nil {
		return nil, types.NewError(types.ErrHistoryIO, "load epoch summaries").WithCause(err)
	}
	return out, nil
}

// Scalars 按步读取某个标签的标量
func (r *GormRecorder) Scalars(ctx context.Context, runID, tag string) ([]ScalarSummary, error) {
	var out []ScalarSummary
	err := r.pool.DB().WithContext(ctx).Where("run_id = ? AND tag = ?", runID, tag).Order("step, id").Find(&out).Error
	if err != nil {
		return nil, types.NewError(types.ErrHistoryIO, "load scalar summaries").WithCause(err)
	}
	return out, nil
}

// Close 关闭连接池
func (r *GormRecorder) Close() error {
	return r.pool.Close()
}

// =============================================================================
// 🔇 空实现
// =============================================================================

// NopRecorder 不记录任何内容
type NopRecorder struct{}

var _ Recorder = NopRecorder{}

func (NopRecorder) StartRun(context.Context, *TrainingRun) error     { return nil }
func (NopRecorder) RecordEpoch(context.Context, *EpochSummary) error { return nil }
func (NopRecorder) RecordScalars(context.Context, string, int64, map[string]float64) error {
	return nil
}
func (NopRecorder) FinishRun(context.Context, string, error) error { return nil }
func (NopRecorder) Close() error                                   { return nil }
