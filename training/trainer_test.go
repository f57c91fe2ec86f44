package training

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/videoflow/config"
	"github.com/BaSui01/videoflow/dataset"
	"github.com/BaSui01/videoflow/internal/history"
	"github.com/BaSui01/videoflow/model"
	"github.com/BaSui01/videoflow/nn"
	"github.com/BaSui01/videoflow/testutil"
	"github.com/BaSui01/videoflow/testutil/fixtures"
	"github.com/BaSui01/videoflow/types"
)

func tinyTrainConfig() *config.Config {
	cfg := fixtures.TinyConfig()
	cfg.Training.MaxEpoch = 0
	cfg.Checkpoint.SavePath = "runs/tiny"
	return cfg
}

type trainerFixture struct {
	cfg     *config.Config
	model   *model.VideoModel
	input   dataset.Input
	session *Session
}

func newTrainerFixture(t *testing.T, cfg *config.Config) *trainerFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	m, err := model.New(cfg.Model, model.WithLogger(logger), model.WithLearningRate(cfg.Training.LearningRate))
	require.NoError(t, err)
	input, err := NewInput(cfg, logger)
	require.NoError(t, err)
	session, err := OpenSession(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close(context.Background()) })

	return &trainerFixture{cfg: cfg, model: m, input: input, session: session}
}

func (f *trainerFixture) trainer(t *testing.T) *Trainer {
	return NewTrainer(f.cfg, f.model, f.input, f.session, zaptest.NewLogger(t))
}

func TestTrainer_RunsAllEpochsAndSaves(t *testing.T) {
	f := newTrainerFixture(t, tinyTrainConfig())
	tr := f.trainer(t)
	ctx := testutil.TestContext(t)

	report, err := tr.Train(ctx)
	require.NoError(t, err)

	require.Len(t, report.Epochs, 2)
	assert.Equal(t, 1, report.Epochs[0].Epoch)
	assert.InDelta(t, 0.1, report.Epochs[0].LearningRate, 1e-12)
	assert.InDelta(t, 0.05, report.Epochs[1].LearningRate, 1e-12)
	for _, e := range report.Epochs {
		assert.False(t, math.IsNaN(e.Perplexity))
		assert.Greater(t, e.Perplexity, 1.0)
	}
	assert.InDelta(t, 0.05, f.model.LR(), 1e-12)
	assert.Equal(t, int64(4), report.GlobalStep)
	assert.Equal(t, int64(4), tr.GlobalStep())
	assert.Equal(t, StateFinished, tr.State())
	assert.NotEmpty(t, report.SavedTo)

	infos, err := f.session.Store.List(ctx, "runs/tiny")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, report.SavedTo, infos[0].ID)
	assert.Equal(t, int64(4), infos[0].GlobalStep)
	assert.Equal(t, 2, infos[0].Epoch)
}

func TestTrainer_RestoresLatestCheckpoint(t *testing.T) {
	cfg := tinyTrainConfig()
	f := newTrainerFixture(t, cfg)
	ctx := testutil.TestContext(t)

	_, err := f.trainer(t).Train(ctx)
	require.NoError(t, err)
	saved, err := f.session.Store.LoadLatest(ctx, cfg.Checkpoint.SavePath)
	require.NoError(t, err)

	otherCfg := cfg.Model
	otherCfg.Seed = 99
	fresh, err := model.New(otherCfg, model.WithLearningRate(cfg.Training.LearningRate))
	require.NoError(t, err)

	tr := NewTrainer(cfg, fresh, f.input, f.session, zaptest.NewLogger(t))
	report, err := tr.Train(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.StartEpoch)
	assert.Empty(t, report.Epochs)
	assert.Equal(t, int64(4), report.GlobalStep)
	assert.Equal(t, StateFinished, tr.State())
	for _, p := range fresh.Parameters().Params() {
		assert.Equal(t, saved.Tensors[p.Name].Data, p.Value.Data(), p.Name)
	}
}

func TestTrainer_RestoreDisabled(t *testing.T) {
	cfg := tinyTrainConfig()
	f := newTrainerFixture(t, cfg)
	ctx := testutil.TestContext(t)

	_, err := f.trainer(t).Train(ctx)
	require.NoError(t, err)

	cfg.Checkpoint.Restore = false
	report, err := f.trainer(t).Train(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.StartEpoch)
	assert.Len(t, report.Epochs, 2)
}

func TestTrainer_PeriodicCheckpoints(t *testing.T) {
	cfg := tinyTrainConfig()
	cfg.Checkpoint.SaveInterval = time.Nanosecond
	cfg.Checkpoint.MaxToKeep = 10
	f := newTrainerFixture(t, cfg)
	ctx := testutil.TestContext(t)

	_, err := f.trainer(t).Train(ctx)
	require.NoError(t, err)

	infos, err := f.session.Store.List(ctx, cfg.Checkpoint.SavePath)
	require.NoError(t, err)
	assert.Greater(t, len(infos), 1)
	assert.Equal(t, int64(4), infos[0].GlobalStep)
}

func TestTrainer_NoSavePath(t *testing.T) {
	cfg := tinyTrainConfig()
	cfg.Checkpoint.SavePath = ""
	f := newTrainerFixture(t, cfg)

	assert.Nil(t, f.session.Store)
	report, err := f.trainer(t).Train(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Empty(t, report.SavedTo)
}

// failingInput 在第 failAt 次 Next 时返回错误
type failingInput struct {
	dataset.Input
	calls  int
	failAt int
}

func (f *failingInput) Next(ctx context.Context) (*dataset.Batch, error) {
	f.calls++
	if f.calls == f.failAt {
		return nil, types.NewError(types.ErrDataSource, "disk unplugged")
	}
	return f.Input.Next(ctx)
}

func TestTrainer_FailureAbortsRun(t *testing.T) {
	cfg := tinyTrainConfig()
	cfg.Database.Enabled = true
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = filepath.Join(t.TempDir(), "history.db")
	f := newTrainerFixture(t, cfg)
	ctx := testutil.TestContext(t)

	input := &failingInput{Input: f.input, failAt: 3}
	tr := NewTrainer(cfg, f.model, input, f.session, zaptest.NewLogger(t))

	_, err := tr.Train(ctx)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrDataSource))
	assert.Contains(t, err.Error(), "epoch 2")
	assert.Equal(t, StateFailed, tr.State())
	assert.Equal(t, int64(2), tr.GlobalStep())

	infos, err := f.session.Store.List(ctx, cfg.Checkpoint.SavePath)
	require.NoError(t, err)
	assert.Empty(t, infos)

	rec, ok := f.session.History.(*history.GormRecorder)
	require.True(t, ok)
	run, err := rec.Run(ctx, tr.RunID())
	require.NoError(t, err)
	assert.Equal(t, history.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "disk unplugged")

	epochs, err := rec.Epochs(ctx, tr.RunID())
	require.NoError(t, err)
	require.Len(t, epochs, 1)
	assert.Equal(t, 1, epochs[0].Epoch)

	losses, err := rec.Scalars(ctx, tr.RunID(), history.TagTrainingLoss)
	require.NoError(t, err)
	assert.Len(t, losses, 2)
}

func TestTrainer_RecordsHistory(t *testing.T) {
	cfg := tinyTrainConfig()
	cfg.Database.Enabled = true
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = filepath.Join(t.TempDir(), "history.db")
	f := newTrainerFixture(t, cfg)
	ctx := testutil.TestContext(t)

	tr := f.trainer(t)
	_, err := tr.Train(ctx)
	require.NoError(t, err)

	rec := f.session.History.(*history.GormRecorder)
	run, err := rec.Run(ctx, tr.RunID())
	require.NoError(t, err)
	assert.Equal(t, history.RunStatusFinished, run.Status)
	assert.Equal(t, 2, run.MaxEpochs)

	rates, err := rec.Scalars(ctx, tr.RunID(), history.TagLearningRate)
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.InDelta(t, 0.1, rates[0].Value, 1e-12)
	assert.InDelta(t, 0.05, rates[1].Value, 1e-12)

	losses, err := rec.Scalars(ctx, tr.RunID(), history.TagTrainingLoss)
	require.NoError(t, err)
	assert.Len(t, losses, 4)
}

func TestTrainer_SecondTrainRejected(t *testing.T) {
	f := newTrainerFixture(t, tinyTrainConfig())
	tr := f.trainer(t)
	ctx := testutil.TestContext(t)

	_, err := tr.Train(ctx)
	require.NoError(t, err)

	_, err = tr.Train(ctx)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidTransition))
}

func TestTrainer_CancelledContext(t *testing.T) {
	f := newTrainerFixture(t, tinyTrainConfig())
	tr := f.trainer(t)

	_, err := tr.Train(testutil.CancelledContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, tr.State())
}

func TestTrain_EntryPoint(t *testing.T) {
	cfg := tinyTrainConfig()

	var report *Report
	err := Train(testutil.TestContext(t), cfg, nil,
		WithLogger(zaptest.NewLogger(t)),
		WithReport(func(r *Report) { report = r }))
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, int64(4), report.GlobalStep)
	assert.Len(t, report.Epochs, 2)
}

func TestTrain_IndivisibleClipLengthAllocatesNothing(t *testing.T) {
	cfg := tinyTrainConfig()
	cfg.Model.C3DNumSteps = 3

	before := nn.AllocatedParameterSets()
	err := Train(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err))
	assert.Equal(t, before, nn.AllocatedParameterSets())
}

func TestTrain_InputShapeMismatch(t *testing.T) {
	cfg := tinyTrainConfig()
	shape := dataset.ShapeFromConfig(cfg.Model)
	shape.BatchSize = 2
	input, err := dataset.NewSynthetic(shape, 1, 1)
	require.NoError(t, err)

	err = Train(context.Background(), cfg, input)
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err))
}

func TestNewInput(t *testing.T) {
	cfg := tinyTrainConfig()
	in, err := NewInput(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &dataset.Synthetic{}, in)
	assert.Equal(t, cfg.Data.EpochSize, in.EpochSize())

	cfg.Data.Source = "frames"
	cfg.Data.Root = filepath.Join(t.TempDir(), "missing")
	_, err = NewInput(cfg, nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrDataSource))

	cfg.Data.Source = "tfrecord"
	_, err = NewInput(cfg, nil)
	assert.True(t, types.IsConfigError(err))
}
