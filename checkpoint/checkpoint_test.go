package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/videoflow/c3d"
	"github.com/BaSui01/videoflow/config"
	"github.com/BaSui01/videoflow/nn"
	"github.com/BaSui01/videoflow/types"
)

func newParams(t *testing.T, seed int64) *nn.ParameterSet {
	t.Helper()
	ps := nn.NewParameterSet("")
	init := nn.NewInitializer(seed)
	_, _, err := ps.NewVariable("layer/w", []int{2, 3}, init.Uniform(1))
	require.NoError(t, err)
	_, _, err = ps.NewVariable("layer/b", []int{3}, init.Uniform(1))
	require.NoError(t, err)
	return ps
}

func valueOf(t *testing.T, ps *nn.ParameterSet, name string) []float64 {
	t.Helper()
	p, ok := ps.Get(name)
	require.True(t, ok)
	return append([]float64(nil), p.Value.Data()...)
}

func TestFromParameters_CopiesValues(t *testing.T) {
	ps := newParams(t, 1)
	ckpt := FromParameters("run", 7, 2, ps)

	assert.NotEmpty(t, ckpt.ID)
	assert.Equal(t, int64(7), ckpt.GlobalStep)
	assert.Equal(t, 2, ckpt.Epoch)
	assert.Equal(t, []string{"layer/b", "layer/w"}, ckpt.Names())
	assert.Equal(t, []int{2, 3}, ckpt.Tensors["layer/w"].Shape)

	saved := append([]float64(nil), ckpt.Tensors["layer/w"].Data...)
	p, _ := ps.Get("layer/w")
	p.Value.Fill(42)
	assert.Equal(t, saved, ckpt.Tensors["layer/w"].Data)
}

func TestRestore(t *testing.T) {
	src := newParams(t, 1)
	dst := newParams(t, 2)
	require.NotEqual(t, valueOf(t, src, "layer/w"), valueOf(t, dst, "layer/w"))

	require.NoError(t, FromParameters("run", 1, 0, src).Restore(dst))
	assert.Equal(t, valueOf(t, src, "layer/w"), valueOf(t, dst, "layer/w"))
	assert.Equal(t, valueOf(t, src, "layer/b"), valueOf(t, dst, "layer/b"))
}

func TestRestore_ShapeMismatchLeavesParametersUntouched(t *testing.T) {
	src := newParams(t, 1)
	ckpt := FromParameters("run", 1, 0, src)
	ckpt.Tensors["layer/w"] = Tensor{Shape: []int{3, 2}, Data: ckpt.Tensors["layer/w"].Data}

	dst := newParams(t, 2)
	beforeB := valueOf(t, dst, "layer/b")
	beforeW := valueOf(t, dst, "layer/w")

	err := ckpt.Restore(dst)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrShapeMismatch))
	assert.Equal(t, beforeB, valueOf(t, dst, "layer/b"))
	assert.Equal(t, beforeW, valueOf(t, dst, "layer/w"))
}

func inputKernelParams(t *testing.T, channels int) *nn.ParameterSet {
	t.Helper()
	ps := nn.NewParameterSet("")
	_, _, err := ps.NewVariable(c3d.InputKernelName, []int{3, 3, 3, channels, 2}, nn.NewInitializer(1).Uniform(1))
	require.NoError(t, err)
	return ps
}

func TestRestore_InputChannelMismatchIsConfigError(t *testing.T) {
	ckpt := FromParameters("run", 1, 0, inputKernelParams(t, 3))

	err := ckpt.Restore(inputKernelParams(t, 1))
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err))
	assert.Contains(t, err.Error(), "3-channel")

	ckpt.Tensors[c3d.InputKernelName] = Tensor{Shape: []int{3, 3, 3, 3, 1}, Data: make([]float64, 81)}
	err = ckpt.Restore(inputKernelParams(t, 3))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrShapeMismatch))
}

func TestRestore_MissingVariable(t *testing.T) {
	ckpt := FromParameters("run", 1, 0, newParams(t, 1))
	delete(ckpt.Tensors, "layer/b")

	err := ckpt.Restore(newParams(t, 2))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCheckpointIO))
}

// storeSuite 对所有后端运行相同的行为检查
func storeSuite(t *testing.T, newStore func(t *testing.T, maxToKeep int) (Store, string)) {
	ctx := context.Background()

	t.Run("empty path is not found", func(t *testing.T) {
		store, path := newStore(t, 2)
		_, err := store.LoadLatest(ctx, path)
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ErrCheckpointNotFound))

		infos, err := store.List(ctx, path)
		require.NoError(t, err)
		assert.Empty(t, infos)
	})

	t.Run("latest wins and old checkpoints are pruned", func(t *testing.T) {
		store, path := newStore(t, 2)
		ps := newParams(t, 1)
		for step := int64(1); step <= 3; step++ {
			p, _ := ps.Get("layer/b")
			p.Value.Fill(float64(step))
			require.NoError(t, store.Save(ctx, FromParameters(path, step, int(step), ps)))
		}

		latest, err := store.LoadLatest(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, int64(3), latest.GlobalStep)
		assert.Equal(t, []float64{3, 3, 3}, latest.Tensors["layer/b"].Data)

		infos, err := store.List(ctx, path)
		require.NoError(t, err)
		require.Len(t, infos, 2)
		assert.Equal(t, int64(3), infos[0].GlobalStep)
		assert.Equal(t, int64(2), infos[1].GlobalStep)

		dst := newParams(t, 9)
		require.NoError(t, latest.Restore(dst))
		assert.Equal(t, valueOf(t, ps, "layer/w"), valueOf(t, dst, "layer/w"))
	})

	t.Run("empty path is rejected", func(t *testing.T) {
		store, _ := newStore(t, 2)
		err := store.Save(ctx, FromParameters("", 1, 0, newParams(t, 1)))
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ErrCheckpointIO))
	})
}

func TestMemoryStore(t *testing.T) {
	storeSuite(t, func(t *testing.T, maxToKeep int) (Store, string) {
		return NewMemoryStore(maxToKeep), "run"
	})
}

func TestMemoryStore_ClosedRejectsSave(t *testing.T) {
	store := NewMemoryStore(1)
	require.NoError(t, store.Close())

	err := store.Save(context.Background(), FromParameters("run", 1, 0, newParams(t, 1)))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCheckpointIO))
}

func TestFileStore(t *testing.T) {
	storeSuite(t, func(t *testing.T, maxToKeep int) (Store, string) {
		return NewFileStore(maxToKeep, zaptest.NewLogger(t)), filepath.Join(t.TempDir(), "ckpt")
	})
}

func TestFileStore_PrunedFilesRemovedAndReopenable(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "ckpt")
	store := NewFileStore(1, zaptest.NewLogger(t))
	ps := newParams(t, 1)

	require.NoError(t, store.Save(ctx, FromParameters(dir, 1, 0, ps)))
	require.NoError(t, store.Save(ctx, FromParameters(dir, 2, 0, ps)))
	require.NoError(t, store.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Len(t, names, 2)
	assert.Contains(t, names, indexFile)

	reopened := NewFileStore(1, zaptest.NewLogger(t))
	latest, err := reopened.LoadLatest(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest.GlobalStep)
}

func TestFileStore_CorruptIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, indexFile), []byte("{not json"), 0644))

	_, err := NewFileStore(1, nil).LoadLatest(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCheckpointIO))
}

func TestRedisStore(t *testing.T) {
	storeSuite(t, func(t *testing.T, maxToKeep int) (Store, string) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		store := NewRedisStore(client, "test:ckpt", maxToKeep, zaptest.NewLogger(t))
		t.Cleanup(func() { store.Close() })
		return store, "run"
	})
}

func TestRedisStore_PrunesDataKeys(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "test:ckpt", 1, nil)
	defer store.Close()

	first := FromParameters("run", 1, 0, newParams(t, 1))
	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, FromParameters("run", 2, 0, newParams(t, 1))))

	assert.False(t, mr.Exists(store.dataKey("run", first.ID)))
	require.NoError(t, store.Ping(ctx))
}

func TestRedisStore_IndexedButMissingData(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "test:ckpt", 2, zaptest.NewLogger(t))
	defer store.Close()

	ckpt := FromParameters("run", 1, 1, newParams(t, 1))
	require.NoError(t, store.Save(ctx, ckpt))
	mr.Del(store.dataKey("run", ckpt.ID))

	_, err := store.LoadLatest(ctx, "run")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCheckpointIO))
	assert.Contains(t, err.Error(), "indexed but missing")
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	store, err := NewStore(ctx, config.CheckpointConfig{Backend: "memory"}, config.RedisConfig{}, logger)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = NewStore(ctx, config.CheckpointConfig{Backend: "file"}, config.RedisConfig{}, logger)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	mr := miniredis.RunT(t)
	store, err = NewStore(ctx, config.CheckpointConfig{Backend: "redis"}, config.RedisConfig{Addr: mr.Addr()}, logger)
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)
	require.NoError(t, store.Close())

	_, err = NewStore(ctx, config.CheckpointConfig{Backend: "s3"}, config.RedisConfig{}, logger)
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err))
}

func TestRedisOptions(t *testing.T) {
	cfg := config.DefaultRedisConfig()
	cfg.Addr = "redis.internal:6380"
	cfg.DB = 3

	opts := redisOptions(cfg)
	assert.Equal(t, "redis.internal:6380", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Nil(t, opts.TLSConfig)

	cfg.TLS = true
	opts = redisOptions(cfg)
	require.NotNil(t, opts.TLSConfig)
	assert.Equal(t, "redis.internal", opts.TLSConfig.ServerName)
}
