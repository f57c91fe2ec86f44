package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/config"
	"github.com/BaSui01/videoflow/internal/tlsutil"
	"github.com/BaSui01/videoflow/types"
)

// RedisStore 基于 Redis 的检查点存储，适合多节点共享检查点。
// 每个检查点序列化后存为字符串键，路径下的检查点按保存序号记录在有序集合中。
type RedisStore struct {
	client    *redis.Client
	prefix    string
	maxToKeep int
	logger    *zap.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore 使用已有客户端创建存储
func NewRedisStore(client *redis.Client, prefix string, maxToKeep int, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "videoflow:checkpoint"
	}
	if maxToKeep <= 0 {
		maxToKeep = DefaultMaxToKeep
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client:    client,
		prefix:    prefix,
		maxToKeep: maxToKeep,
		logger:    logger.With(zap.String("store", "redis_checkpoint")),
	}
}

// DialRedisStore 按配置连接 Redis 并创建存储
func DialRedisStore(ctx context.Context, cfg config.RedisConfig, maxToKeep int, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(redisOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, types.NewCheckpointError("connect to redis "+cfg.Addr, err)
	}
	return NewRedisStore(client, cfg.KeyPrefix, maxToKeep, logger), nil
}

func redisOptions(cfg config.RedisConfig) *redis.Options {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}
	if cfg.TLS {
		opts.TLSConfig = tlsutil.ClientConfig(cfg.Addr)
	}
	return opts
}

func (s *RedisStore) dataKey(path, id string) string {
	return fmt.Sprintf("%s:%s:data:%s", s.prefix, path, id)
}

func (s *RedisStore) indexKey(path string) string {
	return fmt.Sprintf("%s:%s:index", s.prefix, path)
}

func (s *RedisStore) seqKey(path string) string {
	return fmt.Sprintf("%s:%s:seq", s.prefix, path)
}

// Save 保存检查点
func (s *RedisStore) Save(ctx context.Context, ckpt *Checkpoint) error {
	if err := prepare(ckpt); err != nil {
		return err
	}
	data, err := json.Marshal(ckpt)
	if err != nil {
		return types.NewCheckpointError("marshal checkpoint", err)
	}

	seq, err := s.client.Incr(ctx, s.seqKey(ckpt.Path)).Result()
	if err != nil {
		return types.NewCheckpointError("allocate checkpoint sequence", err)
	}

	indexKey := s.indexKey(ckpt.Path)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.dataKey(ckpt.Path, ckpt.ID), data, 0)
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(seq), Member: ckpt.ID})
		return nil
	})
	if err != nil {
		return types.NewCheckpointError("save checkpoint to redis", err)
	}

	if err := s.prune(ctx, ckpt.Path); err != nil {
		s.logger.Warn("failed to prune old checkpoints", zap.String("path", ckpt.Path), zap.Error(err))
	}

	s.logger.Debug("checkpoint saved to redis",
		zap.String("checkpoint_id", ckpt.ID),
		zap.String("path", ckpt.Path),
		zap.Int64("global_step", ckpt.GlobalStep))
	return nil
}

// prune 删除超出保留数量的旧检查点
func (s *RedisStore) prune(ctx context.Context, path string) error {
	indexKey := s.indexKey(path)
	stale, err := s.client.ZRange(ctx, indexKey, 0, int64(-s.maxToKeep-1)).Result()
	if err != nil || len(stale) == 0 {
		return err
	}

	keys := make([]string, len(stale))
	members := make([]interface{}, len(stale))
	for i, id := range stale {
		keys[i] = s.dataKey(path, id)
		members[i] = id
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, indexKey, members...)
		return nil
	})
	return err
}

// LoadLatest 加载最新检查点
func (s *RedisStore) LoadLatest(ctx context.Context, path string) (*Checkpoint, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(path), 0, 0).Result()
	if err != nil {
		return nil, types.NewCheckpointError("read checkpoint index", err)
	}
	if len(ids) == 0 {
		return nil, notFound(path)
	}
	return s.load(ctx, path, ids[0])
}

func (s *RedisStore) load(ctx context.Context, path, id string) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, s.dataKey(path, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.NewCheckpointError("checkpoint "+id+" is indexed but missing", err)
	}
	if err != nil {
		return nil, types.NewCheckpointError("read checkpoint "+id, err)
	}

	var ckpt Checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, types.NewCheckpointError("unmarshal checkpoint "+id, err)
	}
	return &ckpt, nil
}

// List 列出检查点
func (s *RedisStore) List(ctx context.Context, path string) ([]Info, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(path), 0, -1).Result()
	if err != nil {
		return nil, types.NewCheckpointError("read checkpoint index", err)
	}

	infos := make([]Info, 0, len(ids))
	for _, id := range ids {
		ckpt, err := s.load(ctx, path, id)
		if err != nil {
			s.logger.Warn("failed to load checkpoint", zap.String("id", id), zap.Error(err))
			continue
		}
		infos = append(infos, ckpt.Info())
	}
	return infos, nil
}

// Ping 检查连接
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 关闭客户端
func (s *RedisStore) Close() error {
	return s.client.Close()
}
