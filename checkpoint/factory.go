package checkpoint

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/config"
	"github.com/BaSui01/videoflow/types"
)

// Backend 存储后端类型
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendRedis  Backend = "redis"
)

// NewStore 按配置创建检查点存储
func NewStore(ctx context.Context, cfg config.CheckpointConfig, redisCfg config.RedisConfig, logger *zap.Logger) (Store, error) {
	switch Backend(cfg.Backend) {
	case BackendMemory:
		return NewMemoryStore(cfg.MaxToKeep), nil
	case BackendFile:
		return NewFileStore(cfg.MaxToKeep, logger), nil
	case BackendRedis:
		store, err := DialRedisStore(ctx, redisCfg, cfg.MaxToKeep, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, types.NewConfigError("unsupported checkpoint backend: %s", cfg.Backend)
	}
}
