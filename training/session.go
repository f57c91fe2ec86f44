package training

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/videoflow/checkpoint"
	"github.com/BaSui01/videoflow/config"
	"github.com/BaSui01/videoflow/internal/database"
	"github.com/BaSui01/videoflow/internal/history"
	"github.com/BaSui01/videoflow/internal/metrics"
	"github.com/BaSui01/videoflow/internal/server"
	"github.com/BaSui01/videoflow/internal/telemetry"
)

// =============================================================================
// 🧳 训练会话
// =============================================================================

// Session 一次训练所需的外部资源：检查点存储、历史记录、指标与遥测。
// 任何退出路径都应调用 Close。
type Session struct {
	// Store 为 nil 表示未配置保存路径
	Store       checkpoint.Store
	History     history.Recorder
	Metrics     *metrics.Collector
	Server      *server.Manager
	Telemetry   *telemetry.Providers
	Instruments *telemetry.Instruments

	logger    *zap.Logger
	closeOnce sync.Once
	closeErr  error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// OpenSession 按配置打开会话资源；中途失败时关闭已打开的部分
func OpenSession(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		History: history.NopRecorder{},
		logger:  logger.With(zap.String("component", "session")),
	}

	fail := func(err error) (*Session, error) {
		if closeErr := s.Close(context.Background()); closeErr != nil {
			s.logger.Warn("close partially opened session", zap.Error(closeErr))
		}
		return nil, err
	}

	providers, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		return fail(fmt.Errorf("init telemetry: %w", err))
	}
	s.Telemetry = providers

	if s.Instruments, err = telemetry.NewInstruments(); err != nil {
		return fail(fmt.Errorf("create telemetry instruments: %w", err))
	}

	if cfg.Metrics.Enabled {
		s.Metrics = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	}

	if cfg.Checkpoint.SavePath != "" {
		if s.Store, err = checkpoint.NewStore(ctx, cfg.Checkpoint, cfg.Redis, logger); err != nil {
			return fail(fmt.Errorf("open checkpoint store: %w", err))
		}
	}

	if cfg.Database.Enabled {
		var opts []database.PoolOption
		var queries history.QueryRecorder
		if s.Metrics != nil {
			opts = append(opts, database.WithStatsRecorder("history", s.Metrics))
			queries = s.Metrics
		}
		pool, err := database.Open(cfg.Database, logger, opts...)
		if err != nil {
			return fail(fmt.Errorf("open history database: %w", err))
		}
		rec, err := history.NewGormRecorder(pool, queries, logger)
		if err != nil {
			_ = pool.Close()
			return fail(err)
		}
		s.History = rec
	}

	if s.Metrics != nil && cfg.Metrics.Addr != "" {
		handler := server.NewMetricsHandler(s.Metrics, s.health)
		s.Server = server.NewManager(handler, server.ConfigFromMetrics(cfg.Metrics), logger)
		if err := s.Server.Start(); err != nil {
			return fail(fmt.Errorf("start metrics server: %w", err))
		}
	}

	s.logger.Info("training session opened",
		zap.Bool("checkpoints", s.Store != nil),
		zap.Bool("history", cfg.Database.Enabled),
		zap.Bool("metrics", s.Metrics != nil),
		zap.Bool("telemetry", providers.Enabled()))
	return s, nil
}

// health 检查需要网络的检查点后端
func (s *Session) health() error {
	p, ok := s.Store.(pinger)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.Ping(ctx)
}

// Close 关闭全部资源，只执行一次
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.Server != nil {
			if err := s.Server.Err(); err != nil {
				errs = append(errs, fmt.Errorf("metrics server: %w", err))
			}
			if err := s.Server.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if s.Store != nil {
			if err := s.Store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close checkpoint store: %w", err))
			}
		}
		if s.History != nil {
			if err := s.History.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close history: %w", err))
			}
		}
		if err := s.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		s.closeErr = errors.Join(errs...)
		s.logger.Info("training session closed", zap.Error(s.closeErr))
	})
	return s.closeErr
}
