package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/videoflow/config"
)

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}),
		&gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)
	return mockDB, mock, gormDB
}

func testPoolConfig() PoolConfig {
	return PoolConfig{MaxOpenConns: 4, MaxIdleConns: 2, RetryBackoff: time.Millisecond}
}

func newTestManager(t *testing.T, opts ...PoolOption) (*PoolManager, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, gormDB := setupTestDB(t)
	t.Cleanup(func() { _ = mockDB.Close() })

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return manager, mock
}

func TestNewPoolManager(t *testing.T) {
	_, _, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, testPoolConfig(), nil)
	require.NoError(t, err)
	assert.Same(t, gormDB, manager.DB())
	assert.Equal(t, "postgres", manager.name)
	assert.Equal(t, 4, manager.Stats().MaxOpenConnections)

	_, err = NewPoolManager(nil, testPoolConfig(), nil)
	assert.Error(t, err)
}

func TestPoolManager_Ping(t *testing.T) {
	manager, mock := newTestManager(t)

	mock.ExpectPing()
	assert.NoError(t, manager.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.Error(t, manager.Ping(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransaction(t *testing.T) {
	manager, mock := newTestManager(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, manager.WithTransaction(ctx, func(tx *gorm.DB) error { return nil }))

	mock.ExpectBegin()
	mock.ExpectRollback()
	err := manager.WithTransaction(ctx, func(tx *gorm.DB) error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry(t *testing.T) {
	t.Run("retries deadlock then commits", func(t *testing.T) {
		manager, mock := newTestManager(t)
		mock.ExpectBegin().WillReturnError(errors.New("ERROR: deadlock detected (SQLSTATE 40P01)"))
		mock.ExpectBegin()
		mock.ExpectCommit()

		calls := 0
		err := manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		manager, mock := newTestManager(t)
		for i := 0; i < 2; i++ {
			mock.ExpectBegin().WillReturnError(errors.New("database is locked"))
		}

		err := manager.WithTransactionRetry(context.Background(), 2, func(tx *gorm.DB) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 2 attempts")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("does not retry application errors", func(t *testing.T) {
		manager, mock := newTestManager(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		calls := 0
		err := manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
			calls++
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, 1, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("closed pool", func(t *testing.T) {
		manager, mock := newTestManager(t)
		mock.ExpectClose()
		require.NoError(t, manager.Close())

		err := manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error { return nil })
		assert.ErrorIs(t, err, ErrPoolClosed)
	})
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("pq: deadlock detected"), true},
		{errors.New("ERROR: could not serialize access (SQLSTATE 40001)"), true},
		{errors.New("Error 1205: Lock wait timeout exceeded"), true},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{fmt.Errorf("exec: %w", driver.ErrBadConn), true},
		{errors.New("duplicate key value violates unique constraint"), false},
		{context.Canceled, false},
		{ErrPoolClosed, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryableError(tt.err), "%v", tt.err)
	}
}

func TestPoolManager_Backoff(t *testing.T) {
	pm := &PoolManager{cfg: PoolConfig{RetryBackoff: 100 * time.Millisecond}}
	assert.Equal(t, 100*time.Millisecond, pm.backoff(0))
	assert.Equal(t, 400*time.Millisecond, pm.backoff(2))
	assert.Equal(t, maxRetryBackoff, pm.backoff(10))

	pm.cfg.RetryBackoff = 0
	assert.Zero(t, pm.backoff(3))
}

func TestPoolManager_Close(t *testing.T) {
	manager, mock := newTestManager(t)

	mock.ExpectClose()
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	assert.ErrorIs(t, manager.Ping(context.Background()), ErrPoolClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type fakeStatsRecorder struct {
	database string
	calls    int
}

func (f *fakeStatsRecorder) RecordDBConnections(database string, open, idle int) {
	f.database = database
	f.calls++
}

func TestPoolManager_ReportStats(t *testing.T) {
	rec := &fakeStatsRecorder{}
	manager, _ := newTestManager(t, WithStatsRecorder("history", rec))

	manager.ReportStats()
	assert.Equal(t, "history", rec.database)
	assert.Equal(t, 1, rec.calls)

	bare, _ := newTestManager(t)
	assert.NotPanics(t, bare.ReportStats)
}

func TestPoolManager_HealthCheckLoopStopsOnClose(t *testing.T) {
	_, mock, gormDB := setupTestDB(t)
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 10; i++ {
		mock.ExpectPing()
	}

	cfg := testPoolConfig()
	cfg.HealthCheckInterval = 20 * time.Millisecond
	manager, err := NewPoolManager(gormDB, cfg, zap.NewNop())
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	mock.ExpectClose()
	require.NoError(t, manager.Close())
	assert.ErrorIs(t, manager.Ping(context.Background()), ErrPoolClosed)
}

func TestPoolConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     PoolConfig
		wantErr bool
	}{
		{"defaults", DefaultPoolConfig(), false},
		{"zero open", PoolConfig{MaxOpenConns: 0, MaxIdleConns: 5}, true},
		{"zero idle", PoolConfig{MaxOpenConns: 10, MaxIdleConns: 0}, true},
		{"idle above open", PoolConfig{MaxOpenConns: 5, MaxIdleConns: 10}, true},
		{"negative backoff", PoolConfig{MaxOpenConns: 5, MaxIdleConns: 1, RetryBackoff: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPoolConfigFromDatabase(t *testing.T) {
	cfg := config.DefaultDatabaseConfig()
	pc := PoolConfigFromDatabase(cfg)
	assert.Equal(t, cfg.MaxOpenConns, pc.MaxOpenConns)
	assert.Equal(t, cfg.MaxIdleConns, pc.MaxIdleConns)
	assert.Equal(t, cfg.ConnMaxLifetime, pc.ConnMaxLifetime)
	assert.NoError(t, pc.Validate())
}

func TestOpen_Sqlite(t *testing.T) {
	cfg := config.DefaultDatabaseConfig()
	cfg.Driver = "sqlite"
	cfg.Name = filepath.Join(t.TempDir(), "history.db")

	manager, err := Open(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer manager.Close()

	require.NoError(t, manager.Ping(context.Background()))
	assert.Equal(t, 1, manager.Stats().MaxOpenConnections)
}

func TestOpen_UnknownDriver(t *testing.T) {
	cfg := config.DefaultDatabaseConfig()
	cfg.Driver = "oracle"

	_, err := Open(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestDialector(t *testing.T) {
	for _, driver := range []string{"postgres", "mysql", "sqlite"} {
		cfg := config.DefaultDatabaseConfig()
		cfg.Driver = driver
		d, err := Dialector(cfg)
		require.NoError(t, err)
		assert.Equal(t, driver, d.Name())
	}
}
