package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestChecker_Basic(t *testing.T) {
	checker := NewChecker(testLogger())
	checker.Register("vector_store", func(ctx context.Context) error { return nil })
	checker.Register("object_storage", func(ctx context.Context) error { return nil })

	ctx := context.Background()
	require.NoError(t, checker.Check(ctx))
	assert.True(t, checker.IsHealthy())

	results := checker.Results()
	require.Len(t, results, 2)
	assert.True(t, results["vector_store"].Healthy)
	assert.True(t, results["object_storage"].Healthy)
}

func TestChecker_FailureAndRecovery(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)

	checker := NewChecker(testLogger())
	checker.Register("vector_store", func(ctx context.Context) error {
		if failing.Load() {
			return errors.New("connection refused")
		}
		return nil
	})

	ctx := context.Background()

	// 依赖失败时整体不健康
	err := checker.Check(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector_store")
	assert.False(t, checker.IsHealthy())
	assert.Equal(t, "connection refused", checker.Results()["vector_store"].LastError)

	// 依赖恢复后整体恢复
	failing.Store(false)
	require.NoError(t, checker.Check(ctx))
	assert.True(t, checker.IsHealthy())
	assert.Empty(t, checker.Results()["vector_store"].LastError)
}

func TestChecker_OptionalProbeDoesNotFailOverall(t *testing.T) {
	checker := NewChecker(testLogger())
	checker.Register("vector_store", func(ctx context.Context) error { return nil })
	checker.RegisterOptional("redis", func(ctx context.Context) error {
		return errors.New("redis unavailable")
	})

	require.NoError(t, checker.Check(context.Background()))
	assert.True(t, checker.IsHealthy())

	results := checker.Results()
	assert.False(t, results["redis"].Healthy)
	assert.True(t, results["redis"].Optional)
	assert.True(t, results["vector_store"].Healthy)
}

func TestChecker_BackgroundMonitoring(t *testing.T) {
	var checks atomic.Int32

	checker := NewChecker(testLogger())
	checker.Register("vector_store", func(ctx context.Context) error {
		checks.Add(1)
		return nil
	})
	checker.SetCheckInterval(50 * time.Millisecond) // 快速检查间隔

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	go checker.Start(ctx)

	// 等待几轮检查执行
	time.Sleep(300 * time.Millisecond)
	checker.Stop()

	assert.True(t, checker.IsHealthy())
	assert.GreaterOrEqual(t, checks.Load(), int32(2))
}

func TestChecker_WaitForHealthy(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)

	checker := NewChecker(testLogger())
	checker.SetRetryConfig(10*time.Millisecond, 1)
	checker.Register("vector_store", func(ctx context.Context) error {
		if failing.Load() {
			return errors.New("not ready")
		}
		return nil
	})

	// 依赖在1秒后恢复
	go func() {
		time.Sleep(1200 * time.Millisecond)
		failing.Store(false)
	}()

	err := checker.WaitForHealthy(context.Background(), 5*time.Second)
	assert.NoError(t, err)
	assert.True(t, checker.IsHealthy())
}

func TestChecker_WaitForHealthyTimeout(t *testing.T) {
	checker := NewChecker(testLogger())
	checker.Register("vector_store", func(ctx context.Context) error {
		return errors.New("permanently down")
	})

	err := checker.WaitForHealthy(context.Background(), 1500*time.Millisecond)
	assert.Error(t, err)
	assert.False(t, checker.IsHealthy())
}
