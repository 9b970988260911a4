package middleware

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCacheKey_Deterministic(t *testing.T) {
	a := QueryCacheKey("什么是向量检索", true, "milvus")
	b := QueryCacheKey("什么是向量检索", true, "milvus")

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "query:cache:"))
	// sha256十六进制固定64位
	assert.Len(t, strings.TrimPrefix(a, "query:cache:"), 64)
}

func TestQueryCacheKey_DistinguishesInputs(t *testing.T) {
	base := QueryCacheKey("hello", false, "milvus")

	assert.NotEqual(t, base, QueryCacheKey("hello world", false, "milvus"))
	assert.NotEqual(t, base, QueryCacheKey("hello", true, "milvus"))
	assert.NotEqual(t, base, QueryCacheKey("hello", false, "elasticsearch"))
}

func TestRedisService_NilSafeDegradation(t *testing.T) {
	// Redis未配置时写操作全部降级为no-op，读锁直接放行
	var s *RedisService
	ctx := context.Background()

	assert.False(t, s.Ready())

	require.NoError(t, s.SetIngestStatus(ctx, &IngestStatus{Source: "s3://b/k", Status: "completed"}))
	require.NoError(t, s.SetCachedAnswer(ctx, QueryCacheKey("q", false, "milvus"), []byte("{}"), time.Minute))
	require.NoError(t, s.InvalidateQueryCache(ctx))
	require.NoError(t, s.ReleaseIngestLock(ctx, "s3://b/k"))

	cached, err := s.GetCachedAnswer(ctx, "query:cache:deadbeef")
	require.NoError(t, err)
	assert.Nil(t, cached)

	acquired, err := s.AcquireIngestLock(ctx, "s3://b/k")
	require.NoError(t, err)
	assert.True(t, acquired)

	allowed, err := s.CheckRateLimit(ctx, "10.0.0.1", "/query", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	// 状态查询例外，调用方需要区分“无记录”和“Redis不可用”
	_, err = s.GetIngestStatus(ctx, "s3://b/k")
	assert.Error(t, err)
}
