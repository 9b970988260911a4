package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docpipe/rag-go/internal/config"
)

const (
	ingestStatusKeyPrefix = "ingest:status:"
	ingestLockKeyPrefix   = "lock:ingest:"
	queryCacheKeyPrefix   = "query:cache:"

	ingestStatusTTL = 24 * time.Hour
	ingestLockTTL   = 10 * time.Minute
)

// RedisService Redis缓存服务
type RedisService struct {
	client *redis.Client
}

var globalRedisService *RedisService

// IngestStatus 单个来源最近一次入库的状态
type IngestStatus struct {
	Source    string    `json:"source"`
	Status    string    `json:"status"`
	Chunks    int       `json:"chunks"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InitRedisService 创建Redis服务实例并测试连接
func InitRedisService() (*RedisService, error) {
	if globalRedisService != nil {
		return globalRedisService, nil
	}

	cfg := config.AppConfig
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	globalRedisService = &RedisService{client: rdb}
	return globalRedisService, nil
}

// GetRedisService 获取全局Redis服务实例，未初始化时返回nil
func GetRedisService() *RedisService {
	return globalRedisService
}

// Ready 服务是否可用
func (s *RedisService) Ready() bool {
	return s != nil && s.client != nil
}

// HealthCheck 执行健康检查
func (s *RedisService) HealthCheck() error {
	if !s.Ready() {
		return fmt.Errorf("redis client not initialized")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Close 关闭连接
func (s *RedisService) Close() error {
	if !s.Ready() {
		return nil
	}
	return s.client.Close()
}

// SetIngestStatus 记录来源的入库状态，24小时过期
func (s *RedisService) SetIngestStatus(ctx context.Context, status *IngestStatus) error {
	if !s.Ready() {
		return nil // Redis未配置时静默跳过
	}
	if status == nil || status.Source == "" {
		return fmt.Errorf("ingest status requires a source")
	}

	data, err := json.Marshal(status)
	if err != nil {
		return err
	}

	key := ingestStatusKeyPrefix + status.Source
	return s.client.SetEx(ctx, key, string(data), ingestStatusTTL).Err()
}

// GetIngestStatus 查询来源的入库状态，不存在时返回nil
func (s *RedisService) GetIngestStatus(ctx context.Context, source string) (*IngestStatus, error) {
	if !s.Ready() {
		return nil, fmt.Errorf("redis client not initialized")
	}

	val, err := s.client.Get(ctx, ingestStatusKeyPrefix+source).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var status IngestStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// QueryCacheKey 根据查询内容、模式和后端生成缓存key
func QueryCacheKey(query string, searchOnly bool, backend string) string {
	mode := "answer"
	if searchOnly {
		mode = "search"
	}
	sum := sha256.Sum256([]byte(query + "|" + mode + "|" + backend))
	return queryCacheKeyPrefix + hex.EncodeToString(sum[:])
}

// GetCachedAnswer 读取查询缓存，未命中返回nil
func (s *RedisService) GetCachedAnswer(ctx context.Context, key string) ([]byte, error) {
	if !s.Ready() {
		return nil, nil
	}

	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// SetCachedAnswer 写入查询缓存
func (s *RedisService) SetCachedAnswer(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if !s.Ready() {
		return nil
	}
	if ttl <= 0 {
		return nil
	}
	return s.client.SetEx(ctx, key, payload, ttl).Err()
}

// InvalidateQueryCache 清空查询缓存，入库更新后已有回答可能过时
func (s *RedisService) InvalidateQueryCache(ctx context.Context) error {
	return s.deletePattern(ctx, queryCacheKeyPrefix+"*")
}

// deletePattern 按模式删除key
func (s *RedisService) deletePattern(ctx context.Context, pattern string) error {
	if !s.Ready() {
		return nil
	}

	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if len(keys) > 0 {
		return s.client.Del(ctx, keys...).Err()
	}
	return nil
}

// AcquireIngestLock 获取来源级别的入库锁，防止同一文档并发重建索引
func (s *RedisService) AcquireIngestLock(ctx context.Context, source string) (bool, error) {
	if !s.Ready() {
		return true, nil // Redis未配置时直接放行
	}

	key := ingestLockKeyPrefix + source
	return s.client.SetNX(ctx, key, "locked", ingestLockTTL).Result()
}

// ReleaseIngestLock 释放入库锁
func (s *RedisService) ReleaseIngestLock(ctx context.Context, source string) error {
	if !s.Ready() {
		return nil
	}
	return s.client.Del(ctx, ingestLockKeyPrefix+source).Err()
}

// CheckRateLimit 基于INCR+EXPIRE的窗口限流，identity通常是客户端IP
func (s *RedisService) CheckRateLimit(ctx context.Context, identity, endpoint string, limit int, window time.Duration) (bool, error) {
	if !s.Ready() {
		return true, nil
	}

	key := fmt.Sprintf("rate:limit:%s:%s", identity, endpoint)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}

	// key新建时设置窗口过期
	if count == 1 {
		s.client.Expire(ctx, key, window)
	}

	if count > int64(limit) {
		return false, nil
	}
	return true, nil
}
