package middleware

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/docpipe/rag-go/internal/config"
	"github.com/docpipe/rag-go/internal/logger"
	"go.uber.org/zap"
)

// MinIOService MinIO对象存储服务
type MinIOService struct {
	client *minio.Client
	config config.ObjectStorageConfig
}

var globalMinIOService *MinIOService

// NewMinIOService 创建MinIO服务实例
func NewMinIOService() (*MinIOService, error) {
	if globalMinIOService != nil {
		return globalMinIOService, nil
	}

	cfg := config.AppConfig.Storage
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint not configured")
	}

	// minio.New 的 endpoint 不带协议前缀
	endpoint := cfg.Endpoint
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	service := &MinIOService{
		client: client,
		config: cfg,
	}

	// 默认bucket不存在时创建，MinIO可能还在启动所以带重试
	if cfg.Bucket != "" {
		if err := service.ensureBucket(cfg.Bucket); err != nil {
			return nil, err
		}
	}

	globalMinIOService = service
	return service, nil
}

// ensureBucket 确保bucket存在
func (s *MinIOService) ensureBucket(bucket string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var exists bool
	var err error
	for i := 0; i < 5; i++ {
		exists, err = s.client.BucketExists(ctx, bucket)
		if err == nil {
			break
		}
		if i < 4 {
			waitTime := time.Second * time.Duration((i+1)*2)
			logger.Warn("MinIO连接失败，稍后重试",
				zap.Int("attempt", i+1),
				zap.Duration("wait", waitTime),
				zap.Error(err))
			time.Sleep(waitTime)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}

	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "BucketAlreadyExists") ||
			strings.Contains(errStr, "BucketAlreadyOwnedByYou") {
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}

	logger.Info("MinIO bucket created", zap.String("bucket", bucket))
	return nil
}

// GetMinIOService 获取全局MinIO服务实例
func GetMinIOService() *MinIOService {
	return globalMinIOService
}

// IsHealthy 检查MinIO服务是否健康
func (s *MinIOService) IsHealthy() bool {
	return s != nil && s.client != nil
}

// HealthCheck 执行健康检查
func (s *MinIOService) HealthCheck() error {
	if !s.IsHealthy() {
		return fmt.Errorf("MinIO client not initialized")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.client.ListBuckets(ctx)
	return err
}

// Ready 服务是否可用
func (s *MinIOService) Ready() bool {
	return s.IsHealthy()
}

// FetchObject 拉取对象内容，返回数据与content type
func (s *MinIOService) FetchObject(ctx context.Context, bucket, key string) ([]byte, string, error) {
	if s == nil || s.client == nil {
		return nil, "", fmt.Errorf("minio client not initialized")
	}
	if bucket == "" {
		bucket = s.config.Bucket
	}

	object, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	defer object.Close()

	stat, err := object.Stat()
	if err != nil {
		return nil, "", err
	}

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read object %s/%s: %w", bucket, key, err)
	}

	contentType := stat.ContentType
	if contentType == "" {
		contentType = "text/plain"
	}

	return data, contentType, nil
}

// ListObjects 列出bucket下指定前缀的全部对象键
func (s *MinIOService) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("minio client not initialized")
	}
	if bucket == "" {
		bucket = s.config.Bucket
	}

	var keys []string
	for object := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects in %s: %w", bucket, object.Err)
		}
		keys = append(keys, object.Key)
	}

	return keys, nil
}

// ObjectExists 检查对象是否存在
func (s *MinIOService) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	if s == nil || s.client == nil {
		return false, fmt.Errorf("minio client not initialized")
	}
	if bucket == "" {
		bucket = s.config.Bucket
	}

	_, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}

	return true, nil
}
