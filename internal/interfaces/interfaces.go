package interfaces

import (
	"context"
	"encoding/json"
)

// LoggerInterface 日志接口 (匹配zap.Logger)
type LoggerInterface interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	With(fields ...interface{}) LoggerInterface
	WithError(err error) LoggerInterface
	Fatal(msg string, fields ...interface{})
}

// QueryServiceInterface 查询服务接口，HTTP控制器依赖它
type QueryServiceInterface interface {
	Query(ctx context.Context, query string, searchOnly bool) (json.RawMessage, error)
}

// ObjectStoreInterface 对象存储接口，摄取管道依赖它
type ObjectStoreInterface interface {
	FetchObject(ctx context.Context, bucket, key string) ([]byte, string, error)
	Ready() bool
}
