package logger

import (
	"sort"

	"go.uber.org/zap"

	"github.com/docpipe/rag-go/internal/interfaces"
)

// zapAdapter 让zap满足interfaces.LoggerInterface
type zapAdapter struct {
	sugar *zap.SugaredLogger
}

// NewInterfaceAdapter 包装zap.Logger为通用日志接口
func NewInterfaceAdapter(l *zap.Logger) interfaces.LoggerInterface {
	return &zapAdapter{sugar: l.Sugar()}
}

// normalizeFields 调用方可能传键值对，也可能传单个map，统一成键值对
func normalizeFields(fields []interface{}) []interface{} {
	if len(fields) == 1 {
		if m, ok := fields[0].(map[string]interface{}); ok {
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			kvs := make([]interface{}, 0, len(m)*2)
			for _, k := range keys {
				kvs = append(kvs, k, m[k])
			}
			return kvs
		}
	}
	return fields
}

func (a *zapAdapter) Info(msg string, fields ...interface{}) {
	a.sugar.Infow(msg, normalizeFields(fields)...)
}

func (a *zapAdapter) Error(msg string, fields ...interface{}) {
	a.sugar.Errorw(msg, normalizeFields(fields)...)
}

func (a *zapAdapter) Debug(msg string, fields ...interface{}) {
	a.sugar.Debugw(msg, normalizeFields(fields)...)
}

func (a *zapAdapter) Warn(msg string, fields ...interface{}) {
	a.sugar.Warnw(msg, normalizeFields(fields)...)
}

func (a *zapAdapter) Fatal(msg string, fields ...interface{}) {
	a.sugar.Fatalw(msg, normalizeFields(fields)...)
}

func (a *zapAdapter) With(fields ...interface{}) interfaces.LoggerInterface {
	return &zapAdapter{sugar: a.sugar.With(normalizeFields(fields)...)}
}

func (a *zapAdapter) WithError(err error) interfaces.LoggerInterface {
	return &zapAdapter{sugar: a.sugar.With("error", err)}
}
