package errors

import (
	"context"
	"runtime"
	"time"

	"github.com/docpipe/rag-go/internal/interfaces"
)

// ErrorLogger 错误日志器，管道侧（非HTTP）的错误出口
type ErrorLogger struct {
	logger interfaces.LoggerInterface
}

// NewErrorLogger 创建错误日志器
func NewErrorLogger(logger interfaces.LoggerInterface) *ErrorLogger {
	return &ErrorLogger{
		logger: logger,
	}
}

// LogError 记录错误
func (el *ErrorLogger) LogError(ctx context.Context, err error, fields map[string]interface{}) {
	if err == nil {
		return
	}

	appErr := GetAppError(err)

	logFields := map[string]interface{}{
		"error_code":    string(appErr.Code),
		"error_type":    getErrorTypeString(appErr.Type),
		"error_message": appErr.Message,
		"timestamp":     time.Now().Format(time.RFC3339),
	}

	if appErr.RequestID != "" {
		logFields["request_id"] = appErr.RequestID
	}

	for k, v := range fields {
		logFields[k] = v
	}

	// 系统错误带堆栈
	if appErr.Type == ErrorTypeSystem {
		logFields["stack_trace"] = el.getStackTrace()
	}

	if appErr.Details != nil {
		logFields["error_details"] = appErr.Details
	}

	if appErr.Cause != nil {
		logFields["cause"] = appErr.Cause.Error()
	}

	switch appErr.Type {
	case ErrorTypeSystem:
		el.logger.Error("System error", logFields)
	case ErrorTypeBusiness:
		el.logger.Warn("Business error", logFields)
	case ErrorTypeValidation:
		el.logger.Info("Validation error", logFields)
	case ErrorTypeExternal:
		el.logger.Warn("External service error", logFields)
	default:
		el.logger.Error("Unknown error type", logFields)
	}
}

// LogPipelineError 记录处理某个对象时的管道错误
func (el *ErrorLogger) LogPipelineError(ctx context.Context, stage, source string, err error) {
	el.LogError(ctx, err, map[string]interface{}{
		"stage":  stage,
		"source": source,
	})
}

// LogRecover 记录panic恢复
func (el *ErrorLogger) LogRecover(ctx context.Context, recovered interface{}, stackTrace string) {
	logFields := map[string]interface{}{
		"panic_value": recovered,
		"stack_trace": stackTrace,
		"timestamp":   time.Now().Format(time.RFC3339),
	}

	el.logger.Error("Panic recovered", logFields)
}

// getStackTrace 获取堆栈跟踪
func (el *ErrorLogger) getStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
