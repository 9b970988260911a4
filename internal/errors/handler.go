package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/docpipe/rag-go/internal/interfaces"
)

// ErrorHandler 错误处理器，所有HTTP入口的兜底
type ErrorHandler struct {
	logger     interfaces.LoggerInterface
	translator *ErrorTranslator
	monitor    *ErrorMonitor
}

// NewErrorHandler 创建错误处理器
func NewErrorHandler(logger interfaces.LoggerInterface, translator *ErrorTranslator) *ErrorHandler {
	return &ErrorHandler{
		logger:     logger,
		translator: translator,
		monitor:    NewErrorMonitor(),
	}
}

// Handle 处理错误并转换为HTTP响应。响应只带概要信息，细节进日志。
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	start := time.Now()
	appErr := h.translator.Translate(err)

	// 透传网关的X-Request-ID
	if appErr.RequestID == "" {
		if rid := r.Header.Get("X-Request-ID"); rid != "" {
			appErr.WithRequestID(rid)
		}
	}

	if h.monitor != nil {
		h.monitor.RecordError(r.Context(), appErr, r.URL.Path, time.Since(start))
	}

	h.logError(r.Context(), appErr, r)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPCode)

	response := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    string(appErr.Code),
			"message": appErr.Message,
			"type":    getErrorTypeString(appErr.Type),
		},
	}

	if appErr.RequestID != "" {
		response["request_id"] = appErr.RequestID
	}

	// 验证/业务错误可以带详情，系统和外部错误不暴露
	if appErr.Details != nil && shouldIncludeDetails(appErr) {
		response["error"].(map[string]interface{})["details"] = appErr.Details
	}

	jsonResponse, jsonErr := json.Marshal(response)
	if jsonErr != nil {
		h.logger.Error("Failed to marshal error response", "error", jsonErr)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, `{"error": {"code": "INTERNAL_SERVER_ERROR", "message": "Failed to process error response"}}`)
		return
	}

	w.Write(jsonResponse)
}

// HandlePanic 处理panic并转换为错误响应
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	err := fmt.Errorf("panic recovered: %v", recovered)
	appErr := NewSystemError(ErrCodeInternalServer, "Internal server error").WithCause(err)

	h.logger.Error("Panic recovered", "error", err, "stack", stackTrace())

	h.Handle(w, r, appErr)
}

// logError 记录错误日志
func (h *ErrorHandler) logError(ctx context.Context, appErr *AppError, r *http.Request) {
	fields := map[string]interface{}{
		"error_code":  string(appErr.Code),
		"error_type":  getErrorTypeString(appErr.Type),
		"http_code":   appErr.HTTPCode,
		"method":      r.Method,
		"path":        r.URL.Path,
		"user_agent":  r.Header.Get("User-Agent"),
		"remote_addr": getClientIP(r),
	}

	if appErr.RequestID != "" {
		fields["request_id"] = appErr.RequestID
	}

	if appErr.Cause != nil {
		fields["cause"] = appErr.Cause.Error()
	}

	// 根据错误类型选择日志级别
	switch appErr.Type {
	case ErrorTypeSystem:
		h.logger.WithError(appErr).Error("System error occurred", fields)
	case ErrorTypeBusiness:
		h.logger.WithError(appErr).Warn("Business error occurred", fields)
	case ErrorTypeValidation:
		h.logger.WithError(appErr).Info("Validation error occurred", fields)
	case ErrorTypeExternal:
		h.logger.WithError(appErr).Warn("External service error occurred", fields)
	default:
		h.logger.WithError(appErr).Error("Unknown error type occurred", fields)
	}
}

// getErrorTypeString 获取错误类型字符串
func getErrorTypeString(errorType ErrorType) string {
	switch errorType {
	case ErrorTypeSystem:
		return "system"
	case ErrorTypeBusiness:
		return "business"
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeExternal:
		return "external"
	default:
		return "unknown"
	}
}

// shouldIncludeDetails 判断是否应该包含错误详情
func shouldIncludeDetails(appErr *AppError) bool {
	switch appErr.Type {
	case ErrorTypeValidation, ErrorTypeBusiness:
		return true
	default:
		return false
	}
}

// getClientIP 获取客户端IP地址
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For可能包含多个IP，取第一个
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	return strings.Split(r.RemoteAddr, ":")[0]
}

func stackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
