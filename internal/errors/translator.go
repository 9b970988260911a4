package errors

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/minio/minio-go/v7"
	openai "github.com/sashabaranov/go-openai"
)

// ErrorTranslator 错误转换器
type ErrorTranslator struct{}

// NewErrorTranslator 创建错误转换器
func NewErrorTranslator() *ErrorTranslator {
	return &ErrorTranslator{}
}

// Translate 将各种类型的错误转换为AppError
func (t *ErrorTranslator) Translate(err error) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，直接返回
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}

	switch e := err.(type) {
	case validator.ValidationErrors:
		return t.translateValidationErrors(e)
	case *net.OpError:
		return t.translateNetworkError(e)
	}

	// 对象存储错误
	var minioErr minio.ErrorResponse
	if errors.As(err, &minioErr) {
		return t.translateStorageError(minioErr)
	}

	// 模型服务错误
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewExternalError(ErrCodeEmbeddingError, "Model provider request failed").WithCause(err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewExternalError(ErrCodeTimeout, "Operation timed out").WithCause(err)
	}

	errMsg := err.Error()

	// 向量存储连接类错误
	if t.isVectorStoreError(err) {
		return NewExternalError(ErrCodeVectorStore, "Vector store operation failed").WithCause(err)
	}

	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "no such host") {
		return NewExternalError(ErrCodeExternalService, "External service unavailable").WithCause(err)
	}

	// 默认系统错误
	return NewSystemError(ErrCodeInternalServer, "Internal server error").WithCause(err)
}

// translateValidationErrors 转换验证错误
func (t *ErrorTranslator) translateValidationErrors(validationErrors validator.ValidationErrors) *AppError {
	var details []map[string]interface{}

	for _, fieldError := range validationErrors {
		detail := map[string]interface{}{
			"field":   fieldError.Field(),
			"tag":     fieldError.Tag(),
			"message": t.getValidationErrorMessage(fieldError),
		}
		details = append(details, detail)
	}

	return NewValidationError("Validation failed").
		WithDetails(map[string]interface{}{
			"errors": details,
		})
}

// translateNetworkError 转换网络错误
func (t *ErrorTranslator) translateNetworkError(netErr *net.OpError) *AppError {
	if netErr.Timeout() {
		return NewExternalError(ErrCodeTimeout, "Operation timed out").WithCause(netErr)
	}

	return NewExternalError(ErrCodeExternalService, "Network error").WithCause(netErr)
}

// translateStorageError 转换对象存储错误
func (t *ErrorTranslator) translateStorageError(minioErr minio.ErrorResponse) *AppError {
	switch minioErr.Code {
	case "NoSuchKey", "NoSuchBucket":
		return NewBusinessError(ErrCodeObjectNotFound, "Object not found in storage").WithCause(minioErr)
	case "AccessDenied":
		return NewSystemError(ErrCodeStorageError, "Storage access denied").WithCause(minioErr)
	default:
		return NewExternalError(ErrCodeStorageError, "Object storage operation failed").WithCause(minioErr)
	}
}

// isVectorStoreError 检查是否为向量后端错误
func (t *ErrorTranslator) isVectorStoreError(err error) bool {
	errMsg := strings.ToLower(err.Error())

	vectorKeywords := []string{
		"milvus", "collection", "elasticsearch", "elastic:", "knn",
		"dense_vector", "index_not_found",
	}

	for _, keyword := range vectorKeywords {
		if strings.Contains(errMsg, keyword) {
			return true
		}
	}

	return false
}

// getValidationErrorMessage 获取验证错误消息
func (t *ErrorTranslator) getValidationErrorMessage(fieldError validator.FieldError) string {
	field := fieldError.Field()
	tag := fieldError.Tag()

	switch tag {
	case "required":
		return field + " is required"
	case "min":
		return field + " must be at least " + fieldError.Param()
	case "max":
		return field + " must be at most " + fieldError.Param()
	case "oneof":
		return field + " must be one of: " + fieldError.Param()
	default:
		return field + " is invalid"
	}
}

