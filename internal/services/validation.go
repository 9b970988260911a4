package services

import (
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/docpipe/rag-go/internal/errors"
)

// 校验器实例可以复用，Struct调用是并发安全的
var validate = validator.New()

// QueryRequest 查询接口的请求体
type QueryRequest struct {
	Query      string `json:"query" validate:"required"`
	SearchOnly bool   `json:"search_only"`
}

// ValidateQueryRequest 校验查询请求。query缺失或全空白都按同一个错误处理。
func ValidateQueryRequest(req *QueryRequest) error {
	if err := validate.Struct(req); err != nil {
		if _, ok := err.(validator.ValidationErrors); ok {
			return apperrors.NewValidationError("Query parameter is required")
		}
		return err
	}

	if strings.TrimSpace(req.Query) == "" {
		return apperrors.NewValidationError("Query parameter is required")
	}

	return nil
}

// StatusRequest 入库状态查询参数
type StatusRequest struct {
	Source string `validate:"required"`
}

// ValidateStatusRequest 校验状态查询，source必须是s3://bucket/key形式
func ValidateStatusRequest(req *StatusRequest) error {
	if err := validate.Struct(req); err != nil {
		if _, ok := err.(validator.ValidationErrors); ok {
			return apperrors.NewValidationError("Source parameter is required")
		}
		return err
	}

	if !strings.HasPrefix(req.Source, "s3://") || strings.TrimPrefix(req.Source, "s3://") == "" {
		return apperrors.NewInvalidInputError("source", "must look like s3://bucket/key")
	}

	return nil
}
