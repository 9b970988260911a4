package controllers

import (
	"encoding/json"

	"github.com/docpipe/rag-go/internal/errors"
	"github.com/docpipe/rag-go/internal/interfaces"
	"github.com/docpipe/rag-go/internal/services"
)

// QueryController 查询控制器
type QueryController struct {
	BaseController
	queryService interfaces.QueryServiceInterface
}

// Prepare 初始化控制器
func (c *QueryController) Prepare() {
	if c.queryService == nil {
		c.queryService = wiredQuery()
	}
}

// Post 处理查询请求
// search_only为true时只返回相似度检索结果，否则走完整的RAG问答
func (c *QueryController) Post() {
	if c.queryService == nil {
		c.HandleError(errors.NewSystemError(errors.ErrCodeInternalServer, "Query service not initialized"))
		return
	}

	var req services.QueryRequest
	if len(c.Ctx.Input.RequestBody) > 0 {
		if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
			c.HandleError(errors.NewValidationError("Invalid JSON request body").WithCause(err))
			return
		}
	}

	if err := services.ValidateQueryRequest(&req); err != nil {
		c.HandleError(err)
		return
	}

	payload, err := c.queryService.Query(c.Ctx.Request.Context(), req.Query, req.SearchOnly)
	if err != nil {
		c.HandleError(err)
		return
	}

	c.JSONRaw(payload)
}
