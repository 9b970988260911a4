package controllers

import (
	"github.com/docpipe/rag-go/internal/errors"
	"github.com/docpipe/rag-go/internal/events"
	"github.com/docpipe/rag-go/internal/middleware"
	"github.com/docpipe/rag-go/internal/services"
)

// StatusController 入库状态控制器
type StatusController struct {
	BaseController
}

// GetIngestStatus 查询某个来源最近一次入库的状态
// GET /api/v1/ingest/status?source=s3://bucket/key
func (c *StatusController) GetIngestStatus() {
	req := services.StatusRequest{Source: c.GetString("source")}
	if err := services.ValidateStatusRequest(&req); err != nil {
		c.HandleError(err)
		return
	}

	rs := middleware.GetRedisService()
	if rs == nil || !rs.Ready() {
		c.HandleError(errors.NewSystemError(errors.ErrCodeInternalServer, "Status tracking is not available"))
		return
	}

	status, err := rs.GetIngestStatus(c.Ctx.Request.Context(), req.Source)
	if err != nil {
		c.HandleError(errors.NewExternalError(errors.ErrCodeExternalService, "Failed to read ingest status").WithCause(err))
		return
	}
	if status == nil {
		// 状态记录带TTL会过期，对象仍在存储里时报untracked而不是404
		if c.objectInStorage(req.Source) {
			c.JSON(200, &middleware.IngestStatus{Source: req.Source, Status: "untracked"})
			return
		}
		c.HandleError(errors.NewNotFoundError("Ingest status"))
		return
	}

	c.JSON(200, status)
}

// objectInStorage 检查来源对象当前是否存在于对象存储
func (c *StatusController) objectInStorage(source string) bool {
	ref, err := events.ParseSource(source)
	if err != nil {
		return false
	}

	ms := middleware.GetMinIOService()
	if ms == nil || !ms.Ready() {
		return false
	}

	exists, err := ms.ObjectExists(c.Ctx.Request.Context(), ref.Bucket, ref.Key)
	if err != nil {
		return false
	}
	return exists
}
