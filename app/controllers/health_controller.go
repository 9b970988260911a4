package controllers

import (
	"net/http"

	"github.com/docpipe/rag-go/app/bootstrap"
	"github.com/docpipe/rag-go/internal/middleware"
	"github.com/docpipe/rag-go/internal/services"
)

// RootController 根控制器
type RootController struct {
	BaseController
}

func (c *RootController) Index() {
	c.JSONSuccess(map[string]string{"message": "RAG Pipeline API"})
}

// HealthController 健康检查控制器
type HealthController struct {
	BaseController
}

// Health 汇总各中间件的健康状态，任一核心组件不健康时返回503
func (c *HealthController) Health() {
	components := middleware.CheckHealth()

	// 服务发现与密钥后端启用时一并上报
	if app := bootstrap.GetApp(); app != nil {
		for name, status := range app.InfraHealth(c.Ctx.Request.Context()) {
			components[name] = status
		}
	}

	overall := middleware.OverallStatus(components)

	status := http.StatusOK
	if overall != "healthy" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, map[string]interface{}{
		"status":           overall,
		"components":       components,
		"circuit_breakers": services.AllCircuitBreakerStats(),
	})
}

// Ready 就绪探针，向量存储可用才算就绪
func (c *HealthController) Ready() {
	store := middleware.GetVectorStore()
	if store == nil || !store.Ready() {
		c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"ready": false,
		})
		return
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"ready":   true,
		"backend": store.Name(),
	})
}
