package controllers

import (
	"github.com/beego/beego/v2/server/web"

	"github.com/docpipe/rag-go/internal/services"
)

// MetricsController 指标控制器
type MetricsController struct {
	web.Controller
	metricsService *services.MetricsService
}

// Prepare 初始化控制器
func (c *MetricsController) Prepare() {
	// 指标注册是幂等的，直接创建即可
	c.metricsService = services.NewMetricsService()
}

// Metrics 返回Prometheus格式的指标
func (c *MetricsController) Metrics() {
	c.metricsService.ServeHTTP(c.Ctx.ResponseWriter, c.Ctx.Request)
}
