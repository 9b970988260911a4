package router

import (
	"github.com/beego/beego/v2/server/web"

	"github.com/docpipe/rag-go/app/controllers"
	"github.com/docpipe/rag-go/app/middleware"
	"github.com/docpipe/rag-go/internal/auth"
	"github.com/docpipe/rag-go/internal/errors"
)

// Init registers all routes. Must be called after config is loaded.
func Init(security *middleware.SecurityMiddleware, errorHandler *errors.ErrorHandler) {
	web.Router("/", &controllers.RootController{}, "get:Index")
	web.Router("/health", &controllers.HealthController{}, "get:Health")
	web.Router("/ready", &controllers.HealthController{}, "get:Ready")
	web.Router("/metrics", &controllers.MetricsController{}, "get:Metrics")

	// 查询入口，/query是主路径，/api/v1/query是带版本的别名
	queryController := &controllers.QueryController{}
	web.Router("/query", queryController, "post:Post")
	web.Router("/api/v1/query", queryController, "post:Post")

	// 入库状态查询
	statusController := &controllers.StatusController{}
	web.Router("/api/v1/ingest/status", statusController, "get:GetIngestStatus")

	// 版本信息
	web.Router("/api/versions", &VersionInfoController{}, "get:GetVersions")

	// 版本检查只覆盖/api/路径
	web.InsertFilter("/api/*", web.BeforeRouter, VersionMiddleware(errorHandler))

	// 按scope给/api/*挂认证过滤器，认证关闭时过滤器直接放行。
	// 裸路径/query不设防，保持与上游系统开放部署的兼容。
	if security != nil {
		web.InsertFilter("/api/v1/query", web.BeforeRouter, security.AuthRequired(auth.ScopeQuery))
		web.InsertFilter("/api/v1/ingest/status", web.BeforeRouter, security.AuthRequired(auth.ScopeStatus))
	}
}
