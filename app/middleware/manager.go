package middleware

import (
	"strings"
	"time"

	"github.com/beego/beego/v2/server/web"
	beecontext "github.com/beego/beego/v2/server/web/context"

	"github.com/docpipe/rag-go/internal/errors"
	"github.com/docpipe/rag-go/internal/interfaces"
	"github.com/docpipe/rag-go/internal/services"
)

// MiddlewareManager 中间件管理器
type MiddlewareManager struct {
	logger        interfaces.LoggerInterface
	errorHandler  *errors.ErrorHandler
	metrics       *services.MetricsService
	globalFilters []web.FilterFunc
	routeFilters  map[string][]web.FilterFunc
	finishFilters []web.FilterFunc
}

// NewMiddlewareManager 创建中间件管理器
func NewMiddlewareManager(logger interfaces.LoggerInterface, errorHandler *errors.ErrorHandler, metrics *services.MetricsService) *MiddlewareManager {
	return &MiddlewareManager{
		logger:        logger,
		errorHandler:  errorHandler,
		metrics:       metrics,
		globalFilters: make([]web.FilterFunc, 0),
		routeFilters:  make(map[string][]web.FilterFunc),
		finishFilters: make([]web.FilterFunc, 0),
	}
}

// AddGlobalFilter 添加全局过滤器
func (mm *MiddlewareManager) AddGlobalFilter(filter web.FilterFunc) {
	mm.globalFilters = append(mm.globalFilters, filter)
}

// AddRouteFilter 添加路由特定过滤器
func (mm *MiddlewareManager) AddRouteFilter(pattern string, filter web.FilterFunc) {
	if mm.routeFilters[pattern] == nil {
		mm.routeFilters[pattern] = make([]web.FilterFunc, 0)
	}
	mm.routeFilters[pattern] = append(mm.routeFilters[pattern], filter)
}

// AddFinishFilter 添加响应完成后执行的过滤器
func (mm *MiddlewareManager) AddFinishFilter(filter web.FilterFunc) {
	mm.finishFilters = append(mm.finishFilters, filter)
}

// ApplyAllFilters 应用所有过滤器
func (mm *MiddlewareManager) ApplyAllFilters() {
	for _, filter := range mm.globalFilters {
		web.InsertFilter("/*", web.BeforeRouter, filter)
	}
	for pattern, filters := range mm.routeFilters {
		for _, filter := range filters {
			web.InsertFilter(pattern, web.BeforeRouter, filter)
		}
	}
	// FinishRouter过滤器必须在输出已写的情况下仍然执行
	for _, filter := range mm.finishFilters {
		web.InsertFilter("/*", web.FinishRouter, filter, web.WithReturnOnOutput(false))
	}
}

// SetupDefaultMiddlewares 设置默认中间件
func (mm *MiddlewareManager) SetupDefaultMiddlewares(security *SecurityMiddleware) {
	// 全局中间件
	mm.AddGlobalFilter(CORSMiddleware)
	mm.AddGlobalFilter(security.SecurityHeaders())
	mm.AddGlobalFilter(ValidationMiddleware())
	mm.AddGlobalFilter(mm.requestTimingFilter())

	// API路由中间件
	mm.AddRouteFilter("/api/*", security.APIRateLimit())

	// 请求日志与HTTP指标
	mm.AddFinishFilter(mm.requestLoggingFilter())
}

// requestTimingFilter 记录请求开始时间
func (mm *MiddlewareManager) requestTimingFilter() web.FilterFunc {
	return func(ctx *beecontext.Context) {
		ctx.Input.SetData("request_start", time.Now())
	}
}

// requestLoggingFilter 请求日志中间件，在FinishRouter阶段执行
func (mm *MiddlewareManager) requestLoggingFilter() web.FilterFunc {
	return func(ctx *beecontext.Context) {
		start, ok := ctx.Input.GetData("request_start").(time.Time)
		if !ok {
			start = time.Now()
		}
		duration := time.Since(start)
		status := ctx.ResponseWriter.Status
		if status == 0 {
			status = 200
		}

		method := ctx.Input.Method()
		path := ctx.Input.URL()

		if mm.metrics != nil {
			mm.metrics.RecordHTTPRequest(method, path, status, duration)
		}

		// 指标和健康探测不刷日志
		if path == "/metrics" || path == "/health" || path == "/ready" {
			return
		}

		fields := map[string]interface{}{
			"method":      method,
			"path":        path,
			"status":      status,
			"duration_ms": duration.Milliseconds(),
			"remote_addr": getClientIP(ctx),
		}

		switch {
		case status >= 500:
			mm.logger.Error("Request completed", fields)
		case status >= 400:
			mm.logger.Warn("Request completed", fields)
		default:
			mm.logger.Info("Request completed", fields)
		}
	}
}

// getClientIP 获取客户端IP
func getClientIP(ctx *beecontext.Context) string {
	// 检查X-Forwarded-For头（代理服务器）
	if xff := ctx.Input.Header("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For可能包含多个IP，取第一个
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	// 检查X-Real-IP头
	if xri := ctx.Input.Header("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// 使用RemoteAddr
	return strings.Split(ctx.Input.IP(), ":")[0]
}
