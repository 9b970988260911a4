package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/beego/beego/v2/server/web"
	bcontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"

	"github.com/docpipe/rag-go/app/bootstrap"
	"github.com/docpipe/rag-go/app/controllers"
	appmw "github.com/docpipe/rag-go/app/middleware"
	"github.com/docpipe/rag-go/app/router"
	"github.com/docpipe/rag-go/internal/config"
	"github.com/docpipe/rag-go/internal/di"
	"github.com/docpipe/rag-go/internal/errors"
	"github.com/docpipe/rag-go/internal/logger"
	"github.com/docpipe/rag-go/internal/services"
)

func main() {
	// 在bootstrap之前给端口一个默认值
	web.BConfig.Listen.HTTPPort = 8000

	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()
	bootstrap.SetGlobalApp(app)

	cfg := config.AppConfig

	// 配置加载后用最终端口，SERVER_PORT环境变量优先级最高
	if p, err := strconv.Atoi(cfg.Server.Port); err == nil {
		web.BConfig.Listen.HTTPPort = p
	}
	if sp := os.Getenv("SERVER_PORT"); sp != "" {
		if p, err := strconv.Atoi(sp); err == nil {
			web.BConfig.Listen.HTTPPort = p
		}
	}

	// 构建依赖容器并把服务接到控制器单例上
	container := di.InitContainer()
	if err := di.RegisterProviders(container); err != nil {
		log.Fatalf("failed to register providers: %v", err)
	}
	factory := controllers.NewControllerFactory(container)
	if err := factory.WireControllers(); err != nil {
		log.Fatalf("failed to wire controllers: %v", err)
	}

	loggerAdapter := logger.NewInterfaceAdapter(logger.GetLogger())
	errorHandler := errors.NewErrorHandler(loggerAdapter, errors.NewErrorTranslator())
	security := appmw.NewSecurityMiddleware(securityConfig(cfg), loggerAdapter, errorHandler)

	// panic统一返回JSON错误响应，不落到Beego默认错误页
	web.BConfig.RecoverFunc = func(bctx *bcontext.Context, _ *web.Config) {
		if recovered := recover(); recovered != nil {
			if recovered == web.ErrAbort {
				return
			}
			errorHandler.HandlePanic(bctx.ResponseWriter, bctx.Request, recovered)
		}
	}

	manager := appmw.NewMiddlewareManager(loggerAdapter, errorHandler, services.NewMetricsService())
	manager.SetupDefaultMiddlewares(security)
	manager.ApplyAllFilters()

	// 初始化路由
	router.Init(security, errorHandler)

	// 配置Beego全局设置
	web.BConfig.AppName = "RAG Query API"
	// 控制器要读POST体，必须开启请求体拷贝
	web.BConfig.CopyRequestBody = true

	logger.Info("🚀 Starting RAG Query API",
		zap.Int("port", web.BConfig.Listen.HTTPPort),
		zap.String("env", cfg.Server.Env),
		zap.String("vector_store", cfg.VectorStore.Type))
	web.Run()
}

// securityConfig 从应用配置与环境变量组装安全中间件配置
func securityConfig(cfg *config.Config) *appmw.SecurityConfig {
	sc := &appmw.SecurityConfig{
		EnableAuth:        cfg.Auth.Enabled,
		JWTSecret:         cfg.Auth.JWTSecret,
		EnableRateLimit:   true,
		RateLimitRequests: 60,
		RateLimitWindow:   time.Minute,
	}

	if v := os.Getenv("RATE_LIMIT_ENABLED"); v == "false" {
		sc.EnableRateLimit = false
	}
	if v := os.Getenv("RATE_LIMIT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			sc.RateLimitRequests = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			sc.RateLimitWindow = time.Duration(n) * time.Second
		}
	}

	return sc
}
