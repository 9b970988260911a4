package middleware

import (
	"fmt"
	"sync"
	"time"

	"github.com/beego/beego/v2/server/web"
	beecontext "github.com/beego/beego/v2/server/web/context"

	"github.com/docpipe/rag-go/internal/auth"
	"github.com/docpipe/rag-go/internal/errors"
	"github.com/docpipe/rag-go/internal/interfaces"
	inmiddleware "github.com/docpipe/rag-go/internal/middleware"
)

// SecurityConfig 安全配置
type SecurityConfig struct {
	EnableAuth        bool
	JWTSecret         string
	EnableRateLimit   bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// SecurityMiddleware 安全中间件
type SecurityMiddleware struct {
	config       *SecurityConfig
	logger       interfaces.LoggerInterface
	errorHandler *errors.ErrorHandler
	rateLimiter  *RateLimiter
	jwtService   *auth.JWTService
}

// NewSecurityMiddleware 创建安全中间件
func NewSecurityMiddleware(config *SecurityConfig, logger interfaces.LoggerInterface, errorHandler *errors.ErrorHandler) *SecurityMiddleware {
	var jwtService *auth.JWTService
	if config.EnableAuth && config.JWTSecret != "" {
		jwtService = auth.NewJWTService(
			config.JWTSecret,
			"rag-pipeline",
			24*time.Hour,
		)
	}

	return &SecurityMiddleware{
		config:       config,
		logger:       logger,
		errorHandler: errorHandler,
		rateLimiter:  NewRateLimiter(config.RateLimitRequests, config.RateLimitWindow),
		jwtService:   jwtService,
	}
}

// AuthRequired 需要指定scope的路由中间件，认证未启用时直接放行
func (sm *SecurityMiddleware) AuthRequired(scope string) web.FilterFunc {
	return func(ctx *beecontext.Context) {
		if !sm.config.EnableAuth || sm.jwtService == nil {
			return
		}

		claims, err := sm.authenticateJWT(ctx)
		if err != nil {
			sm.handleAuthError(ctx, errors.NewBusinessError(errors.ErrCodeUnauthorized, "Authentication required"))
			return
		}

		if !claims.HasScope(scope) {
			sm.handleAuthError(ctx, errors.NewBusinessError(errors.ErrCodeUnauthorized, "Insufficient scope"))
			return
		}

		ctx.Input.SetData("client_id", claims.ClientID)
		ctx.Input.SetData("client_name", claims.Name)
		ctx.Input.SetData("scopes", claims.Scopes)
	}
}

// APIRateLimit API限流中间件，优先使用Redis计数器，不可用时退化为进程内限流
func (sm *SecurityMiddleware) APIRateLimit() web.FilterFunc {
	return func(ctx *beecontext.Context) {
		if !sm.config.EnableRateLimit {
			return
		}

		identity := sm.rateLimitIdentity(ctx)
		endpoint := ctx.Input.Method() + ":" + ctx.Input.URL()

		if rs := inmiddleware.GetRedisService(); rs != nil && rs.Ready() {
			allowed, err := rs.CheckRateLimit(
				ctx.Request.Context(),
				identity,
				endpoint,
				sm.config.RateLimitRequests,
				sm.config.RateLimitWindow,
			)
			if err == nil {
				if !allowed {
					sm.handleAuthError(ctx, errors.NewBusinessError(errors.ErrCodeTooManyRequests, "Rate limit exceeded"))
				}
				return
			}
			// Redis出错时继续走进程内限流
		}

		if !sm.rateLimiter.Allow(identity) {
			sm.handleAuthError(ctx, errors.NewBusinessError(errors.ErrCodeTooManyRequests, "Rate limit exceeded"))
			return
		}
	}
}

// SecurityHeaders 安全头中间件
func (sm *SecurityMiddleware) SecurityHeaders() web.FilterFunc {
	return func(ctx *beecontext.Context) {
		headers := map[string]string{
			"X-Content-Type-Options":    "nosniff",
			"X-Frame-Options":           "DENY",
			"X-XSS-Protection":          "1; mode=block",
			"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
			"Content-Security-Policy":   "default-src 'self'",
			"Referrer-Policy":           "strict-origin-when-cross-origin",
		}

		for key, value := range headers {
			ctx.Output.Header(key, value)
		}
	}
}

// authenticateJWT JWT认证
func (sm *SecurityMiddleware) authenticateJWT(ctx *beecontext.Context) (*auth.JWTClaims, error) {
	authHeader := ctx.Input.Header("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("no authorization header")
	}

	tokenString, err := auth.ExtractTokenFromHeader(authHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to extract token: %w", err)
	}

	claims, err := sm.jwtService.ValidateToken(tokenString)
	if err != nil {
		sm.logger.Warn("JWT validation failed", map[string]interface{}{
			"error": err.Error(),
			"path":  ctx.Input.URI(),
		})
		return nil, fmt.Errorf("invalid JWT token: %w", err)
	}

	return claims, nil
}

// rateLimitIdentity 限流主体，已认证时用client_id，否则用客户端IP
func (sm *SecurityMiddleware) rateLimitIdentity(ctx *beecontext.Context) string {
	if clientID, ok := ctx.Input.GetData("client_id").(string); ok && clientID != "" {
		return clientID
	}
	return getClientIP(ctx)
}

// handleAuthError 处理认证错误
func (sm *SecurityMiddleware) handleAuthError(ctx *beecontext.Context, err error) {
	if sm.errorHandler != nil {
		sm.errorHandler.Handle(ctx.ResponseWriter, ctx.Request, err)
	} else {
		ctx.Output.SetStatus(401)
		ctx.Output.Header("Content-Type", "application/json")
		ctx.Output.Body([]byte(`{"error": {"code": "UNAUTHORIZED", "message": "Authentication failed"}}`))
	}
}

// RateLimiter 简单的内存限流器
type RateLimiter struct {
	requests int
	window   time.Duration
	mu       sync.Mutex
	clients  map[string][]time.Time
}

// NewRateLimiter 创建限流器
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests <= 0 {
		requests = 60
	}
	if window <= 0 {
		window = time.Minute
	}

	rl := &RateLimiter{
		requests: requests,
		window:   window,
		clients:  make(map[string][]time.Time),
	}

	// 启动清理goroutine
	go rl.cleanup()

	return rl
}

// Allow 检查是否允许请求
func (rl *RateLimiter) Allow(identity string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	// 移除过期请求
	validRequests := make([]time.Time, 0)
	for _, reqTime := range rl.clients[identity] {
		if reqTime.After(windowStart) {
			validRequests = append(validRequests, reqTime)
		}
	}

	// 检查是否超过限制
	if len(validRequests) >= rl.requests {
		rl.clients[identity] = validRequests
		return false
	}

	// 添加新请求
	validRequests = append(validRequests, now)
	rl.clients[identity] = validRequests

	return true
}

// cleanup 清理过期数据
func (rl *RateLimiter) cleanup() {
	for {
		time.Sleep(rl.window)

		rl.mu.Lock()
		now := time.Now()
		windowStart := now.Add(-rl.window)

		for identity, requests := range rl.clients {
			validRequests := make([]time.Time, 0)
			for _, reqTime := range requests {
				if reqTime.After(windowStart) {
					validRequests = append(validRequests, reqTime)
				}
			}

			if len(validRequests) == 0 {
				delete(rl.clients, identity)
			} else {
				rl.clients[identity] = validRequests
			}
		}
		rl.mu.Unlock()
	}
}
