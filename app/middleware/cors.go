package middleware

import (
	"os"
	"strings"

	"github.com/beego/beego/v2/server/web/context"
)

// CORSMiddleware CORS中间件
func CORSMiddleware(ctx *context.Context) {
	origin := ctx.Input.Header("Origin")

	// 默认对所有源开放，CORS_ALLOWED_ORIGINS逗号分隔可收紧
	allowedOrigins := []string{"*"}
	if env := os.Getenv("CORS_ALLOWED_ORIGINS"); env != "" {
		allowedOrigins = allowedOrigins[:0]
		for _, o := range strings.Split(env, ",") {
			if o = strings.TrimSpace(o); o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}

	wildcard := false
	for _, o := range allowedOrigins {
		if o == "*" {
			wildcard = true
			break
		}
	}

	if wildcard {
		ctx.Output.Header("Access-Control-Allow-Origin", "*")
	} else if origin != "" {
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin {
				ctx.Output.Header("Access-Control-Allow-Origin", origin)
				// 凭证头只配具体源，通配符加凭证会被浏览器拒绝
				ctx.Output.Header("Access-Control-Allow-Credentials", "true")
				break
			}
		}
	}

	ctx.Output.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	ctx.Output.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Accept, Origin")
	ctx.Output.Header("Access-Control-Max-Age", "3600")

	// 处理OPTIONS预检请求
	if ctx.Input.Method() == "OPTIONS" {
		ctx.Output.SetStatus(204)
		ctx.Output.Body([]byte(""))
	}
}
