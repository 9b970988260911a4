package controllers

import (
	"net/http"
	"strings"

	"github.com/beego/beego/v2/server/web"

	"github.com/docpipe/rag-go/internal/errors"
)

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	c.ServeJSON()
}

// JSONSuccess writes a standard success envelope.
func (c *BaseController) JSONSuccess(data interface{}) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONRaw writes pre-encoded JSON bytes as-is.
func (c *BaseController) JSONRaw(payload []byte) {
	c.Ctx.Output.Header("Content-Type", "application/json; charset=utf-8")
	c.Ctx.Output.SetStatus(http.StatusOK)
	c.Ctx.Output.Body(payload)
}

// HandleError translates any error into the shared error envelope.
func (c *BaseController) HandleError(err error) {
	if handler := wiredErrorHandler(); handler != nil {
		handler.Handle(c.Ctx.ResponseWriter, c.Ctx.Request, err)
		return
	}

	appErr := errors.GetAppError(err)
	c.JSON(appErr.HTTPCode, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    string(appErr.Code),
			"message": appErr.Message,
		},
	})
}

// getClientIP 获取客户端真实IP地址
func (c *BaseController) getClientIP() string {
	// 尝试从X-Forwarded-For头获取（代理服务器）
	xForwardedFor := c.Ctx.Input.Header("X-Forwarded-For")
	if xForwardedFor != "" {
		// X-Forwarded-For可能包含多个IP，取第一个
		ips := strings.Split(xForwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}

	// 尝试从X-Real-IP头获取
	xRealIP := c.Ctx.Input.Header("X-Real-IP")
	if xRealIP != "" {
		return xRealIP
	}

	// 回退到RemoteAddr
	return c.Ctx.Input.IP()
}
