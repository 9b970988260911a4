package middleware

import (
	"net/http"
	"strings"

	"github.com/beego/beego/v2/server/web/context"
)

// maxRequestSize 查询请求体上限，查询是短文本，1MB足够
const maxRequestSize = int64(1 * 1024 * 1024)

// ValidationMiddleware 输入验证中间件
// 查询文本是任意自然语言，不对请求体做内容模式扫描，只做结构性检查
func ValidationMiddleware() func(*context.Context) {
	return func(ctx *context.Context) {
		// 1. 路径遍历攻击检测
		if detectPathTraversal(ctx) {
			ctx.Output.SetStatus(http.StatusBadRequest)
			ctx.Output.JSON(map[string]interface{}{
				"error":   "Invalid input detected",
				"message": "Path traversal attempt detected",
				"type":    "path_traversal",
			}, true, false)
			return
		}

		// 2. 请求大小限制
		if detectOversizedRequest(ctx) {
			ctx.Output.SetStatus(http.StatusRequestEntityTooLarge)
			ctx.Output.JSON(map[string]interface{}{
				"error":   "Request too large",
				"message": "Request size exceeds maximum allowed limit",
				"type":    "request_too_large",
			}, true, false)
			return
		}

		// 3. Content-Type验证
		if !validateContentType(ctx) {
			ctx.Output.SetStatus(http.StatusUnsupportedMediaType)
			ctx.Output.JSON(map[string]interface{}{
				"error":   "Unsupported content type",
				"message": "Content-Type header is invalid or unsupported",
				"type":    "invalid_content_type",
			}, true, false)
			return
		}
	}
}

// detectPathTraversal 检测路径遍历攻击，只看URL路径
func detectPathTraversal(ctx *context.Context) bool {
	return containsPathTraversal(ctx.Request.URL.Path)
}

// detectOversizedRequest 检测过大的请求
func detectOversizedRequest(ctx *context.Context) bool {
	// 检查Content-Length头
	if ctx.Request.ContentLength > maxRequestSize {
		return true
	}

	// 对于无法确定大小的请求，检查实际读取的数据量
	if ctx.Request.ContentLength == -1 && ctx.Input.RequestBody != nil {
		if int64(len(ctx.Input.RequestBody)) > maxRequestSize {
			return true
		}
	}

	return false
}

// validateContentType 验证Content-Type
func validateContentType(ctx *context.Context) bool {
	// 只有带请求体的方法需要验证
	method := ctx.Input.Method()
	if method != "POST" && method != "PUT" && method != "PATCH" {
		return true
	}

	contentType := ctx.Request.Header.Get("Content-Type")

	// 允许的Content-Type列表
	allowedTypes := []string{
		"application/json",
		"application/x-www-form-urlencoded",
		"text/plain",
	}

	// 如果没有Content-Type，默认允许
	if contentType == "" {
		return true
	}

	// 检查是否在允许列表中（忽略charset等参数）
	for _, allowed := range allowedTypes {
		if strings.HasPrefix(contentType, allowed) {
			return true
		}
	}

	return false
}

// containsPathTraversal 检查路径遍历特征
func containsPathTraversal(s string) bool {
	s = strings.ToLower(s)

	dangerousPatterns := []string{
		"..",
		"%2e%2e",
		"\\",
		"/etc/",
		"/proc/",
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(s, pattern) {
			return true
		}
	}

	return false
}
