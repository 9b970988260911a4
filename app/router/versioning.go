package router

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/beego/beego/v2/server/web"
	beecontext "github.com/beego/beego/v2/server/web/context"

	"github.com/docpipe/rag-go/internal/errors"
)

// APIVersion API版本
type APIVersion string

const (
	APIVersionV1 APIVersion = "v1"
)

// DefaultVersion 未指定版本时使用的版本
const DefaultVersion = APIVersionV1

// SupportedVersions 当前支持的版本列表
var SupportedVersions = []APIVersion{APIVersionV1}

// VersionMiddleware 版本控制中间件，只对/api/路径生效
func VersionMiddleware(errorHandler *errors.ErrorHandler) web.FilterFunc {
	return func(ctx *beecontext.Context) {
		if !strings.HasPrefix(ctx.Input.URI(), "/api/") {
			return
		}

		version := extractVersion(ctx)

		if !isVersionSupported(version) {
			err := errors.NewBusinessError(errors.ErrCodeBadRequest,
				fmt.Sprintf("API version '%s' is not supported", version))
			if errorHandler != nil {
				errorHandler.Handle(ctx.ResponseWriter, ctx.Request, err)
			} else {
				ctx.Output.SetStatus(http.StatusBadRequest)
				ctx.Output.Header("Content-Type", "application/json")
				ctx.Output.Body([]byte(`{"error": {"code": "BAD_REQUEST", "message": "Unsupported API version"}}`))
			}
			return
		}

		ctx.Input.SetData("api_version", string(version))
		ctx.Output.Header("X-API-Version", string(version))
	}
}

// extractVersion 从请求中提取API版本
func extractVersion(ctx *beecontext.Context) APIVersion {
	// 优先级1: URL路径 (/api/v1/query)
	if version := extractVersionFromPath(ctx.Input.URI()); version != "" {
		return version
	}

	// 优先级2: 自定义头 (X-API-Version: v1)
	if header := ctx.Input.Header("X-API-Version"); header != "" {
		return APIVersion(header)
	}

	return DefaultVersion
}

// extractVersionFromPath 从URL路径提取版本
func extractVersionFromPath(path string) APIVersion {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "api" && strings.HasPrefix(parts[1], "v") {
		version := parts[1]
		if _, err := strconv.Atoi(version[1:]); err == nil {
			return APIVersion(version)
		}
	}
	return ""
}

// isVersionSupported 检查版本是否支持
func isVersionSupported(version APIVersion) bool {
	for _, supported := range SupportedVersions {
		if supported == version {
			return true
		}
	}
	return false
}

// VersionInfoController 版本信息控制器
type VersionInfoController struct {
	web.Controller
}

// GetVersions 获取版本信息
func (vic *VersionInfoController) GetVersions() {
	vic.Data["json"] = map[string]interface{}{
		"default_version":    DefaultVersion,
		"supported_versions": SupportedVersions,
	}
	vic.ServeJSON()
}
