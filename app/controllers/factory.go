package controllers

import (
	"sync"

	"go.uber.org/dig"

	"github.com/docpipe/rag-go/internal/errors"
	"github.com/docpipe/rag-go/internal/interfaces"
	"github.com/docpipe/rag-go/internal/services"
)

// Beego每次请求都会新建控制器实例，依赖只能在进程级别接好，
// Prepare()再从这里取。
var (
	wiredMu           sync.RWMutex
	wiredQueryService interfaces.QueryServiceInterface
	wiredHandler      *errors.ErrorHandler
)

func wiredErrorHandler() *errors.ErrorHandler {
	wiredMu.RLock()
	defer wiredMu.RUnlock()
	return wiredHandler
}

func wiredQuery() interfaces.QueryServiceInterface {
	wiredMu.RLock()
	defer wiredMu.RUnlock()
	return wiredQueryService
}

// ControllerFactory 控制器工厂
type ControllerFactory struct {
	container *dig.Container
}

// NewControllerFactory 创建控制器工厂
func NewControllerFactory(container *dig.Container) *ControllerFactory {
	return &ControllerFactory{
		container: container,
	}
}

// WireControllers 从容器解析控制器依赖并挂到进程级单例上
func (f *ControllerFactory) WireControllers() error {
	return f.container.Invoke(func(qs *services.QueryService, handler *errors.ErrorHandler) {
		wiredMu.Lock()
		defer wiredMu.Unlock()
		wiredQueryService = qs
		wiredHandler = handler
	})
}
