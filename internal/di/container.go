package di

import (
	"go.uber.org/dig"
)

// Container 是依赖注入容器的全局实例
var Container *dig.Container

// InitContainer 初始化依赖注入容器
func InitContainer() *dig.Container {
	Container = dig.New()
	return Container
}

