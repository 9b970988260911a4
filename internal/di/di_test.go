package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/rag-go/internal/config"
	"github.com/docpipe/rag-go/internal/interfaces"
	"github.com/docpipe/rag-go/internal/rag"
	"github.com/docpipe/rag-go/internal/services"
)

func TestDependencyInjectionContainer(t *testing.T) {
	// 初始化DI容器
	container := InitContainer()
	assert.NotNil(t, container)

	// 验证容器已创建
	assert.NotNil(t, Container)
}

func TestContainerBasicOperations(t *testing.T) {
	container := InitContainer()

	// 测试基本的Provide操作
	type TestService struct {
		Name string
	}

	err := container.Provide(func() *TestService {
		return &TestService{Name: "test"}
	})
	require.NoError(t, err)

	// 测试基本的Invoke操作
	err = container.Invoke(func(svc *TestService) {
		assert.Equal(t, "test", svc.Name)
	})
	assert.NoError(t, err)
}

func TestRegisterProviders(t *testing.T) {
	config.AppConfig = &config.Config{
		Retrieval: config.RetrievalConfig{ChunkSize: 1000, ChunkOverlap: 100},
	}
	defer func() { config.AppConfig = nil }()

	container := InitContainer()
	require.NoError(t, RegisterProviders(container))

	// 不依赖外部中间件的组件可以直接构建
	err := container.Invoke(func(
		cfg *config.Config,
		log interfaces.LoggerInterface,
		parser *rag.ParserManager,
		chunker *rag.Chunker,
		metrics *services.MetricsService,
	) {
		assert.NotNil(t, cfg)
		assert.NotNil(t, log)
		assert.NotNil(t, parser)
		assert.NotNil(t, chunker)
		assert.NotNil(t, metrics)
	})
	assert.NoError(t, err)

	// 向量存储未初始化时解析应失败
	err = container.Invoke(func(store rag.VectorStore) {})
	assert.Error(t, err)
}
