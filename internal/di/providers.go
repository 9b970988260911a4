package di

import (
	"fmt"

	"go.uber.org/dig"

	"github.com/docpipe/rag-go/internal/config"
	"github.com/docpipe/rag-go/internal/errors"
	"github.com/docpipe/rag-go/internal/interfaces"
	"github.com/docpipe/rag-go/internal/logger"
	"github.com/docpipe/rag-go/internal/middleware"
	"github.com/docpipe/rag-go/internal/rag"
	"github.com/docpipe/rag-go/internal/services"
)

// RegisterProviders 注册管道所需的全部依赖提供者。
// Redis、Kafka、MinIO与向量存储的初始化发生在容器构建之前。
func RegisterProviders(container *dig.Container) error {
	// 注册配置
	if err := container.Provide(func() (*config.Config, error) {
		cfg := config.AppConfig
		if cfg == nil {
			return nil, fmt.Errorf("config not loaded")
		}
		return cfg, nil
	}); err != nil {
		return err
	}

	// 注册日志接口
	if err := container.Provide(func() interfaces.LoggerInterface {
		return logger.NewInterfaceAdapter(logger.GetLogger())
	}); err != nil {
		return err
	}

	// 注册对象存储
	if err := container.Provide(func() (interfaces.ObjectStoreInterface, error) {
		svc := middleware.GetMinIOService()
		if svc == nil {
			return nil, fmt.Errorf("object storage service not initialized")
		}
		return svc, nil
	}); err != nil {
		return err
	}

	// 注册向量存储
	if err := container.Provide(func() (rag.VectorStore, error) {
		store := middleware.GetVectorStore()
		if store == nil {
			return nil, fmt.Errorf("vector store not initialized")
		}
		return store, nil
	}); err != nil {
		return err
	}

	// 注册解析与分块
	if err := container.Provide(rag.NewParserManager); err != nil {
		return err
	}

	if err := container.Provide(func(cfg *config.Config) *rag.Chunker {
		return rag.NewChunker(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	}); err != nil {
		return err
	}

	// 注册模型后端
	if err := container.Provide(services.NewEmbedderFromConfig); err != nil {
		return err
	}

	if err := container.Provide(services.NewSynthesizerFromConfig); err != nil {
		return err
	}

	// 注册指标
	if err := container.Provide(services.NewMetricsService); err != nil {
		return err
	}

	// 注册管道服务
	if err := container.Provide(services.NewIngestService); err != nil {
		return err
	}

	if err := container.Provide(services.NewQueryService); err != nil {
		return err
	}

	// 注册错误处理器
	if err := container.Provide(errors.NewErrorHandler); err != nil {
		return err
	}

	if err := container.Provide(errors.NewErrorTranslator); err != nil {
		return err
	}

	if err := container.Provide(errors.NewErrorLogger); err != nil {
		return err
	}

	return nil
}
