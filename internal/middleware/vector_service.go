package middleware

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/docpipe/rag-go/internal/config"
	"github.com/docpipe/rag-go/internal/logger"
	"github.com/docpipe/rag-go/internal/rag"
)

var globalVectorStore rag.VectorStore

// InitVectorService 按配置创建向量存储后端，类型未知时返回错误
func InitVectorService() (rag.VectorStore, error) {
	if globalVectorStore != nil {
		return globalVectorStore, nil
	}

	cfg := config.AppConfig
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	vs := cfg.VectorStore
	opts := rag.StoreOptions{
		Type: vs.Type,
		Milvus: rag.MilvusOptions{
			Address:        vs.Milvus.Address,
			Username:       vs.Milvus.Username,
			Password:       vs.Milvus.Password,
			CollectionName: vs.IndexName,
			VectorSize:     cfg.Embedding.Dimensions,
			Database:       vs.Milvus.Database,
			UseTLS:         vs.Milvus.TLS,
		},
		Elastic: rag.ElasticOptions{
			Addresses:  vs.Elasticsearch.Addresses,
			Username:   vs.Elasticsearch.Username,
			Password:   vs.Elasticsearch.Password,
			APIKey:     vs.Elasticsearch.APIKey,
			IndexName:  vs.IndexName,
			VectorSize: cfg.Embedding.Dimensions,
		},
	}

	// VECTOR_STORE_ENDPOINT 是统一的地址覆盖，只对启用的后端生效
	if vs.Endpoint != "" {
		opts.Milvus.Address = vs.Endpoint
		opts.Elastic.Addresses = []string{vs.Endpoint}
	}

	store, err := rag.NewVectorStore(opts)
	if err != nil {
		return nil, err
	}

	logger.Info("向量存储初始化完成",
		zap.String("backend", store.Name()),
		zap.String("index", vs.IndexName))

	globalVectorStore = store
	return store, nil
}

// GetVectorStore 获取全局向量存储实例，未初始化时返回nil
func GetVectorStore() rag.VectorStore {
	return globalVectorStore
}
