package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Record 一条向量化的文本块记录
type Record struct {
	Source    string // 来源标识，形如 s3://bucket/key
	ChunkID   int    // 块在原文中的序号
	ChunkSize int    // 块字节数
	Content   string
	Embedding []float32
}

// SearchResult 相似度检索命中
type SearchResult struct {
	Content   string
	Source    string
	ChunkID   int
	ChunkSize int
	Score     float64
}

// VectorStore 向量存储抽象
type VectorStore interface {
	UpsertChunks(ctx context.Context, records []Record) (int, error)
	DeleteBySource(ctx context.Context, source string) error
	Search(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error)
	Ready() bool
	Name() string
}

// StoreOptions 向量存储配置，Type决定启用哪个后端
type StoreOptions struct {
	Type    string
	Milvus  MilvusOptions
	Elastic ElasticOptions
}

// NewVectorStore 按名称创建向量存储后端
func NewVectorStore(opts StoreOptions) (VectorStore, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Type)) {
	case "milvus", "":
		return NewMilvusVectorStore(opts.Milvus)
	case "elasticsearch", "elastic", "opensearch":
		return NewElasticVectorStore(opts.Elastic)
	case "noop", "none":
		return &NoopVectorStore{}, nil
	default:
		return nil, fmt.Errorf("unknown vector store type: %q", opts.Type)
	}
}

// NoopVectorStore 默认占位实现
type NoopVectorStore struct{}

func (n *NoopVectorStore) UpsertChunks(ctx context.Context, records []Record) (int, error) {
	return 0, errors.New("vector store not configured")
}

func (n *NoopVectorStore) DeleteBySource(ctx context.Context, source string) error {
	return nil
}

func (n *NoopVectorStore) Search(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error) {
	return nil, errors.New("vector store not configured")
}

func (n *NoopVectorStore) Ready() bool {
	return false
}

func (n *NoopVectorStore) Name() string {
	return "noop"
}
