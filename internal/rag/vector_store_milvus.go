package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/docpipe/rag-go/internal/logger"
	"go.uber.org/zap"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address        string
	Username       string
	Password       string
	CollectionName string
	VectorSize     int
	Distance       string
	Database       string
	UseTLS         bool
	Timeout        time.Duration
}

type milvusVectorStore struct {
	milvusClient client.Client
	collection   string
	vectorSize   int
	distance     string
	mu           sync.Mutex
	ready        bool // collection已创建并加载
}

// NewMilvusVectorStore 创建Milvus向量存储
func NewMilvusVectorStore(opts MilvusOptions) (VectorStore, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.CollectionName == "" {
		opts.CollectionName = "rag_documents_v2"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1024
	}
	if opts.Distance == "" {
		opts.Distance = "COSINE"
	}
	if opts.Database == "" {
		opts.Database = "default"
	}

	milvusClient, err := client.NewClient(
		context.Background(),
		client.Config{
			Address:       opts.Address,
			DBName:        opts.Database,
			Username:      opts.Username,
			Password:      opts.Password,
			EnableTLSAuth: opts.UseTLS,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	return &milvusVectorStore{
		milvusClient: milvusClient,
		collection:   sanitizeCollectionName(opts.CollectionName),
		vectorSize:   opts.VectorSize,
		distance:     formatMilvusDistance(opts.Distance),
	}, nil
}

// sanitizeCollectionName Milvus集合名只允许字母、数字和下划线
func sanitizeCollectionName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" || (out[0] >= '0' && out[0] <= '9') {
		out = "_" + out
	}
	return out
}

func formatMilvusDistance(value string) string {
	switch strings.ToUpper(value) {
	case "DOT", "IP", "INNER_PRODUCT":
		return "IP"
	case "L2", "EUCLIDEAN":
		return "L2"
	default:
		return "COSINE"
	}
}

// ensureCollection 确保集合存在、建好索引并已加载
func (s *milvusVectorStore) ensureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	hasCollection, err := s.milvusClient.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if !hasCollection {
		schema := &entity.Schema{
			CollectionName: s.collection,
			Description:    "document chunks with embeddings",
			Fields: []*entity.Field{
				{
					Name:       "id",
					DataType:   entity.FieldTypeInt64,
					PrimaryKey: true,
					AutoID:     true,
				},
				{
					Name:     "source",
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "1024",
					},
				},
				{
					Name:     "chunk_id",
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:     "chunk_size",
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:     "content",
					DataType: entity.FieldTypeVarChar,
					TypeParams: map[string]string{
						"max_length": "65535",
					},
				},
				{
					Name:     "vector",
					DataType: entity.FieldTypeFloatVector,
					TypeParams: map[string]string{
						"dim": fmt.Sprintf("%d", s.vectorSize),
					},
				},
			},
		}

		if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		var index entity.Index
		var indexErr error
		switch s.distance {
		case "IP":
			index, indexErr = entity.NewIndexHNSW(entity.IP, 16, 200)
		case "L2":
			index, indexErr = entity.NewIndexHNSW(entity.L2, 16, 200)
		default:
			index, indexErr = entity.NewIndexHNSW(entity.COSINE, 16, 200)
		}
		if indexErr != nil {
			// HNSW参数不可用时退回IVF_FLAT
			switch s.distance {
			case "IP":
				index, indexErr = entity.NewIndexIvfFlat(entity.IP, 128)
			case "L2":
				index, indexErr = entity.NewIndexIvfFlat(entity.L2, 128)
			default:
				index, indexErr = entity.NewIndexIvfFlat(entity.COSINE, 128)
			}
			if indexErr != nil {
				return fmt.Errorf("failed to create index: %w", indexErr)
			}
		}

		if err := s.milvusClient.CreateIndex(ctx, s.collection, "vector", index, false); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	// 搜索前集合必须处于加载状态
	if err := s.milvusClient.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	s.ready = true
	return nil
}

func (s *milvusVectorStore) UpsertChunks(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return 0, err
	}

	sources := make([]string, len(records))
	chunkIDs := make([]int64, len(records))
	chunkSizes := make([]int64, len(records))
	contents := make([]string, len(records))
	vectors := make([][]float32, len(records))

	for i, r := range records {
		if len(r.Embedding) == 0 {
			return 0, fmt.Errorf("record %d: embedding is empty", r.ChunkID)
		}
		embedding := r.Embedding
		if len(embedding) != s.vectorSize {
			// 维度不匹配时截断或补零
			fixed := make([]float32, s.vectorSize)
			copy(fixed, embedding)
			embedding = fixed
		}
		sources[i] = r.Source
		chunkIDs[i] = int64(r.ChunkID)
		chunkSizes[i] = int64(r.ChunkSize)
		contents[i] = r.Content
		vectors[i] = embedding
	}

	sourceColumn := entity.NewColumnVarChar("source", sources)
	chunkIDColumn := entity.NewColumnInt64("chunk_id", chunkIDs)
	chunkSizeColumn := entity.NewColumnInt64("chunk_size", chunkSizes)
	contentColumn := entity.NewColumnVarChar("content", contents)
	vectorColumn := entity.NewColumnFloatVector("vector", s.vectorSize, vectors)

	_, err := s.milvusClient.Insert(ctx, s.collection, "", sourceColumn, chunkIDColumn, chunkSizeColumn, contentColumn, vectorColumn)
	if err != nil {
		return 0, fmt.Errorf("milvus insert failed: %w", err)
	}

	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		logger.Warn("milvus flush failed", zap.String("collection", s.collection), zap.Error(err))
	}

	return len(records), nil
}

func (s *milvusVectorStore) DeleteBySource(ctx context.Context, source string) error {
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	escaped := strings.ReplaceAll(source, `"`, `\"`)
	expr := fmt.Sprintf(`source == "%s"`, escaped)

	if err := s.milvusClient.Delete(ctx, s.collection, "", expr); err != nil {
		return fmt.Errorf("milvus delete failed: %w", err)
	}

	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		logger.Warn("milvus flush after delete failed", zap.String("collection", s.collection), zap.Error(err))
	}

	return nil
}

func (s *milvusVectorStore) Search(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	queryVector := entity.FloatVector(embedding)
	searchResults, err := s.milvusClient.Search(
		ctx,
		s.collection,
		[]string{},
		"",
		[]string{"source", "chunk_id", "chunk_size", "content"},
		[]entity.Vector{queryVector},
		"vector",
		entity.MetricType(s.distance),
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}

	if len(searchResults) == 0 {
		return []SearchResult{}, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}
	if result.ResultCount == 0 {
		return []SearchResult{}, nil
	}

	var sources []string
	var chunkIDs []int64
	var chunkSizes []int64
	var contents []string
	for _, field := range result.Fields {
		switch field.Name() {
		case "source":
			if val, ok := field.(*entity.ColumnVarChar); ok {
				sources = val.Data()
			}
		case "chunk_id":
			if val, ok := field.(*entity.ColumnInt64); ok {
				chunkIDs = val.Data()
			}
		case "chunk_size":
			if val, ok := field.(*entity.ColumnInt64); ok {
				chunkSizes = val.Data()
			}
		case "content":
			if val, ok := field.(*entity.ColumnVarChar); ok {
				contents = val.Data()
			}
		}
	}

	results := make([]SearchResult, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		match := SearchResult{}
		if i < len(sources) {
			match.Source = sources[i]
		}
		if i < len(chunkIDs) {
			match.ChunkID = int(chunkIDs[i])
		}
		if i < len(chunkSizes) {
			match.ChunkSize = int(chunkSizes[i])
		}
		if i < len(contents) {
			match.Content = contents[i]
		}
		if i < len(result.Scores) {
			match.Score = float64(result.Scores[i])
		}
		results = append(results, match)
	}

	return results, nil
}

func (s *milvusVectorStore) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}

func (s *milvusVectorStore) Name() string {
	return "milvus"
}
