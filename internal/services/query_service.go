package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docpipe/rag-go/internal/config"
	apperrors "github.com/docpipe/rag-go/internal/errors"
	"github.com/docpipe/rag-go/internal/logger"
	"github.com/docpipe/rag-go/internal/middleware"
	"github.com/docpipe/rag-go/internal/rag"
)

const similaritySearchType = "similarity_search"

// DocumentMetadata 检索命中块的元数据
type DocumentMetadata struct {
	Source    string `json:"source"`
	ChunkID   int    `json:"chunk_id"`
	ChunkSize int    `json:"chunk_size"`
}

// DocumentMatch 相似度检索命中
type DocumentMatch struct {
	Content  string           `json:"content"`
	Metadata DocumentMetadata `json:"metadata"`
	Score    float64          `json:"score"`
}

// SearchResponse search_only模式的响应体
type SearchResponse struct {
	Query     string          `json:"query"`
	Documents []DocumentMatch `json:"documents"`
	Type      string          `json:"type"`
}

// AnswerResponse 生成模式的响应体
type AnswerResponse struct {
	Query    string          `json:"query"`
	Response string          `json:"response"`
	Sources  []rag.SourceRef `json:"sources"`
}

// QueryService 查询管道编排：嵌入 -> 相似度检索 -> 可选生成
type QueryService struct {
	embedder    rag.Embedder
	store       rag.VectorStore
	synthesizer rag.Synthesizer
	metrics     *MetricsService
	provider    string
	logger      *zap.Logger
}

// NewSynthesizerFromConfig 按配置选择聊天后端，凭证与嵌入共用同一提供方
func NewSynthesizerFromConfig(cfg *config.Config) rag.Synthesizer {
	return rag.NewSynthesizer(rag.ChatOptions{
		Provider:    cfg.Embedding.Provider,
		APIKey:      cfg.Embedding.APIKey,
		BaseURL:     cfg.Embedding.BaseURL,
		Model:       cfg.Chat.Model,
		MaxTokens:   cfg.Chat.MaxTokens,
		Temperature: cfg.Chat.Temperature,
		TopP:        cfg.Chat.TopP,
	})
}

// NewQueryService 创建查询服务
func NewQueryService(embedder rag.Embedder, store rag.VectorStore, synthesizer rag.Synthesizer, metrics *MetricsService) *QueryService {
	return &QueryService{
		embedder:    embedder,
		store:       store,
		synthesizer: synthesizer,
		metrics:     metrics,
		provider:    embeddingProviderName(),
		logger:      logger.GetLogger(),
	}
}

// Query 执行一次查询，返回可直接写回的JSON响应体。
// search_only为true时返回原始检索结果，否则走LLM生成带来源的回答。
func (s *QueryService) Query(ctx context.Context, query string, searchOnly bool) (json.RawMessage, error) {
	start := time.Now()
	mode := "answer"
	if searchOnly {
		mode = "search"
	}
	status := "error"
	defer func() {
		s.metrics.RecordQuery(mode, status, time.Since(start))
	}()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.NewValidationError("Query parameter is required")
	}

	// 1. 缓存命中直接返回
	cacheKey := middleware.QueryCacheKey(query, searchOnly, s.store.Name())
	redis := middleware.GetRedisService()
	if redis.Ready() {
		cached, err := redis.GetCachedAnswer(ctx, cacheKey)
		if err != nil {
			s.logger.Warn("Query cache lookup failed", zap.Error(err))
		} else if cached != nil {
			s.metrics.RecordCacheLookup(true)
			status = "cached"
			return cached, nil
		}
		s.metrics.RecordCacheLookup(false)
	}

	// 2. 嵌入查询文本
	embedStart := time.Now()
	var vector []float32
	err := GetCircuitBreaker("embedding").Call(func() error {
		var embedErr error
		vector, embedErr = s.embedder.Embed(ctx, query)
		return embedErr
	})
	s.metrics.RecordEmbedding(s.provider, time.Since(embedStart))
	if err != nil {
		return nil, apperrors.NewExternalError(apperrors.ErrCodeEmbeddingError, "Failed to process query").WithCause(err)
	}

	// 3. 向量检索
	searchStart := time.Now()
	results, err := s.store.Search(ctx, vector, s.topK())
	s.metrics.RecordVectorSearch(s.store.Name(), time.Since(searchStart))
	if err != nil {
		return nil, apperrors.NewExternalError(apperrors.ErrCodeVectorStore, "Failed to process query").WithCause(err)
	}

	// 4. 按模式组装响应
	var body interface{}
	if searchOnly {
		body = s.buildSearchResponse(query, results)
	} else {
		var answer *rag.Answer
		err = GetCircuitBreaker("chat").Call(func() error {
			var synthErr error
			answer, synthErr = s.synthesizer.Synthesize(ctx, query, results)
			return synthErr
		})
		if err != nil {
			return nil, apperrors.NewExternalError(apperrors.ErrCodeSynthesisError, "Failed to process query").WithCause(err)
		}
		body = &AnswerResponse{
			Query:    query,
			Response: answer.Response,
			Sources:  answer.Sources,
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeInternalServer, "Failed to encode response").WithCause(err)
	}

	// 5. 写缓存，失败不影响响应
	if redis.Ready() {
		if err := redis.SetCachedAnswer(ctx, cacheKey, payload, s.cacheTTL()); err != nil {
			s.logger.Warn("Query cache store failed", zap.Error(err))
		}
	}

	status = "success"
	s.logger.Info("Query handled",
		zap.String("mode", mode),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)))

	return payload, nil
}

// buildSearchResponse 组装search_only响应
func (s *QueryService) buildSearchResponse(query string, results []rag.SearchResult) *SearchResponse {
	documents := make([]DocumentMatch, 0, len(results))
	for _, r := range results {
		documents = append(documents, DocumentMatch{
			Content: r.Content,
			Metadata: DocumentMetadata{
				Source:    r.Source,
				ChunkID:   r.ChunkID,
				ChunkSize: r.ChunkSize,
			},
			Score: r.Score,
		})
	}

	return &SearchResponse{
		Query:     query,
		Documents: documents,
		Type:      similaritySearchType,
	}
}

// topK 每次读取配置，支持热更新
func (s *QueryService) topK() int {
	if config.AppConfig != nil && config.AppConfig.Retrieval.TopK > 0 {
		return config.AppConfig.Retrieval.TopK
	}
	return 5
}

// cacheTTL 查询缓存TTL
func (s *QueryService) cacheTTL() time.Duration {
	if config.AppConfig != nil && config.AppConfig.Retrieval.CacheTTLSeconds > 0 {
		return time.Duration(config.AppConfig.Retrieval.CacheTTLSeconds) * time.Second
	}
	return 0
}
