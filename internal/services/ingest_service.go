package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docpipe/rag-go/internal/config"
	apperrors "github.com/docpipe/rag-go/internal/errors"
	"github.com/docpipe/rag-go/internal/events"
	"github.com/docpipe/rag-go/internal/interfaces"
	"github.com/docpipe/rag-go/internal/kafka"
	"github.com/docpipe/rag-go/internal/logger"
	"github.com/docpipe/rag-go/internal/middleware"
	"github.com/docpipe/rag-go/internal/rag"
)

// IngestService 摄取管道编排：通知 -> 取对象 -> 解析 -> 分块 -> 嵌入 -> 入库
type IngestService struct {
	objects  interfaces.ObjectStoreInterface
	parser   *rag.ParserManager
	chunker  *rag.Chunker
	embedder rag.Embedder
	store    rag.VectorStore
	metrics  *MetricsService
	errlog   *apperrors.ErrorLogger
	provider string
	logger   *zap.Logger
}

// IngestSummary 一条通知消息的处理汇总
type IngestSummary struct {
	ProcessedRecords int `json:"processed_records"`
	ChunksIndexed    int `json:"chunks_indexed"`
	Failures         int `json:"failures"`
}

// NewIngestService 创建摄取服务
func NewIngestService(objects interfaces.ObjectStoreInterface, parser *rag.ParserManager, chunker *rag.Chunker, embedder rag.Embedder, store rag.VectorStore, metrics *MetricsService, errlog *apperrors.ErrorLogger) *IngestService {
	return &IngestService{
		objects:  objects,
		parser:   parser,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		metrics:  metrics,
		errlog:   errlog,
		provider: embeddingProviderName(),
		logger:   logger.GetLogger(),
	}
}

// NewEmbedderFromConfig 按配置选择嵌入后端
func NewEmbedderFromConfig(cfg *config.Config) rag.Embedder {
	e := cfg.Embedding
	model := e.Model
	if strings.EqualFold(e.Provider, "dashscope") {
		model = e.DashScopeModel
	}
	return rag.NewEmbedder(e.Provider, e.APIKey, e.BaseURL, model, e.Dimensions)
}

func embeddingProviderName() string {
	if config.AppConfig != nil && config.AppConfig.Embedding.Provider != "" {
		return strings.ToLower(config.AppConfig.Embedding.Provider)
	}
	return "openai"
}

// ProcessNotification 处理一条桶通知消息，逐对象执行摄取管道。
// 单个对象失败不会中断其余对象，失败通过状态、结果事件和日志上报。
func (s *IngestService) ProcessNotification(ctx context.Context, payload []byte) (*IngestSummary, error) {
	refs, err := events.ParseNotification(payload)
	if err != nil {
		return nil, err
	}

	summary := &IngestSummary{}
	if len(refs) == 0 {
		s.logger.Debug("Notification carried no object creation events")
		return summary, nil
	}

	for _, ref := range refs {
		chunks, err := s.processObject(ctx, ref)
		if err != nil {
			summary.Failures++
			s.errlog.LogPipelineError(ctx, "ingest", ref.Source(), err)
			continue
		}
		summary.ProcessedRecords++
		summary.ChunksIndexed += chunks
	}

	// 新内容入库后，已缓存的查询结果可能过时
	if summary.ProcessedRecords > 0 {
		if redis := middleware.GetRedisService(); redis.Ready() {
			if err := redis.InvalidateQueryCache(ctx); err != nil {
				s.logger.Warn("Failed to invalidate query cache", zap.Error(err))
			}
		}
	}

	s.logger.Info("Notification processed",
		zap.Int("processed_records", summary.ProcessedRecords),
		zap.Int("chunks_indexed", summary.ChunksIndexed),
		zap.Int("failures", summary.Failures))

	return summary, nil
}

// ReindexObject 跳过通知解析，直接按bucket/key重建单个对象的向量。
// 供回填工具使用，走与通知摄取完全相同的管道。
func (s *IngestService) ReindexObject(ctx context.Context, bucket, key string) (int, error) {
	return s.processObject(ctx, events.ObjectRef{
		Bucket:    bucket,
		Key:       key,
		EventName: "reindex",
	})
}

// processObject 单个对象的完整摄取流程，返回写入的块数
func (s *IngestService) processObject(ctx context.Context, ref events.ObjectRef) (indexed int, err error) {
	source := ref.Source()
	start := time.Now()
	redis := middleware.GetRedisService()

	// 解析库遇到损坏文件可能panic，按单对象失败处理
	defer func() {
		if recovered := recover(); recovered != nil {
			s.errlog.LogRecover(ctx, recovered, string(debug.Stack()))
			indexed = 0
			err = fmt.Errorf("panic while processing object: %v", recovered)
			s.finishObject(ctx, ref, 0, start, err)
		}
	}()

	// 同一来源并发重建索引没有意义，拿不到锁说明另一个worker正在处理
	lockHeld := false
	if acquired, err := redis.AcquireIngestLock(ctx, source); err != nil {
		s.logger.Warn("Ingest lock check failed", zap.String("source", source), zap.Error(err))
	} else if !acquired {
		s.logger.Warn("Source locked by another worker, skipping", zap.String("source", source))
		return 0, nil
	} else {
		lockHeld = true
	}
	defer func() {
		if !lockHeld {
			return
		}
		if err := redis.ReleaseIngestLock(ctx, source); err != nil {
			s.logger.Warn("Failed to release ingest lock", zap.String("source", source), zap.Error(err))
		}
	}()

	s.setStatus(ctx, source, "processing", 0, nil)

	if s.objects == nil || !s.objects.Ready() {
		err := fmt.Errorf("object storage service not initialized")
		s.finishObject(ctx, ref, 0, start, err)
		return 0, err
	}

	// 1. 拉取对象内容
	data, contentType, err := s.objects.FetchObject(ctx, ref.Bucket, ref.Key)
	if err != nil {
		err = fmt.Errorf("failed to fetch object: %w", err)
		s.finishObject(ctx, ref, 0, start, err)
		return 0, err
	}

	// 2. 按格式提取文本
	text, err := s.parser.Parse(data, ref.Key, contentType)
	if err != nil {
		err = fmt.Errorf("failed to parse object: %w", err)
		s.finishObject(ctx, ref, 0, start, err)
		return 0, err
	}

	// 3. 递归分块
	chunks := s.chunker.Split(text)

	// 4. 批量嵌入
	records := make([]rag.Record, 0, len(chunks))
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}

		embedStart := time.Now()
		var vectors [][]float32
		err = GetCircuitBreaker("embedding").Call(func() error {
			var embedErr error
			vectors, embedErr = s.embedder.EmbedBatch(ctx, texts)
			return embedErr
		})
		s.metrics.RecordEmbedding(s.provider, time.Since(embedStart))
		if err != nil {
			err = fmt.Errorf("embedding failed: %w", err)
			s.finishObject(ctx, ref, 0, start, err)
			return 0, err
		}

		for i, c := range chunks {
			records = append(records, rag.Record{
				Source:    source,
				ChunkID:   c.Index,
				ChunkSize: len(c.Text),
				Content:   c.Text,
				Embedding: vectors[i],
			})
		}
	}

	// 5. 重新摄取时先清掉旧块，避免陈旧内容残留
	if err := s.store.DeleteBySource(ctx, source); err != nil {
		err = fmt.Errorf("failed to delete stale vectors: %w", err)
		s.finishObject(ctx, ref, 0, start, err)
		return 0, err
	}

	// 6. 写入向量存储
	if len(records) > 0 {
		indexed, err = s.store.UpsertChunks(ctx, records)
		if err != nil {
			err = fmt.Errorf("failed to upsert chunks: %w", err)
			s.finishObject(ctx, ref, 0, start, err)
			return 0, err
		}
	}

	s.finishObject(ctx, ref, indexed, start, nil)
	s.logger.Info("Object ingested",
		zap.String("source", source),
		zap.String("content_type", contentType),
		zap.Int("chunks", indexed),
		zap.Duration("duration", time.Since(start)))

	return indexed, nil
}

// finishObject 摄取收尾：写状态、发结果事件、记指标
func (s *IngestService) finishObject(ctx context.Context, ref events.ObjectRef, chunks int, start time.Time, procErr error) {
	duration := time.Since(start)
	status := "completed"
	if procErr != nil {
		status = "failed"
	}

	s.setStatus(ctx, ref.Source(), status, chunks, procErr)

	if err := kafka.SendIngestResult(ref.Source(), ref.Bucket, ref.Key, status, chunks, procErr, duration); err != nil {
		s.logger.Warn("Failed to publish ingest result",
			zap.String("source", ref.Source()),
			zap.Error(err))
	}

	s.metrics.RecordIngestDocument(status, chunks, duration)
}

// setStatus 更新Redis中的来源状态，Redis不可用时只跳过
func (s *IngestService) setStatus(ctx context.Context, source, status string, chunks int, procErr error) {
	redis := middleware.GetRedisService()
	if !redis.Ready() {
		return
	}

	st := &middleware.IngestStatus{
		Source:    source,
		Status:    status,
		Chunks:    chunks,
		UpdatedAt: time.Now(),
	}
	if procErr != nil {
		st.Error = procErr.Error()
	}
	if err := redis.SetIngestStatus(ctx, st); err != nil {
		s.logger.Warn("Failed to record ingest status", zap.String("source", source), zap.Error(err))
	}
}
