package services

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 指标在进程内只注册一次，ingest和query两个进程各自注册自己用到的部分
var (
	pipelineMetricsOnce sync.Once

	ingestDocumentsTotal *prometheus.CounterVec
	ingestChunksTotal    prometheus.Counter
	ingestDuration       prometheus.Histogram
	embeddingDuration    *prometheus.HistogramVec
	vectorSearchDuration *prometheus.HistogramVec
	queryRequestsTotal   *prometheus.CounterVec
	queryDuration        *prometheus.HistogramVec
	queryCacheTotal      *prometheus.CounterVec
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
)

func registerPipelineMetrics() {
	pipelineMetricsOnce.Do(func() {
		ingestDocumentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_ingest_documents_total",
				Help: "Documents processed by the ingestion pipeline, by outcome",
			},
			[]string{"status"},
		)

		ingestChunksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rag_ingest_chunks_total",
				Help: "Chunks written to the vector store",
			},
		)

		ingestDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rag_ingest_duration_seconds",
				Help:    "End to end processing time per object",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		)

		embeddingDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rag_embedding_duration_seconds",
				Help:    "Embedding API call latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		)

		vectorSearchDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rag_vector_search_duration_seconds",
				Help:    "Vector store similarity search latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		)

		queryRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_query_requests_total",
				Help: "Query requests, by mode and outcome",
			},
			[]string{"mode", "status"},
		)

		queryDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rag_query_duration_seconds",
				Help:    "Query handling time, by mode",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		)

		queryCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_query_cache_total",
				Help: "Query cache lookups, by result",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_http_requests_total",
				Help: "HTTP requests, by method, path and status code",
			},
			[]string{"method", "path", "status"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rag_http_request_duration_seconds",
				Help:    "HTTP request handling time",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		)
	})
}

// MetricsService 管道与HTTP指标
type MetricsService struct{}

// NewMetricsService 创建指标服务并注册指标
func NewMetricsService() *MetricsService {
	registerPipelineMetrics()
	return &MetricsService{}
}

// Handler 返回Prometheus指标的HTTP处理器
func (ms *MetricsService) Handler() http.Handler {
	return promhttp.Handler()
}

// ServeHTTP 实现http.Handler接口
func (ms *MetricsService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ms.Handler().ServeHTTP(w, r)
}

// RecordIngestDocument 记录一个对象的处理结果
func (ms *MetricsService) RecordIngestDocument(status string, chunks int, duration time.Duration) {
	ingestDocumentsTotal.WithLabelValues(status).Inc()
	if chunks > 0 {
		ingestChunksTotal.Add(float64(chunks))
	}
	ingestDuration.Observe(duration.Seconds())
}

// RecordEmbedding 记录一次嵌入调用
func (ms *MetricsService) RecordEmbedding(provider string, duration time.Duration) {
	embeddingDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordVectorSearch 记录一次向量检索
func (ms *MetricsService) RecordVectorSearch(backend string, duration time.Duration) {
	vectorSearchDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordQuery 记录一次查询请求
func (ms *MetricsService) RecordQuery(mode, status string, duration time.Duration) {
	queryRequestsTotal.WithLabelValues(mode, status).Inc()
	queryDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordCacheLookup 记录查询缓存命中情况
func (ms *MetricsService) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	queryCacheTotal.WithLabelValues(result).Inc()
}

// RecordHTTPRequest 记录HTTP请求，由路由过滤器调用
func (ms *MetricsService) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
