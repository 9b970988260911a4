package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/docpipe/rag-go/internal/errors"
	"github.com/docpipe/rag-go/internal/logger"
	"github.com/docpipe/rag-go/internal/rag"
)

func TestMain(m *testing.M) {
	// 测试期间静默日志输出
	logger.Logger = zap.NewNop()
	os.Exit(m.Run())
}

// fakeObjectStore 模拟对象存储
type fakeObjectStore struct {
	data        map[string][]byte
	contentType string
	fetchErr    error
	fetchCalls  int
}

func (f *fakeObjectStore) FetchObject(ctx context.Context, bucket, key string) ([]byte, string, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, "", f.fetchErr
	}
	data, ok := f.data[bucket+"/"+key]
	if !ok {
		return nil, "", errors.New("object not found")
	}
	return data, f.contentType, nil
}

func (f *fakeObjectStore) Ready() bool {
	return true
}

// fakeEmbedder 模拟嵌入服务，向量首维编码文本序号
type fakeEmbedder struct {
	dims     int
	embedErr error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	vectors, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dims)
		v[0] = float32(i)
		vectors[i] = v
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }

func (f *fakeEmbedder) Ready() bool { return true }

// fakeVectorStore 模拟向量存储，记录删除与写入
type fakeVectorStore struct {
	deleted   []string
	records   []rag.Record
	results   []rag.SearchResult
	upsertErr error
	searchErr error
}

func (f *fakeVectorStore) UpsertChunks(ctx context.Context, records []rag.Record) (int, error) {
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.records = append(f.records, records...)
	return len(records), nil
}

func (f *fakeVectorStore) DeleteBySource(ctx context.Context, source string) error {
	f.deleted = append(f.deleted, source)
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, embedding []float32, topK int) ([]rag.SearchResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if topK < len(f.results) {
		return f.results[:topK], nil
	}
	return f.results, nil
}

func (f *fakeVectorStore) Ready() bool { return true }

func (f *fakeVectorStore) Name() string { return "fake" }

// notificationPayload 构造MinIO风格的桶通知
func notificationPayload(eventName, bucket, key string) []byte {
	return []byte(fmt.Sprintf(`{
		"EventName": %q,
		"Records": [{
			"eventVersion": "2.1",
			"eventSource": "minio:s3",
			"eventTime": "2025-01-15T08:30:00.000Z",
			"eventName": %q,
			"s3": {
				"bucket": {"name": %q},
				"object": {"key": %q, "size": 1024}
			}
		}]
	}`, eventName, eventName, bucket, key))
}

func newTestIngestService(objects *fakeObjectStore, embedder rag.Embedder, store rag.VectorStore) *IngestService {
	errlog := apperrors.NewErrorLogger(logger.NewInterfaceAdapter(logger.GetLogger()))
	return NewIngestService(objects, rag.NewParserManager(), rag.NewChunker(1000, 100), embedder, store, NewMetricsService(), errlog)
}

func TestIngestService_ProcessNotification(t *testing.T) {
	objects := &fakeObjectStore{
		data: map[string][]byte{
			"documents/reports/q1.txt": []byte("第一季度营收稳定增长。\n\n与去年同期相比利润率有所提升。"),
		},
		contentType: "text/plain",
	}
	store := &fakeVectorStore{}
	service := newTestIngestService(objects, &fakeEmbedder{dims: 4}, store)

	payload := notificationPayload("s3:ObjectCreated:Put", "documents", "reports/q1.txt")
	summary, err := service.ProcessNotification(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ProcessedRecords)
	assert.Equal(t, 0, summary.Failures)
	assert.Equal(t, len(store.records), summary.ChunksIndexed)
	require.NotEmpty(t, store.records)

	// 重新摄取前应清理同来源旧向量
	assert.Equal(t, []string{"s3://documents/reports/q1.txt"}, store.deleted)

	for i, record := range store.records {
		assert.Equal(t, "s3://documents/reports/q1.txt", record.Source)
		assert.Equal(t, i, record.ChunkID)
		assert.Equal(t, len(record.Content), record.ChunkSize)
		assert.Len(t, record.Embedding, 4)
		assert.NotEmpty(t, record.Content)
	}
}

func TestIngestService_ProcessNotification_MultipleRecords(t *testing.T) {
	objects := &fakeObjectStore{
		data: map[string][]byte{
			"documents/a.txt": []byte("文档A的内容。"),
			"documents/b.txt": []byte("文档B的内容。"),
		},
		contentType: "text/plain",
	}
	store := &fakeVectorStore{}
	service := newTestIngestService(objects, &fakeEmbedder{dims: 4}, store)

	payload := []byte(`{
		"Records": [
			{
				"eventSource": "minio:s3",
				"eventName": "s3:ObjectCreated:Put",
				"s3": {"bucket": {"name": "documents"}, "object": {"key": "a.txt"}}
			},
			{
				"eventSource": "minio:s3",
				"eventName": "s3:ObjectCreated:CompleteMultipartUpload",
				"s3": {"bucket": {"name": "documents"}, "object": {"key": "b.txt"}}
			}
		]
	}`)
	summary, err := service.ProcessNotification(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.ProcessedRecords)
	assert.Equal(t, 0, summary.Failures)
	assert.Equal(t, 2, objects.fetchCalls)
	assert.ElementsMatch(t, []string{"s3://documents/a.txt", "s3://documents/b.txt"}, store.deleted)
}

func TestIngestService_ProcessNotification_DecodesObjectKey(t *testing.T) {
	objects := &fakeObjectStore{
		data: map[string][]byte{
			"documents/annual report.txt": []byte("年度报告正文。"),
		},
		contentType: "text/plain",
	}
	store := &fakeVectorStore{}
	service := newTestIngestService(objects, &fakeEmbedder{dims: 4}, store)

	// 通知里的对象键是URL编码的
	payload := notificationPayload("s3:ObjectCreated:Put", "documents", "annual+report.txt")
	summary, err := service.ProcessNotification(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ProcessedRecords)
	require.NotEmpty(t, store.records)
	assert.Equal(t, "s3://documents/annual report.txt", store.records[0].Source)
}

func TestIngestService_ProcessNotification_IgnoresOtherEvents(t *testing.T) {
	objects := &fakeObjectStore{contentType: "text/plain"}
	store := &fakeVectorStore{}
	service := newTestIngestService(objects, &fakeEmbedder{dims: 4}, store)

	payload := notificationPayload("s3:ObjectRemoved:Delete", "documents", "gone.txt")
	summary, err := service.ProcessNotification(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.ProcessedRecords)
	assert.Equal(t, 0, summary.Failures)
	assert.Equal(t, 0, objects.fetchCalls)
	assert.Empty(t, store.deleted)
}

func TestIngestService_ProcessNotification_InvalidPayload(t *testing.T) {
	service := newTestIngestService(&fakeObjectStore{}, &fakeEmbedder{dims: 4}, &fakeVectorStore{})

	_, err := service.ProcessNotification(context.Background(), []byte("not json"))
	assert.Error(t, err)
}

func TestIngestService_EmptyObjectClearsStaleVectors(t *testing.T) {
	objects := &fakeObjectStore{
		data:        map[string][]byte{"documents/empty.txt": []byte("   \n  ")},
		contentType: "text/plain",
	}
	store := &fakeVectorStore{}
	service := newTestIngestService(objects, &fakeEmbedder{dims: 4}, store)

	payload := notificationPayload("s3:ObjectCreated:Put", "documents", "empty.txt")
	summary, err := service.ProcessNotification(context.Background(), payload)
	require.NoError(t, err)

	// 空对象视为成功：旧向量被清理，但不写入新块
	assert.Equal(t, 1, summary.ProcessedRecords)
	assert.Equal(t, 0, summary.ChunksIndexed)
	assert.Equal(t, []string{"s3://documents/empty.txt"}, store.deleted)
	assert.Empty(t, store.records)
}

func TestIngestService_FetchFailureCountsAsFailure(t *testing.T) {
	objects := &fakeObjectStore{fetchErr: errors.New("connection refused")}
	store := &fakeVectorStore{}
	service := newTestIngestService(objects, &fakeEmbedder{dims: 4}, store)

	payload := notificationPayload("s3:ObjectCreated:Put", "documents", "missing.txt")
	summary, err := service.ProcessNotification(context.Background(), payload)
	require.NoError(t, err)

	// 单个对象失败不应让整条通知报错，否则消息会被反复重投
	assert.Equal(t, 0, summary.ProcessedRecords)
	assert.Equal(t, 1, summary.Failures)
	assert.Empty(t, store.records)
}

func TestIngestService_EmbeddingFailureCountsAsFailure(t *testing.T) {
	objects := &fakeObjectStore{
		data:        map[string][]byte{"documents/doc.txt": []byte("一些需要嵌入的文本。")},
		contentType: "text/plain",
	}
	store := &fakeVectorStore{}
	service := newTestIngestService(objects, &fakeEmbedder{dims: 4, embedErr: errors.New("model overloaded")}, store)

	payload := notificationPayload("s3:ObjectCreated:Put", "documents", "doc.txt")
	summary, err := service.ProcessNotification(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failures)
	assert.Empty(t, store.deleted)
	assert.Empty(t, store.records)
}

// panicEmbedder 模拟直接panic的嵌入实现
type panicEmbedder struct{ fakeEmbedder }

func (p *panicEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	panic("embedder exploded")
}

func TestIngestService_PanicCountsAsFailure(t *testing.T) {
	objects := &fakeObjectStore{
		data:        map[string][]byte{"documents/doc.txt": []byte("触发崩溃的文本。")},
		contentType: "text/plain",
	}
	store := &fakeVectorStore{}
	service := newTestIngestService(objects, &panicEmbedder{fakeEmbedder{dims: 4}}, store)

	payload := notificationPayload("s3:ObjectCreated:Put", "documents", "doc.txt")
	summary, err := service.ProcessNotification(context.Background(), payload)
	require.NoError(t, err)

	// panic收敛为单对象失败，不中断消费
	assert.Equal(t, 0, summary.ProcessedRecords)
	assert.Equal(t, 1, summary.Failures)
	assert.Empty(t, store.records)
	assert.Empty(t, store.deleted)
}

func TestIngestService_UpsertFailureCountsAsFailure(t *testing.T) {
	objects := &fakeObjectStore{
		data:        map[string][]byte{"documents/doc.txt": []byte("一些待入库的文本。")},
		contentType: "text/plain",
	}
	store := &fakeVectorStore{upsertErr: errors.New("collection unavailable")}
	service := newTestIngestService(objects, &fakeEmbedder{dims: 4}, store)

	payload := notificationPayload("s3:ObjectCreated:Put", "documents", "doc.txt")
	summary, err := service.ProcessNotification(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.ProcessedRecords)
	assert.Equal(t, 1, summary.Failures)
}

func TestIngestService_MixedOutcome(t *testing.T) {
	objects := &fakeObjectStore{
		data:        map[string][]byte{"documents/good.txt": []byte("存在的文档。")},
		contentType: "text/plain",
	}
	store := &fakeVectorStore{}
	service := newTestIngestService(objects, &fakeEmbedder{dims: 4}, store)

	payload := []byte(`{
		"Records": [
			{
				"eventSource": "minio:s3",
				"eventName": "s3:ObjectCreated:Put",
				"s3": {"bucket": {"name": "documents"}, "object": {"key": "good.txt"}}
			},
			{
				"eventSource": "minio:s3",
				"eventName": "s3:ObjectCreated:Put",
				"s3": {"bucket": {"name": "documents"}, "object": {"key": "bad.txt"}}
			}
		]
	}`)
	summary, err := service.ProcessNotification(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ProcessedRecords)
	assert.Equal(t, 1, summary.Failures)
}
