package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpipe/rag-go/internal/config"
	apperrors "github.com/docpipe/rag-go/internal/errors"
	"github.com/docpipe/rag-go/internal/rag"
)

// fakeSynthesizer 模拟回答生成
type fakeSynthesizer struct {
	answer   *rag.Answer
	synthErr error
	calls    int
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, query string, results []rag.SearchResult) (*rag.Answer, error) {
	f.calls++
	if f.synthErr != nil {
		return nil, f.synthErr
	}
	return f.answer, nil
}

func (f *fakeSynthesizer) Ready() bool { return true }

func sampleResults() []rag.SearchResult {
	return []rag.SearchResult{
		{Content: "营收同比增长12%。", Source: "s3://documents/q1.txt", ChunkID: 0, ChunkSize: 24, Score: 0.92},
		{Content: "利润率保持在18%以上。", Source: "s3://documents/q1.txt", ChunkID: 1, ChunkSize: 30, Score: 0.87},
	}
}

func newTestQueryService(store rag.VectorStore, synthesizer rag.Synthesizer) *QueryService {
	return NewQueryService(&fakeEmbedder{dims: 4}, store, synthesizer, NewMetricsService())
}

func TestQueryService_SearchOnly(t *testing.T) {
	store := &fakeVectorStore{results: sampleResults()}
	service := newTestQueryService(store, &fakeSynthesizer{})

	payload, err := service.Query(context.Background(), "第一季度营收如何", true)
	require.NoError(t, err)

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(payload, &resp))

	assert.Equal(t, "第一季度营收如何", resp.Query)
	assert.Equal(t, "similarity_search", resp.Type)
	require.Len(t, resp.Documents, 2)
	assert.Equal(t, "营收同比增长12%。", resp.Documents[0].Content)
	assert.Equal(t, "s3://documents/q1.txt", resp.Documents[0].Metadata.Source)
	assert.Equal(t, 0, resp.Documents[0].Metadata.ChunkID)
	assert.Equal(t, 24, resp.Documents[0].Metadata.ChunkSize)
	assert.InDelta(t, 0.92, resp.Documents[0].Score, 1e-9)
}

func TestQueryService_SearchOnlySkipsSynthesizer(t *testing.T) {
	synthesizer := &fakeSynthesizer{}
	service := newTestQueryService(&fakeVectorStore{results: sampleResults()}, synthesizer)

	_, err := service.Query(context.Background(), "第一季度营收如何", true)
	require.NoError(t, err)
	assert.Equal(t, 0, synthesizer.calls)
}

func TestQueryService_Answer(t *testing.T) {
	store := &fakeVectorStore{results: sampleResults()}
	synthesizer := &fakeSynthesizer{
		answer: &rag.Answer{
			Response: "第一季度营收同比增长12%，利润率保持在18%以上。",
			Sources: []rag.SourceRef{
				{Source: "s3://documents/q1.txt", ChunkID: 0, Score: 0.92, ContentPreview: "营收同比增长12%。"},
			},
		},
	}
	service := newTestQueryService(store, synthesizer)

	payload, err := service.Query(context.Background(), "第一季度营收如何", false)
	require.NoError(t, err)
	assert.Equal(t, 1, synthesizer.calls)

	var resp AnswerResponse
	require.NoError(t, json.Unmarshal(payload, &resp))

	assert.Equal(t, "第一季度营收如何", resp.Query)
	assert.Equal(t, "第一季度营收同比增长12%，利润率保持在18%以上。", resp.Response)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "s3://documents/q1.txt", resp.Sources[0].Source)
	assert.Equal(t, "营收同比增长12%。", resp.Sources[0].ContentPreview)
}

func TestQueryService_BlankQuery(t *testing.T) {
	service := newTestQueryService(&fakeVectorStore{}, &fakeSynthesizer{})

	_, err := service.Query(context.Background(), "   ", false)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, appErr.Code)
	assert.Equal(t, "Query parameter is required", appErr.Message)
}

func TestQueryService_TopKFromConfig(t *testing.T) {
	results := make([]rag.SearchResult, 7)
	for i := range results {
		results[i] = rag.SearchResult{Content: "块", Source: "s3://documents/big.txt", ChunkID: i, Score: 0.5}
	}
	store := &fakeVectorStore{results: results}
	service := newTestQueryService(store, &fakeSynthesizer{})

	// 未配置时默认取前5条
	payload, err := service.Query(context.Background(), "默认topK", true)
	require.NoError(t, err)

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(payload, &resp))
	assert.Len(t, resp.Documents, 5)

	// 配置覆盖默认值
	config.AppConfig = &config.Config{Retrieval: config.RetrievalConfig{TopK: 2}}
	defer func() { config.AppConfig = nil }()

	payload, err = service.Query(context.Background(), "配置topK", true)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, &resp))
	assert.Len(t, resp.Documents, 2)
}

func TestQueryService_EmbeddingError(t *testing.T) {
	service := NewQueryService(
		&fakeEmbedder{dims: 4, embedErr: errors.New("model overloaded")},
		&fakeVectorStore{}, &fakeSynthesizer{}, NewMetricsService())

	_, err := service.Query(context.Background(), "任意查询", true)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeEmbeddingError, appErr.Code)
}

func TestQueryService_SearchError(t *testing.T) {
	store := &fakeVectorStore{searchErr: errors.New("collection not loaded")}
	service := newTestQueryService(store, &fakeSynthesizer{})

	_, err := service.Query(context.Background(), "任意查询", true)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeVectorStore, appErr.Code)
}

func TestQueryService_SynthesisError(t *testing.T) {
	store := &fakeVectorStore{results: sampleResults()}
	service := newTestQueryService(store, &fakeSynthesizer{synthErr: errors.New("context length exceeded")})

	_, err := service.Query(context.Background(), "任意查询", false)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeSynthesisError, appErr.Code)
}

func TestQueryService_NoResultsStillAnswers(t *testing.T) {
	synthesizer := &fakeSynthesizer{answer: &rag.Answer{Response: "知识库中没有相关内容。"}}
	service := newTestQueryService(&fakeVectorStore{}, synthesizer)

	payload, err := service.Query(context.Background(), "完全无关的问题", false)
	require.NoError(t, err)

	var resp AnswerResponse
	require.NoError(t, json.Unmarshal(payload, &resp))
	assert.Equal(t, "知识库中没有相关内容。", resp.Response)
	assert.Empty(t, resp.Sources)
}
