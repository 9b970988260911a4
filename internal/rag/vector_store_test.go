package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVectorStore_UnknownType(t *testing.T) {
	_, err := NewVectorStore(StoreOptions{Type: "chroma"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown vector store type")
}

func TestNewVectorStore_Noop(t *testing.T) {
	store, err := NewVectorStore(StoreOptions{Type: "noop"})
	require.NoError(t, err)
	assert.Equal(t, "noop", store.Name())
	assert.False(t, store.Ready())

	_, err = store.UpsertChunks(context.Background(), []Record{{Content: "x"}})
	assert.Error(t, err)

	_, err = store.Search(context.Background(), []float32{0.1}, 5)
	assert.Error(t, err)

	// 没有任何数据时删除是安全的
	assert.NoError(t, store.DeleteBySource(context.Background(), "s3://b/k"))
}

func TestNewElasticVectorStore_Defaults(t *testing.T) {
	store, err := NewElasticVectorStore(ElasticOptions{})
	require.NoError(t, err)
	assert.Equal(t, "elasticsearch", store.Name())

	impl := store.(*elasticVectorStore)
	assert.Equal(t, "rag-documents-v2", impl.index)
	assert.Equal(t, 1024, impl.vectorSize)
}

func TestSanitizeCollectionName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"rag-documents-v2", "rag_documents_v2"},
		{"already_ok", "already_ok"},
		{"9starts.with.digit", "_9starts_with_digit"},
		{"", "_"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeCollectionName(tt.in))
	}
}

func TestFormatMilvusDistance(t *testing.T) {
	assert.Equal(t, "IP", formatMilvusDistance("dot"))
	assert.Equal(t, "IP", formatMilvusDistance("INNER_PRODUCT"))
	assert.Equal(t, "L2", formatMilvusDistance("euclidean"))
	assert.Equal(t, "COSINE", formatMilvusDistance("cosine"))
	assert.Equal(t, "COSINE", formatMilvusDistance(""))
}

func TestFirstBulkError(t *testing.T) {
	result := map[string]interface{}{
		"errors": true,
		"items": []interface{}{
			map[string]interface{}{
				"index": map[string]interface{}{
					"status": float64(201),
				},
			},
			map[string]interface{}{
				"index": map[string]interface{}{
					"status": float64(400),
					"error": map[string]interface{}{
						"type":   "mapper_parsing_exception",
						"reason": "failed to parse field [embedding]",
					},
				},
			},
		},
	}

	msg := firstBulkError(result)
	assert.Contains(t, msg, "mapper_parsing_exception")
	assert.Contains(t, msg, "failed to parse field")

	assert.Equal(t, "unknown failure", firstBulkError(map[string]interface{}{}))
}
