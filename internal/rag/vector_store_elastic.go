package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ElasticOptions Elasticsearch向量索引配置
type ElasticOptions struct {
	Addresses  []string
	Username   string
	Password   string
	APIKey     string
	IndexName  string
	VectorSize int
}

type elasticVectorStore struct {
	client     *elasticsearch.Client
	index      string
	vectorSize int
	mu         sync.Mutex
	indexReady bool
}

// NewElasticVectorStore 创建基于dense_vector kNN的ES向量存储
func NewElasticVectorStore(opts ElasticOptions) (VectorStore, error) {
	if len(opts.Addresses) == 0 {
		opts.Addresses = []string{"http://localhost:9200"}
	}
	if opts.IndexName == "" {
		opts.IndexName = "rag-documents-v2"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1024
	}

	cfg := elasticsearch.Config{
		Addresses: opts.Addresses,
		Username:  opts.Username,
		Password:  opts.Password,
		APIKey:    opts.APIKey,
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &elasticVectorStore{
		client:     client,
		index:      opts.IndexName,
		vectorSize: opts.VectorSize,
	}, nil
}

func (e *elasticVectorStore) ensureIndex(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.indexReady {
		return nil
	}

	existsReq := esapi.IndicesExistsRequest{
		Index: []string{e.index},
	}
	resp, err := existsReq.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		e.indexReady = true
		return nil
	}

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"source":     map[string]interface{}{"type": "keyword"},
				"chunk_id":   map[string]interface{}{"type": "integer"},
				"chunk_size": map[string]interface{}{"type": "integer"},
				"content":    map[string]interface{}{"type": "text"},
				"embedding": map[string]interface{}{
					"type":       "dense_vector",
					"dims":       e.vectorSize,
					"index":      true,
					"similarity": "cosine",
					"index_options": map[string]interface{}{
						"type":            "hnsw",
						"m":               16,
						"ef_construction": 200,
					},
				},
				"created_at": map[string]interface{}{"type": "date"},
			},
		},
	}

	body, _ := json.Marshal(mapping)
	createReq := esapi.IndicesCreateRequest{
		Index: e.index,
		Body:  bytes.NewReader(body),
	}
	createResp, err := createReq.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer createResp.Body.Close()

	if createResp.IsError() {
		return fmt.Errorf("create index error: %s", createResp.String())
	}

	e.indexReady = true
	return nil
}

func (e *elasticVectorStore) UpsertChunks(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := e.ensureIndex(ctx); err != nil {
		return 0, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var buf bytes.Buffer
	for _, r := range records {
		if len(r.Embedding) == 0 {
			return 0, fmt.Errorf("record %d: embedding is empty", r.ChunkID)
		}
		meta := map[string]interface{}{
			"index": map[string]interface{}{
				"_index": e.index,
				"_id":    fmt.Sprintf("%s#%d", r.Source, r.ChunkID),
			},
		}
		doc := map[string]interface{}{
			"source":     r.Source,
			"chunk_id":   r.ChunkID,
			"chunk_size": r.ChunkSize,
			"content":    r.Content,
			"embedding":  r.Embedding,
			"created_at": now,
		}
		metaLine, _ := json.Marshal(meta)
		docLine, _ := json.Marshal(doc)
		buf.Write(metaLine)
		buf.WriteByte('\n')
		buf.Write(docLine)
		buf.WriteByte('\n')
	}

	bulkReq := esapi.BulkRequest{
		Body:    bytes.NewReader(buf.Bytes()),
		Refresh: "true",
	}
	resp, err := bulkReq.Do(ctx, e.client)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return 0, fmt.Errorf("bulk index error: %s", resp.String())
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, err
	}
	if hasErrors, _ := result["errors"].(bool); hasErrors {
		return 0, fmt.Errorf("bulk index error: %s", firstBulkError(result))
	}

	return len(records), nil
}

// firstBulkError 从bulk响应中提取第一条失败原因
func firstBulkError(result map[string]interface{}) string {
	items, _ := result["items"].([]interface{})
	for _, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		for _, action := range item {
			detail, ok := action.(map[string]interface{})
			if !ok {
				continue
			}
			if errInfo, ok := detail["error"].(map[string]interface{}); ok {
				return fmt.Sprintf("%v: %v", errInfo["type"], errInfo["reason"])
			}
		}
	}
	return "unknown failure"
}

func (e *elasticVectorStore) DeleteBySource(ctx context.Context, source string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"source": source,
			},
		},
	}

	body, _ := json.Marshal(query)
	req := esapi.DeleteByQueryRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(body),
	}

	resp, err := req.Do(ctx, e.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// 索引尚不存在时无可删除
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.IsError() {
		return fmt.Errorf("delete by source error: %s", resp.String())
	}

	return nil
}

func (e *elasticVectorStore) Search(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}
	if err := e.ensureIndex(ctx); err != nil {
		return nil, err
	}

	numCandidates := topK * 10
	if numCandidates < 50 {
		numCandidates = 50
	}
	body := map[string]interface{}{
		"size": topK,
		"knn": map[string]interface{}{
			"field":          "embedding",
			"query_vector":   embedding,
			"k":              topK,
			"num_candidates": numCandidates,
		},
		"_source": []string{"source", "chunk_id", "chunk_size", "content"},
	}

	payload, _ := json.Marshal(body)
	searchReq := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(payload),
	}

	resp, err := searchReq.Do(ctx, e.client)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, fmt.Errorf("knn search error: %s", resp.String())
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	hits, ok := result["hits"].(map[string]interface{})
	if !ok {
		return []SearchResult{}, nil
	}
	rawHits, ok := hits["hits"].([]interface{})
	if !ok {
		return []SearchResult{}, nil
	}

	matches := make([]SearchResult, 0, len(rawHits))
	for _, raw := range rawHits {
		hit, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		score, _ := hit["_score"].(float64)
		doc, ok := hit["_source"].(map[string]interface{})
		if !ok {
			continue
		}
		content, _ := doc["content"].(string)
		source, _ := doc["source"].(string)
		chunkID, _ := doc["chunk_id"].(float64)
		chunkSize, _ := doc["chunk_size"].(float64)

		matches = append(matches, SearchResult{
			Content:   content,
			Source:    source,
			ChunkID:   int(chunkID),
			ChunkSize: int(chunkSize),
			Score:     score,
		})
	}

	return matches, nil
}

func (e *elasticVectorStore) Ready() bool {
	if e.client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return !resp.IsError()
}

func (e *elasticVectorStore) Name() string {
	return "elasticsearch"
}
