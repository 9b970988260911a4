package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docpipe/rag-go/internal/dashscope"
)

// DashScopeEmbedder 使用阿里云DashScope Embedding API（基于统一服务）
type DashScopeEmbedder struct {
	service    *dashscope.Service
	model      string
	dimensions int
}

// 千问Embedding模型维度映射
var dashscopeEmbeddingDimensions = map[string]int{
	"text-embedding-v1": 1536,
	"text-embedding-v2": 1536,
	"text-embedding-v3": 1024, // 支持自定义维度
	"text-embedding-v4": 1024, // 支持自定义维度
}

// NewDashScopeEmbedder 创建DashScope嵌入向量生成器
func NewDashScopeEmbedder(model string, dimensions int) Embedder {
	// 使用全局DashScope服务
	service := dashscope.GetGlobalService()
	if service == nil || !service.Ready() {
		return &NoopEmbedder{}
	}

	if model == "" {
		model = "text-embedding-v3"
	}
	if dimensions <= 0 {
		if d, ok := dashscopeEmbeddingDimensions[model]; ok {
			dimensions = d
		} else {
			dimensions = 1024
		}
	}

	return &DashScopeEmbedder{
		service:    service,
		model:      model,
		dimensions: dimensions,
	}
}

func (e *DashScopeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text is empty")
	}
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *DashScopeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("texts are empty")
	}
	if e.service == nil || !e.service.Ready() {
		return nil, errors.New("dashscope service not initialized")
	}

	req := dashscope.EmbeddingRequest{
		Model:          e.model,
		Input:          texts,
		EncodingFormat: "float",
	}
	// v3和v4模型可以指定输出维度
	if e.model == "text-embedding-v3" || e.model == "text-embedding-v4" {
		req.Dimensions = &e.dimensions
	}

	resp, err := e.service.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response incomplete: got %d of %d", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding response index out of range: %d", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vectors[d.Index] = vec
	}
	return vectors, nil
}

func (e *DashScopeEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *DashScopeEmbedder) Ready() bool {
	return e.service != nil && e.service.Ready()
}
