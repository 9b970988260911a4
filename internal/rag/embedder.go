package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docpipe/rag-go/internal/logger"
	"go.uber.org/zap"
)

// Embedder 定义文本向量化接口
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Ready() bool
}

// NoopEmbedder 默认占位实现
type NoopEmbedder struct{}

func (n *NoopEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding provider not configured")
}

func (n *NoopEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedding provider not configured")
}

func (n *NoopEmbedder) Dimensions() int {
	return 0
}

func (n *NoopEmbedder) Ready() bool {
	return false
}

var embeddingDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// NewEmbedder 按提供方名称创建向量化器，未知提供方回退为Noop
func NewEmbedder(provider, apiKey, baseURL, model string, dimensions int) Embedder {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai", "":
		return NewOpenAIEmbedder(apiKey, baseURL, model, dimensions)
	case "dashscope":
		return NewDashScopeEmbedder(model, dimensions)
	case "noop", "none":
		return &NoopEmbedder{}
	default:
		logger.Warn("unknown embedding provider, falling back to noop",
			zap.String("provider", provider))
		return &NoopEmbedder{}
	}
}

// OpenAIEmbedder 使用OpenAI兼容的Embedding API
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	limiter    sync.Mutex
}

// NewOpenAIEmbedder 创建OpenAI嵌入向量生成器，baseURL为空时使用官方端点
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions int) Embedder {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &NoopEmbedder{}
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dimensions <= 0 {
		if d, ok := embeddingDimensions[model]; ok {
			dimensions = d
		} else {
			dimensions = 1024
		}
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	client := openai.NewClientWithConfig(cfg)

	return &OpenAIEmbedder{
		client:     client,
		model:      model,
		dimensions: dimensions,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text is empty")
	}
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("texts are empty")
	}
	if e.client == nil {
		return nil, errors.New("openai client not initialized")
	}

	e.limiter.Lock()
	defer e.limiter.Unlock()

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	}
	// 3系列模型支持自定义输出维度
	if strings.HasPrefix(e.model, "text-embedding-3") {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
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
		copy(vec, d.Embedding)
		vectors[d.Index] = vec
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *OpenAIEmbedder) Ready() bool {
	return e.client != nil
}
