package dashscope

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/docpipe/rag-go/internal/logger"
	"go.uber.org/zap"
)

// Service 统一的DashScope服务，支持LLM与Embedding
type Service struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter sync.Mutex
}

// ChatRequest 聊天请求（兼容OpenAI格式）
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
}

// ChatMessage 聊天消息
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse 聊天响应（兼容OpenAI格式）
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// EmbeddingRequest 向量化请求（兼容OpenAI格式）
type EmbeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     *int     `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

// EmbeddingResponse 向量化响应（兼容OpenAI格式）
type EmbeddingResponse struct {
	Object string                  `json:"object"`
	Data   []EmbeddingResponseData `json:"data"`
	Model  string                  `json:"model"`
	Usage  EmbeddingUsage          `json:"usage"`
}

type EmbeddingResponseData struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type EmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Error DashScope API错误
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// NewService 创建DashScope服务
func NewService(apiKey string) *Service {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		logger.Warn("DashScope API key is empty")
		return nil
	}

	return &Service{
		apiKey:  apiKey,
		baseURL: "https://dashscope.aliyuncs.com",
		client: &http.Client{
			Timeout: 60 * time.Second, // LLM可能需要更长时间
		},
	}
}

// postJSON 发送请求并把响应体解析到out
func (s *Service) postJSON(ctx context.Context, path string, payload, out interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}

	url := s.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.apiKey))

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("API调用失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp Error
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Message != "" {
			return fmt.Errorf("DashScope API错误: %s (code: %s, request_id: %s)",
				errorResp.Message, errorResp.Code, errorResp.RequestID)
		}
		return fmt.Errorf("DashScope API错误: HTTP %d - %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}

// ChatCompletion 调用LLM聊天接口
func (s *Service) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("DashScope service not initialized")
	}

	s.limiter.Lock()
	defer s.limiter.Unlock()

	var chatResp ChatResponse
	if err := s.postJSON(ctx, "/compatible-mode/v1/chat/completions", req, &chatResp); err != nil {
		return nil, err
	}

	logger.Info("DashScope ChatCompletion success",
		zap.String("model", req.Model),
		zap.Int("prompt_tokens", chatResp.Usage.PromptTokens),
		zap.Int("completion_tokens", chatResp.Usage.CompletionTokens))

	return &chatResp, nil
}

// CreateEmbeddings 调用向量化接口
func (s *Service) CreateEmbeddings(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("DashScope service not initialized")
	}

	s.limiter.Lock()
	defer s.limiter.Unlock()

	var embeddingResp EmbeddingResponse
	if err := s.postJSON(ctx, "/compatible-mode/v1/embeddings", req, &embeddingResp); err != nil {
		return nil, err
	}

	logger.Info("DashScope CreateEmbeddings success",
		zap.String("model", req.Model),
		zap.Int("input_count", len(req.Input)),
		zap.Int("total_tokens", embeddingResp.Usage.TotalTokens))

	return &embeddingResp, nil
}

// Ready 检查服务是否就绪
func (s *Service) Ready() bool {
	return s != nil && s.client != nil && s.apiKey != ""
}
