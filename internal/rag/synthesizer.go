package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docpipe/rag-go/internal/dashscope"
	"github.com/docpipe/rag-go/internal/logger"
	"go.uber.org/zap"
)

// answerInstruction 回答约束，要求仅基于检索到的上下文作答
const answerInstruction = "Use the following context to answer the question. " +
	"If you cannot answer based on the context provided, say so clearly."

// SourceRef 回答引用的来源块
type SourceRef struct {
	Source         string  `json:"source"`
	ChunkID        int     `json:"chunk_id"`
	Score          float64 `json:"score"`
	ContentPreview string  `json:"content_preview"`
}

// Answer LLM生成的回答及其引用
type Answer struct {
	Response string
	Sources  []SourceRef
}

// Synthesizer 基于检索结果生成带引用的回答
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, results []SearchResult) (*Answer, error)
	Ready() bool
}

// ChatOptions 生成模型配置
type ChatOptions struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// NewSynthesizer 按提供方名称创建回答生成器，未配置时回退为Noop
func NewSynthesizer(opts ChatOptions) Synthesizer {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "openai", "":
		return NewOpenAISynthesizer(opts)
	case "dashscope":
		return NewDashScopeSynthesizer(opts)
	case "noop", "none":
		return &NoopSynthesizer{}
	default:
		logger.Warn("unknown chat provider, falling back to noop",
			zap.String("provider", opts.Provider))
		return &NoopSynthesizer{}
	}
}

// NoopSynthesizer 默认占位实现
type NoopSynthesizer struct{}

func (n *NoopSynthesizer) Synthesize(ctx context.Context, query string, results []SearchResult) (*Answer, error) {
	return nil, errors.New("chat provider not configured")
}

func (n *NoopSynthesizer) Ready() bool {
	return false
}

// buildUserPrompt 把检索到的块拼成上下文并附上问题
func buildUserPrompt(query string, results []SearchResult) string {
	contents := make([]string, 0, len(results))
	for _, r := range results {
		contents = append(contents, r.Content)
	}
	contextText := strings.Join(contents, "\n\n")

	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\n"+
		"Please provide a clear, concise answer based only on the information provided in the context above.",
		contextText, query)
}

// buildSources 生成引用列表，正文截断到200字符
func buildSources(results []SearchResult) []SourceRef {
	sources := make([]SourceRef, 0, len(results))
	for _, r := range results {
		sources = append(sources, SourceRef{
			Source:         r.Source,
			ChunkID:        r.ChunkID,
			Score:          r.Score,
			ContentPreview: previewContent(r.Content),
		})
	}
	return sources
}

func previewContent(content string) string {
	runes := []rune(content)
	if len(runes) <= 200 {
		return content
	}
	return string(runes[:200]) + "..."
}

// OpenAISynthesizer 使用OpenAI兼容的Chat Completions API
type OpenAISynthesizer struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	topP        float32
}

// NewOpenAISynthesizer 创建OpenAI回答生成器，baseURL为空时使用官方端点
func NewOpenAISynthesizer(opts ChatOptions) Synthesizer {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return &NoopSynthesizer{}
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	applyChatDefaults(&opts)

	cfg := openai.DefaultConfig(apiKey)
	if baseURL := strings.TrimSpace(opts.BaseURL); baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAISynthesizer{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: float32(opts.Temperature),
		topP:        float32(opts.TopP),
	}
}

func applyChatDefaults(opts *ChatOptions) {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2000
	}
	if opts.Temperature <= 0 {
		opts.Temperature = 0.1
	}
	if opts.TopP <= 0 {
		opts.TopP = 0.9
	}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, query string, results []SearchResult) (*Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is empty")
	}
	if s.client == nil {
		return nil, errors.New("openai client not initialized")
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: answerInstruction},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(query, results)},
		},
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		TopP:        s.topP,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from chat model")
	}

	logger.Info("chat completion finished",
		zap.String("model", s.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	return &Answer{
		Response: resp.Choices[0].Message.Content,
		Sources:  buildSources(results),
	}, nil
}

func (s *OpenAISynthesizer) Ready() bool {
	return s.client != nil
}

// DashScopeSynthesizer 使用DashScope兼容模式聊天接口
type DashScopeSynthesizer struct {
	service     *dashscope.Service
	model       string
	maxTokens   int
	temperature float64
	topP        float64
}

// NewDashScopeSynthesizer 创建DashScope回答生成器
func NewDashScopeSynthesizer(opts ChatOptions) Synthesizer {
	service := dashscope.GetGlobalService()
	if service == nil || !service.Ready() {
		return &NoopSynthesizer{}
	}
	if opts.Model == "" {
		opts.Model = "qwen-turbo"
	}
	applyChatDefaults(&opts)

	return &DashScopeSynthesizer{
		service:     service,
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		topP:        opts.TopP,
	}
}

func (s *DashScopeSynthesizer) Synthesize(ctx context.Context, query string, results []SearchResult) (*Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is empty")
	}
	if s.service == nil || !s.service.Ready() {
		return nil, errors.New("dashscope service not initialized")
	}

	req := dashscope.ChatRequest{
		Model: s.model,
		Messages: []dashscope.ChatMessage{
			{Role: "system", Content: answerInstruction},
			{Role: "user", Content: buildUserPrompt(query, results)},
		},
		MaxTokens:   &s.maxTokens,
		Temperature: &s.temperature,
		TopP:        &s.topP,
	}

	resp, err := s.service.ChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from chat model")
	}

	return &Answer{
		Response: resp.Choices[0].Message.Content,
		Sources:  buildSources(results),
	}, nil
}

func (s *DashScopeSynthesizer) Ready() bool {
	return s.service != nil && s.service.Ready()
}
