package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreviewContent(t *testing.T) {
	assert.Equal(t, "short text", previewContent("short text"))

	exact := strings.Repeat("a", 200)
	assert.Equal(t, exact, previewContent(exact))

	long := strings.Repeat("b", 300)
	preview := previewContent(long)
	assert.Equal(t, strings.Repeat("b", 200)+"...", preview)

	// 截断按字符而不是字节
	cjk := strings.Repeat("文", 250)
	assert.Equal(t, strings.Repeat("文", 200)+"...", previewContent(cjk))
}

func TestBuildSources(t *testing.T) {
	results := []SearchResult{
		{Source: "s3://docs/a.txt", ChunkID: 0, Score: 0.91, Content: "first chunk"},
		{Source: "s3://docs/a.txt", ChunkID: 1, Score: 0.84, Content: strings.Repeat("x", 240)},
	}

	sources := buildSources(results)
	require.Len(t, sources, 2)
	assert.Equal(t, "s3://docs/a.txt", sources[0].Source)
	assert.Equal(t, 0, sources[0].ChunkID)
	assert.Equal(t, 0.91, sources[0].Score)
	assert.Equal(t, "first chunk", sources[0].ContentPreview)
	assert.Equal(t, strings.Repeat("x", 200)+"...", sources[1].ContentPreview)
}

func TestBuildUserPrompt(t *testing.T) {
	results := []SearchResult{
		{Content: "chunk one"},
		{Content: "chunk two"},
	}

	prompt := buildUserPrompt("what is this?", results)
	assert.Contains(t, prompt, "Context:\nchunk one\n\nchunk two")
	assert.Contains(t, prompt, "Question: what is this?")
	assert.Contains(t, prompt, "based only on the information provided")
}

func TestApplyChatDefaults(t *testing.T) {
	opts := ChatOptions{}
	applyChatDefaults(&opts)
	assert.Equal(t, 2000, opts.MaxTokens)
	assert.Equal(t, 0.1, opts.Temperature)
	assert.Equal(t, 0.9, opts.TopP)

	opts = ChatOptions{MaxTokens: 500, Temperature: 0.7, TopP: 0.5}
	applyChatDefaults(&opts)
	assert.Equal(t, 500, opts.MaxTokens)
	assert.Equal(t, 0.7, opts.Temperature)
	assert.Equal(t, 0.5, opts.TopP)
}

func TestNewSynthesizer_Fallbacks(t *testing.T) {
	// 没有API key时回退为Noop
	s := NewSynthesizer(ChatOptions{Provider: "openai"})
	assert.False(t, s.Ready())

	// 未知提供方回退为Noop
	s = NewSynthesizer(ChatOptions{Provider: "whatever", APIKey: "key"})
	assert.False(t, s.Ready())

	// 全局DashScope服务未初始化时回退为Noop
	s = NewSynthesizer(ChatOptions{Provider: "dashscope"})
	assert.False(t, s.Ready())

	_, err := s.Synthesize(context.Background(), "q", nil)
	assert.Error(t, err)
}

func TestNewSynthesizer_OpenAI(t *testing.T) {
	s := NewSynthesizer(ChatOptions{Provider: "openai", APIKey: "test-key"})
	require.IsType(t, &OpenAISynthesizer{}, s)
	assert.True(t, s.Ready())

	impl := s.(*OpenAISynthesizer)
	assert.Equal(t, "gpt-4o-mini", impl.model)
	assert.Equal(t, 2000, impl.maxTokens)
}
