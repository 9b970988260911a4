package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedder_ProviderSelection(t *testing.T) {
	// 没有API key时回退为Noop
	e := NewEmbedder("openai", "", "", "", 0)
	assert.False(t, e.Ready())

	// 未知提供方回退为Noop
	e = NewEmbedder("hf", "key", "", "", 0)
	assert.False(t, e.Ready())

	e = NewEmbedder("noop", "", "", "", 0)
	assert.False(t, e.Ready())

	// 全局DashScope服务未初始化时回退为Noop
	e = NewEmbedder("dashscope", "", "", "", 0)
	assert.False(t, e.Ready())
}

func TestNewOpenAIEmbedder_Dimensions(t *testing.T) {
	e := NewOpenAIEmbedder("test-key", "", "", 1024)
	require.IsType(t, &OpenAIEmbedder{}, e)
	assert.True(t, e.Ready())
	assert.Equal(t, 1024, e.Dimensions())

	// 已知模型按映射取默认维度
	e = NewOpenAIEmbedder("test-key", "", "text-embedding-3-large", 0)
	assert.Equal(t, 3072, e.Dimensions())

	// 未知模型默认1024
	e = NewOpenAIEmbedder("test-key", "", "custom-embed", 0)
	assert.Equal(t, 1024, e.Dimensions())
}

func TestNoopEmbedder(t *testing.T) {
	e := &NoopEmbedder{}
	assert.False(t, e.Ready())
	assert.Equal(t, 0, e.Dimensions())

	_, err := e.Embed(context.Background(), "text")
	assert.Error(t, err)

	_, err = e.EmbedBatch(context.Background(), []string{"text"})
	assert.Error(t, err)
}

func TestOpenAIEmbedder_EmptyInput(t *testing.T) {
	e := NewOpenAIEmbedder("test-key", "", "", 1024)

	_, err := e.Embed(context.Background(), "  ")
	assert.Error(t, err)

	_, err = e.EmbedBatch(context.Background(), nil)
	assert.Error(t, err)
}
