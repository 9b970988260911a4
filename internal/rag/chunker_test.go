package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_Defaults(t *testing.T) {
	c := NewChunker(0, -1)
	assert.Equal(t, 1000, c.chunkSize)
	assert.Equal(t, 0, c.chunkOverlap)

	// overlap 不允许吞掉整个窗口
	c = NewChunker(100, 200)
	assert.Equal(t, 100, c.chunkSize)
	assert.Equal(t, 25, c.chunkOverlap)
}

func TestChunker_EmptyInput(t *testing.T) {
	c := NewChunker(1000, 100)
	assert.Nil(t, c.Split(""))
	assert.Nil(t, c.Split("   \n\t  "))
}

func TestChunker_ShortText(t *testing.T) {
	c := NewChunker(1000, 100)
	chunks := c.Split("hello world")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "hello world", chunks[0].Text)
}

func TestChunker_ParagraphBoundary(t *testing.T) {
	c := NewChunker(25, 0)
	chunks := c.Split("alpha beta gamma\n\ndelta epsilon zeta")
	require.Len(t, chunks, 2)
	// 段落整体保留，不跨段合并
	assert.Equal(t, "alpha beta gamma", chunks[0].Text)
	assert.Equal(t, "delta epsilon zeta", chunks[1].Text)
}

func TestChunker_LineBoundary(t *testing.T) {
	c := NewChunker(12, 0)
	chunks := c.Split("line one\nline two\nline three")
	require.Len(t, chunks, 3)
	assert.Equal(t, "line one", chunks[0].Text)
	assert.Equal(t, "line two", chunks[1].Text)
	assert.Equal(t, "line three", chunks[2].Text)
}

func TestChunker_WordOverlap(t *testing.T) {
	c := NewChunker(10, 5)
	chunks := c.Split("aaaa bbbb cccc dddd eeee")
	require.Len(t, chunks, 4)
	assert.Equal(t, "aaaa bbbb", chunks[0].Text)
	assert.Equal(t, "bbbb cccc", chunks[1].Text)
	assert.Equal(t, "cccc dddd", chunks[2].Text)
	assert.Equal(t, "dddd eeee", chunks[3].Text)
}

func TestChunker_CharacterFallback(t *testing.T) {
	// 无任何分隔符时退化为按字符硬切
	c := NewChunker(10, 0)
	chunks := c.Split(strings.Repeat("x", 25))
	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("x", 10), chunks[0].Text)
	assert.Equal(t, strings.Repeat("x", 10), chunks[1].Text)
	assert.Equal(t, strings.Repeat("x", 5), chunks[2].Text)
}

func TestChunker_UnicodeByRune(t *testing.T) {
	c := NewChunker(10, 0)
	chunks := c.Split(strings.Repeat("知", 15))
	require.Len(t, chunks, 2)
	assert.Equal(t, 10, utf8.RuneCountInString(chunks[0].Text))
	assert.Equal(t, 5, utf8.RuneCountInString(chunks[1].Text))
}

func TestChunker_SequentialIndexes(t *testing.T) {
	c := NewChunker(50, 10)
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("some words in a sentence ")
		if i%5 == 4 {
			b.WriteString("\n\n")
		}
	}
	chunks := c.Split(b.String())
	require.NotEmpty(t, chunks)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.NotEmpty(t, ch.Text)
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), 50)
	}
}

func TestChunker_MixedStructure(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "paragraphs", text: "first paragraph here\n\nsecond paragraph follows\n\nthird one closes"},
		{name: "long lines", text: strings.Repeat("a long line of text that keeps going\n", 8)},
		{name: "no separators", text: strings.Repeat("Z", 120)},
	}

	c := NewChunker(30, 5)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := c.Split(tt.text)
			require.NotEmpty(t, chunks)
			kept := 0
			for _, ch := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), 30)
				assert.Equal(t, strings.TrimSpace(ch.Text), ch.Text)
				kept += len(strings.Join(strings.Fields(ch.Text), ""))
			}
			// 切分只丢弃空白，非空白内容全部落入块中（重叠部分重复计入）
			assert.GreaterOrEqual(t, kept, len(strings.Join(strings.Fields(tt.text), "")))
		})
	}
}
