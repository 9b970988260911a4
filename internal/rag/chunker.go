package rag

import (
	"strings"
	"unicode/utf8"
)

// Chunk 切分后的一段文本，Index 为其在原文中的序号
type Chunk struct {
	Index int
	Text  string
}

// defaultSeparators 递归切分的级联分隔符，从段落到行到词逐级回退
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunker 递归文本分块器
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewChunker 创建分块器，chunkSize 与 overlap 以字符数计
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: overlap,
		separators:   defaultSeparators,
	}
}

// Split 将文本递归切分为带序号的块，空白输入返回 nil
func (c *Chunker) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	pieces := c.splitText(text, c.separators)
	chunks := make([]Chunk, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, Chunk{Index: len(chunks), Text: p})
	}
	return chunks
}

// splitText 选取文本中出现的最高级分隔符切分，超长片段用下一级分隔符继续递归
func (c *Chunker) splitText(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var next []string
	for i, s := range separators {
		if s == "" {
			separator = s
			next = nil
			break
		}
		if strings.Contains(text, s) {
			separator = s
			next = separators[i+1:]
			break
		}
	}

	splits := splitWithSeparator(text, separator)

	var final []string
	var good []string
	for _, s := range splits {
		if utf8.RuneCountInString(s) < c.chunkSize {
			good = append(good, s)
			continue
		}
		if len(good) > 0 {
			final = append(final, c.mergeSplits(good)...)
			good = nil
		}
		if len(next) == 0 {
			final = append(final, s)
		} else {
			final = append(final, c.splitText(s, next)...)
		}
	}
	if len(good) > 0 {
		final = append(final, c.mergeSplits(good)...)
	}
	return final
}

// splitWithSeparator 按分隔符切分并把分隔符保留在后续片段的开头，空分隔符按单字符切分
func splitWithSeparator(text, separator string) []string {
	var parts []string
	if separator == "" {
		parts = strings.Split(text, "")
	} else {
		raw := strings.Split(text, separator)
		parts = make([]string, 0, len(raw))
		for i, p := range raw {
			if i > 0 {
				p = separator + p
			}
			parts = append(parts, p)
		}
	}
	filtered := parts[:0]
	for _, p := range parts {
		if p != "" {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// mergeSplits 把相邻片段贪心合并到 chunkSize 以内，块间保留 chunkOverlap 的回看窗口
func (c *Chunker) mergeSplits(splits []string) []string {
	var docs []string
	var current []string
	total := 0
	for _, d := range splits {
		dLen := utf8.RuneCountInString(d)
		if total+dLen > c.chunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				docs = append(docs, doc)
			}
			for total > c.chunkOverlap || (total+dLen > c.chunkSize && total > 0) {
				total -= utf8.RuneCountInString(current[0])
				current = current[1:]
			}
		}
		current = append(current, d)
		total += dLen
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}
