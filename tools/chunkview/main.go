package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/docpipe/rag-go/internal/rag"
)

// 默认样例，未指定输入文件时用于快速观察切分效果
const sampleText = `检索增强生成把外部文档引入大模型的回答过程。文档先被切分成带重叠的小块，逐块计算向量后写入向量库。

查询阶段先对问题做向量化，再从向量库里找出最相近的文本块，连同原始问题一起交给大模型，让回答落在给定材料的范围内。

切分质量直接影响检索效果：块太大则召回粒度过粗，块太小则上下文断裂。重叠的作用是让跨块的句子在相邻块里都保留完整语义。`

func main() {
	var (
		input     = flag.String("input", "", "输入文本文件路径（缺省时使用内置样例）")
		chunkSize = flag.Int("size", 1000, "块大小（字符数）")
		overlap   = flag.Int("overlap", 100, "相邻块重叠（字符数）")
	)
	flag.Parse()

	text := sampleText
	if *input != "" {
		data, err := os.ReadFile(*input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "错误: 读取输入文件失败: %v\n", err)
			os.Exit(1)
		}
		text = string(data)
	}

	chunker := rag.NewChunker(*chunkSize, *overlap)
	fmt.Printf("分块配置: chunkSize=%d, overlap=%d\n\n", *chunkSize, *overlap)

	chunks := chunker.Split(text)

	fmt.Println("=" + strings.Repeat("=", 80))
	fmt.Println("递归分块结果")
	fmt.Println("=" + strings.Repeat("=", 80))
	fmt.Printf("原始文本长度: %d 字符\n", len([]rune(text)))
	fmt.Printf("分块数量: %d\n\n", len(chunks))

	for _, chunk := range chunks {
		fmt.Println(strings.Repeat("-", 80))
		fmt.Printf("块 #%d\n", chunk.Index)
		fmt.Printf("字节数: %d\n", len(chunk.Text))
		fmt.Printf("字符数: %d\n", len([]rune(chunk.Text)))
		fmt.Printf("内容:\n%s\n", chunk.Text)
		fmt.Println()
	}

	if len(chunks) < 2 {
		return
	}

	// 相邻块的重叠检查
	fmt.Println("=" + strings.Repeat("=", 80))
	fmt.Println("重叠分析:")
	fmt.Println("=" + strings.Repeat("=", 80))
	for i := 1; i < len(chunks); i++ {
		ov := overlapLength(chunks[i-1].Text, chunks[i].Text)
		if ov > 0 {
			fmt.Printf("✅ 块 #%d -> #%d: 重叠 %d 字符\n", chunks[i-1].Index, chunks[i].Index, ov)
		} else {
			fmt.Printf("⚠️  块 #%d -> #%d: 无重叠\n", chunks[i-1].Index, chunks[i].Index)
		}
	}
}

// overlapLength 前一块尾部与后一块头部的最长公共片段长度（按字符）
func overlapLength(prev, next string) int {
	p := []rune(prev)
	n := []rune(next)
	max := len(p)
	if len(n) < max {
		max = len(n)
	}
	for l := max; l > 0; l-- {
		if string(p[len(p)-l:]) == string(n[:l]) {
			return l
		}
	}
	return 0
}
