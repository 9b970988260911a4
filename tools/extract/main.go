package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docpipe/rag-go/internal/rag"
)

func main() {
	var (
		input  = flag.String("input", "", "输入文档路径（必需，支持pdf/docx/xlsx/md/txt）")
		output = flag.String("output", "", "输出文本文件路径（可选，缺省输出到stdout）")
	)
	flag.Parse()

	if *input == "" {
		fmt.Fprintf(os.Stderr, "错误: 必须指定输入文档路径 (-input)\n")
		flag.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: 读取输入文件失败: %v\n", err)
		os.Exit(1)
	}

	// 与摄取管道用同一套解析器，contentType留空走扩展名匹配
	text, err := rag.NewParserManager().Parse(data, filepath.Base(*input), "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: 解析失败: %v\n", err)
		os.Exit(1)
	}

	if *output == "" {
		fmt.Println(text)
		return
	}

	if err := os.WriteFile(*output, []byte(text), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "错误: 写入输出文件失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ 提取成功: %s -> %s (%d 字符)\n", *input, *output, len([]rune(text)))
}
