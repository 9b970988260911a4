package rag

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unioffice/spreadsheet"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// DocumentParser 按对象键或内容类型识别并提取纯文本
type DocumentParser interface {
	Parse(data []byte, name string) (string, error)
	Supports(name, contentType string) bool
}

// TextParser 纯文本解析器
type TextParser struct{}

func (p *TextParser) Supports(name, contentType string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".markdown", ".log", ".csv":
		return true
	}
	return strings.HasPrefix(contentType, "text/")
}

func (p *TextParser) Parse(data []byte, name string) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("对象不是合法的UTF-8文本: %s", name)
	}
	return string(data), nil
}

// PDFParser PDF解析器
type PDFParser struct{}

func (p *PDFParser) Supports(name, contentType string) bool {
	return strings.ToLower(filepath.Ext(name)) == ".pdf" || contentType == "application/pdf"
}

func (p *PDFParser) Parse(data []byte, name string) (string, error) {
	pdfReader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("解析PDF失败: %w", err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("获取PDF页数失败: %w", err)
	}

	var textBuilder strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			continue
		}

		ex, err := extractor.New(page)
		if err != nil {
			continue
		}

		text, err := ex.ExtractText()
		if err != nil {
			continue
		}

		textBuilder.WriteString(text)
		textBuilder.WriteString("\n")
	}

	return textBuilder.String(), nil
}

// WordParser Word文档解析器，仅支持docx
type WordParser struct{}

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

func (p *WordParser) Supports(name, contentType string) bool {
	return strings.ToLower(filepath.Ext(name)) == ".docx" || contentType == docxContentType
}

func (p *WordParser) Parse(data []byte, name string) (string, error) {
	doc, err := document.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("解析Word文档失败: %w", err)
	}
	defer doc.Close()

	var textBuilder strings.Builder
	for _, para := range doc.Paragraphs() {
		for _, run := range para.Runs() {
			textBuilder.WriteString(run.Text())
		}
		textBuilder.WriteString("\n")
	}

	return textBuilder.String(), nil
}

// ExcelParser Excel解析器，仅支持xlsx，单元格按制表符拼接
type ExcelParser struct{}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (p *ExcelParser) Supports(name, contentType string) bool {
	return strings.ToLower(filepath.Ext(name)) == ".xlsx" || contentType == xlsxContentType
}

func (p *ExcelParser) Parse(data []byte, name string) (string, error) {
	ss, err := spreadsheet.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("解析Excel文档失败: %w", err)
	}
	defer ss.Close()

	var textBuilder strings.Builder
	for _, sheet := range ss.Sheets() {
		textBuilder.WriteString(fmt.Sprintf("工作表: %s\n", sheet.Name()))

		for _, row := range sheet.Rows() {
			var rowText []string
			for _, cell := range row.Cells() {
				rowText = append(rowText, cell.GetString())
			}
			if len(rowText) > 0 {
				textBuilder.WriteString(strings.Join(rowText, "\t"))
				textBuilder.WriteString("\n")
			}
		}
		textBuilder.WriteString("\n")
	}

	return textBuilder.String(), nil
}

// ParserManager 解析器注册表，不认识的格式按UTF-8文本兜底
type ParserManager struct {
	parsers  []DocumentParser
	fallback DocumentParser
}

// NewParserManager 创建解析器注册表
func NewParserManager() *ParserManager {
	return &ParserManager{
		parsers: []DocumentParser{
			&PDFParser{},
			&WordParser{},
			&ExcelParser{},
			&TextParser{},
		},
		fallback: &TextParser{},
	}
}

// Parse 选择首个匹配的解析器提取文本
func (m *ParserManager) Parse(data []byte, name, contentType string) (string, error) {
	for _, parser := range m.parsers {
		if parser.Supports(name, contentType) {
			return parser.Parse(data, name)
		}
	}
	return m.fallback.Parse(data, name)
}
