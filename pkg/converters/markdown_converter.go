package converters

import (
	"fmt"
	"strings"
	"time"

	"github.com/feichai0017/document-converter/internal/models"
)

// DocumentConverter 定义文档转换器接口
type DocumentConverter interface {
	Convert(chunks []models.DocumentChunk) (*ProcessedDocument, error)
}

// ProcessedDocument 定义处理后的文档结构
type ProcessedDocument struct {
	TaskID      string           `json:"taskId,omitempty"`
	Status      string           `json:"status"`
	Markdown    string           `json:"markdown"`
	Content     []ChunkContent   `json:"content"`
	Metadata    DocumentMetadata `json:"metadata"`
	ProcessedAt time.Time        `json:"processedAt"`
}

// ChunkContent 定义文档块内容
type ChunkContent struct {
	Text     string                 `json:"text"`
	Position int                    `json:"position"`
	Type     string                 `json:"type"` // "page", "slide", "image", "table" 等
	Metadata map[string]interface{} `json:"metadata"`
}

// DocumentMetadata 定义文档元数据
type DocumentMetadata struct {
	FileName     string        `json:"fileName"`
	Format       models.Format `json:"format"`
	FileSize     int64         `json:"fileSize"`
	PageCount    int           `json:"pageCount,omitempty"`
	Sections     []string      `json:"sections"`
	Encoding     string        `json:"encoding,omitempty"`
	ProcessingMs int64         `json:"processingMs"`
}

// MarkdownConverter joins processor chunks into one Markdown document.
type MarkdownConverter struct {
	separator string
}

func NewMarkdownConverter() *MarkdownConverter {
	return &MarkdownConverter{separator: "\n\n"}
}

func (c *MarkdownConverter) Convert(chunks []models.DocumentChunk) (*ProcessedDocument, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to convert")
	}

	doc := &ProcessedDocument{
		Status:      "completed",
		ProcessedAt: time.Now(),
		Content:     make([]ChunkContent, 0, len(chunks)),
		Metadata: DocumentMetadata{
			Sections: make([]string, 0),
		},
	}

	seen := make(map[string]bool)
	addSection := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			doc.Metadata.Sections = append(doc.Metadata.Sections, name)
		}
	}
	parts := make([]string, 0, len(chunks))

	for i, chunk := range chunks {
		metadata := chunk.Metadata
		if metadata == nil {
			metadata = map[string]interface{}{}
		}
		content := ChunkContent{
			Text:     chunk.Content,
			Position: i + 1,
			Type:     chunkType(metadata),
			Metadata: metadata,
		}
		doc.Content = append(doc.Content, content)

		if text := strings.TrimSpace(chunk.Content); text != "" {
			parts = append(parts, text)
		}
		if section, ok := metadata["section"].(string); ok {
			addSection(section)
		}
		if titles, ok := metadata["sections"].([]string); ok {
			for _, title := range titles {
				addSection(title)
			}
		}
		if enc, ok := metadata["encoding"].(string); ok && doc.Metadata.Encoding == "" {
			doc.Metadata.Encoding = enc
		}
	}

	if pageCount, ok := chunks[0].Metadata["pageCount"].(int); ok {
		doc.Metadata.PageCount = pageCount
	}

	doc.Markdown = strings.Join(parts, c.separator)
	if doc.Markdown != "" {
		doc.Markdown += "\n"
	}

	return doc, nil
}

func chunkType(metadata map[string]interface{}) string {
	if t, ok := metadata["type"].(string); ok && t != "" {
		return t
	}
	if _, ok := metadata["page"]; ok {
		return "page"
	}
	if _, ok := metadata["slide"]; ok {
		return "slide"
	}
	return "text"
}
