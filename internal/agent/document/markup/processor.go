// Package markup passes lightweight markup documents (Markdown, AsciiDoc)
// through with normalised text.
package markup

import (
	"context"
	"fmt"
	"io"

	"github.com/feichai0017/document-converter/internal/agent/document"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/logger"
)

type Processor struct {
	logger logger.Logger
}

func NewProcessor(log logger.Logger) *Processor {
	return &Processor{logger: log}
}

func (p *Processor) CanProcess(format models.Format) bool {
	return format == models.FormatMarkdown || format == models.FormatASCIIDoc
}

// Process reads the input as Markdown. Use ProcessFormat for AsciiDoc.
func (p *Processor) Process(ctx context.Context, reader io.Reader) ([]models.DocumentChunk, error) {
	return p.ProcessFormat(ctx, reader, models.FormatMarkdown)
}

func (p *Processor) ProcessFormat(ctx context.Context, reader io.Reader, format models.Format) ([]models.DocumentChunk, error) {
	if !p.CanProcess(format) {
		return nil, fmt.Errorf("markup processor cannot handle format %s", format)
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", format, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := document.NormalizeText(content)
	var sections []string
	if format == models.FormatASCIIDoc {
		sections = document.AsciiDocHeadings(text)
	} else {
		sections = document.MarkdownHeadings(text)
	}

	return []models.DocumentChunk{
		{
			Content: text,
			Metadata: map[string]interface{}{
				document.MetaType:     string(format),
				document.MetaSections: sections,
			},
		},
	}, nil
}

func (p *Processor) Close() error {
	return nil
}

// ForFormat binds the processor to one markup format.
func (p *Processor) ForFormat(format models.Format) document.Processor {
	return bound{p: p, format: format}
}

type bound struct {
	p      *Processor
	format models.Format
}

func (b bound) CanProcess(format models.Format) bool { return format == b.format }

func (b bound) Process(ctx context.Context, reader io.Reader) ([]models.DocumentChunk, error) {
	return b.p.ProcessFormat(ctx, reader, b.format)
}

func (b bound) Close() error { return nil }
