// Package html converts HTML and XHTML documents to Markdown.
package html

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/feichai0017/document-converter/internal/agent/document"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/logger"
)

type Processor struct {
	logger      logger.Logger
	mdConverter *converter.Converter
	domain      string
}

type Option func(*Processor)

// WithDomain resolves relative links and image sources against domain.
func WithDomain(domain string) Option {
	return func(p *Processor) {
		p.domain = domain
	}
}

func NewProcessor(log logger.Logger, opts ...Option) *Processor {
	p := &Processor{
		logger: log,
		mdConverter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) CanProcess(format models.Format) bool {
	return format == models.FormatHTML
}

func (p *Processor) Process(ctx context.Context, reader io.Reader) ([]models.DocumentChunk, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read html: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	convOpts := []converter.ConvertOptionFunc{converter.WithContext(ctx)}
	if p.domain != "" {
		convOpts = append(convOpts, converter.WithDomain(p.domain))
	}

	md, err := p.mdConverter.ConvertString(document.NormalizeText(content), convOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to convert html to markdown: %w", err)
	}
	md = strings.TrimSpace(md)

	p.logger.Debug("html converted",
		logger.Int("inputBytes", len(content)),
		logger.Int("markdownBytes", len(md)),
	)

	return []models.DocumentChunk{
		{
			Content: md,
			Metadata: map[string]interface{}{
				document.MetaType:     "html",
				document.MetaSections: document.MarkdownHeadings(md),
			},
		},
	}, nil
}

func (p *Processor) Close() error {
	return nil
}
