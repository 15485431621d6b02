// Package delimited renders CSV and other delimiter-separated files as a
// Markdown table.
package delimited

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/feichai0017/document-converter/internal/agent/document"
	"github.com/feichai0017/document-converter/internal/format"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/logger"
)

var candidateDelimiters = []rune{',', ';', '\t', '|'}

type Processor struct {
	logger   logger.Logger
	encoding *format.EncodingResolver
}

type Option func(*Processor)

func WithEncodingResolver(r *format.EncodingResolver) Option {
	return func(p *Processor) {
		p.encoding = r
	}
}

func NewProcessor(log logger.Logger, opts ...Option) *Processor {
	p := &Processor{
		logger:   log,
		encoding: format.NewEncodingResolver(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) CanProcess(f models.Format) bool {
	return f == models.FormatCSV
}

// Process fails with *format.DecodeError when no configured encoding fits.
func (p *Processor) Process(ctx context.Context, reader io.Reader) ([]models.DocumentChunk, error) {
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	normalized, encoding, err := p.encoding.Normalize(raw)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := document.NormalizeText(normalized)
	delim := sniffDelimiter(text)

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		rows = append(rows, record)
	}

	columns := 0
	for _, row := range rows {
		if len(row) > columns {
			columns = len(row)
		}
	}

	p.logger.Debug("csv parsed",
		logger.String("encoding", encoding),
		logger.String("delimiter", string(delim)),
		logger.Int("rows", len(rows)),
	)

	return []models.DocumentChunk{
		{
			Content: document.MarkdownTable(rows),
			Metadata: map[string]interface{}{
				document.MetaType:     "table",
				document.MetaEncoding: encoding,
				"rows":                len(rows),
				"columns":             columns,
				"delimiter":           string(delim),
			},
		},
	}, nil
}

// sniffDelimiter picks the candidate occurring most often on the first line.
// Ties keep the earlier candidate, so comma wins by default.
func sniffDelimiter(text string) rune {
	firstLine := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		firstLine = text[:i]
	}
	best, bestCount := candidateDelimiters[0], 0
	for _, d := range candidateDelimiters {
		if n := strings.Count(firstLine, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func (p *Processor) Close() error {
	return nil
}

var _ document.Processor = (*Processor)(nil)

