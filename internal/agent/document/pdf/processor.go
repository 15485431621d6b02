package pdf

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-converter/internal/agent/document"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/logger"
)

const defaultMaxWorkers = 4

type Processor struct {
	logger     logger.Logger
	maxWorkers int
}

func NewProcessor(log logger.Logger) *Processor {
	return &Processor{
		logger:     log,
		maxWorkers: defaultMaxWorkers,
	}
}

func (p *Processor) CanProcess(format models.Format) bool {
	return format == models.FormatPDF
}

func (p *Processor) Process(ctx context.Context, file io.Reader) ([]models.DocumentChunk, error) {
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}

	pdfReader, numPages, err := Open(content)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	hash := sha256.Sum256(content)
	hashStr := hex.EncodeToString(hash[:])

	// each page writes only its own slot, so the result keeps page order
	pages := make([]*models.DocumentChunk, numPages)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)

	for i := 1; i <= numPages; i++ {
		pageNum := i
		g.Go(func() (err error) {
			// a panic here is invisible to any caller's recover
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: pdf page %d: %v", document.ErrMalformedDocument, pageNum, r)
				}
			}()

			if err := ctx.Err(); err != nil {
				return err
			}

			page := pdfReader.Page(pageNum)
			if page.V.IsNull() {
				return nil
			}

			text, err := page.GetPlainText(nil)
			if err != nil {
				return fmt.Errorf("failed to get text from page %d: %w", pageNum, err)
			}

			pages[pageNum-1] = &models.DocumentChunk{
				Content: cleanText(text),
				Metadata: map[string]interface{}{
					document.MetaPage:      pageNum,
					document.MetaPageCount: numPages,
					document.MetaHash:      hashStr,
					document.MetaSection:   fmt.Sprintf("page_%d", pageNum),
					document.MetaType:      "page",
				},
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	chunks := make([]models.DocumentChunk, 0, numPages)
	for _, c := range pages {
		if c != nil {
			chunks = append(chunks, *c)
		}
	}

	p.logger.Debug("pdf processed",
		logger.Int("pages", numPages),
		logger.Int("chunks", len(chunks)),
	)
	return chunks, nil
}

// Open parses content and counts its pages. The pdf library panics on
// malformed objects; those panics come back as document.ErrMalformedDocument.
func Open(content []byte) (r *pdf.Reader, pages int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, pages = nil, 0
			err = fmt.Errorf("%w: pdf: %v", document.ErrMalformedDocument, rec)
		}
	}()

	// pdf.NewReader needs an io.ReaderAt
	reader := bytes.NewReader(content)
	r, err = pdf.NewReader(reader, reader.Size())
	if err != nil {
		return nil, 0, err
	}
	return r, r.NumPage(), nil
}

// cleanText trims trailing spaces from every line and collapses runs of
// blank lines left behind by the text extractor.
func cleanText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func (p *Processor) Close() error {
	return nil
}
