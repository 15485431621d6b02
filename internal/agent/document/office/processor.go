// Package office extracts text from Office Open XML packages (docx, pptx).
package office

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/feichai0017/document-converter/internal/agent/document"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/logger"
)

// maxPartSize bounds the decompressed size of a single package part.
const maxPartSize = 64 << 20

var (
	ErrMissingPart = errors.New("office package is missing a required part")

	slidePart = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
)

type Processor struct {
	logger logger.Logger
}

func NewProcessor(log logger.Logger) *Processor {
	return &Processor{logger: log}
}

func (p *Processor) CanProcess(format models.Format) bool {
	return format == models.FormatDOCX || format == models.FormatPPTX
}

// Process detects the package kind from its parts.
func (p *Processor) Process(ctx context.Context, reader io.Reader) ([]models.DocumentChunk, error) {
	pkg, err := openPackage(reader)
	if err != nil {
		return nil, err
	}
	if _, ok := pkg.files["word/document.xml"]; ok {
		return p.processDocx(ctx, pkg)
	}
	return p.processPptx(ctx, pkg)
}

// ForFormat binds the processor to one package kind.
func (p *Processor) ForFormat(format models.Format) document.Processor {
	return bound{p: p, format: format}
}

func (p *Processor) Close() error {
	return nil
}

type bound struct {
	p      *Processor
	format models.Format
}

func (b bound) CanProcess(format models.Format) bool { return format == b.format }

func (b bound) Process(ctx context.Context, reader io.Reader) ([]models.DocumentChunk, error) {
	pkg, err := openPackage(reader)
	if err != nil {
		return nil, err
	}
	if b.format == models.FormatPPTX {
		return b.p.processPptx(ctx, pkg)
	}
	return b.p.processDocx(ctx, pkg)
}

func (b bound) Close() error { return nil }

type ooxmlPackage struct {
	files map[string]*zip.File
}

func openPackage(reader io.Reader) (*ooxmlPackage, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read office package: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open office package: %w", err)
	}
	pkg := &ooxmlPackage{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		pkg.files[f.Name] = f
	}
	return pkg, nil
}

func (pkg *ooxmlPackage) open(name string) (io.ReadCloser, error) {
	f, ok := pkg.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingPart, name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(rc, maxPartSize), rc}, nil
}

// title reads dc:title from docProps/core.xml, if present.
func (pkg *ooxmlPackage) title() string {
	rc, err := pkg.open("docProps/core.xml")
	if err != nil {
		return ""
	}
	defer rc.Close()

	var core struct {
		Title string `xml:"title"`
	}
	if err := xml.NewDecoder(rc).Decode(&core); err != nil {
		return ""
	}
	return strings.TrimSpace(core.Title)
}

func (p *Processor) processDocx(ctx context.Context, pkg *ooxmlPackage) ([]models.DocumentChunk, error) {
	rc, err := pkg.open("word/document.xml")
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	blocks, err := parseWordDocument(ctx, rc)
	if err != nil {
		return nil, err
	}

	text := strings.Join(blocks, "\n\n")
	meta := map[string]interface{}{
		document.MetaType:     string(models.FormatDOCX),
		document.MetaSections: document.MarkdownHeadings(text),
	}
	if title := pkg.title(); title != "" {
		meta["title"] = title
	}

	p.logger.Debug("docx processed", logger.Int("blocks", len(blocks)))
	return []models.DocumentChunk{{Content: text, Metadata: meta}}, nil
}

func (p *Processor) processPptx(ctx context.Context, pkg *ooxmlPackage) ([]models.DocumentChunk, error) {
	type slide struct {
		num  int
		name string
	}
	var slides []slide
	for name := range pkg.files {
		if m := slidePart.FindStringSubmatch(name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{num: n, name: name})
		}
	}
	if len(slides) == 0 {
		return nil, fmt.Errorf("%w: ppt/slides", ErrMissingPart)
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	title := pkg.title()
	chunks := make([]models.DocumentChunk, 0, len(slides))
	for i, s := range slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		paragraphs, err := p.slideText(pkg, s.name)
		if err != nil {
			return nil, err
		}

		position := i + 1
		content := fmt.Sprintf("## Slide %d", position)
		if len(paragraphs) > 0 {
			content += "\n\n" + strings.Join(paragraphs, "\n")
		}
		meta := map[string]interface{}{
			"slide":                position,
			document.MetaType:      "slide",
			document.MetaSection:   fmt.Sprintf("slide_%d", position),
			document.MetaPageCount: len(slides),
		}
		if title != "" {
			meta["title"] = title
		}
		chunks = append(chunks, models.DocumentChunk{Content: content, Metadata: meta})
	}

	p.logger.Debug("pptx processed", logger.Int("slides", len(slides)))
	return chunks, nil
}

func (p *Processor) slideText(pkg *ooxmlPackage, name string) ([]string, error) {
	rc, err := pkg.open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return parseDrawingParagraphs(rc)
}
