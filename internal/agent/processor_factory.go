package agent

import (
	"context"
	"errors"
	"fmt"

	cfg "github.com/feichai0017/document-converter/config"
	"github.com/feichai0017/document-converter/internal/agent/document"
	"github.com/feichai0017/document-converter/internal/agent/document/delimited"
	"github.com/feichai0017/document-converter/internal/agent/document/html"
	"github.com/feichai0017/document-converter/internal/agent/document/image"
	"github.com/feichai0017/document-converter/internal/agent/document/markup"
	"github.com/feichai0017/document-converter/internal/agent/document/office"
	"github.com/feichai0017/document-converter/internal/agent/document/pdf"
	"github.com/feichai0017/document-converter/internal/agent/document/textract"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/logger"
)

var ErrNoProcessor = errors.New("no processor registered for format")

// ProcessorFactory hands out the processor registered for each format.
type ProcessorFactory struct {
	processors map[models.Format]document.Processor
	logger     logger.Logger
	linkDomain string
}

type FactoryOption func(*ProcessorFactory)

// WithProcessor registers p for format in place of the built-in one.
func WithProcessor(format models.Format, p document.Processor) FactoryOption {
	return func(f *ProcessorFactory) {
		f.processors[format] = p
	}
}

// WithHTMLLinkDomain makes the HTML processor resolve relative links and
// image sources against domain.
func WithHTMLLinkDomain(domain string) FactoryOption {
	return func(f *ProcessorFactory) {
		f.linkDomain = domain
	}
}

// NewProcessorFactory wires a processor for every supported format. Image
// OCR uses tesseract unless ocr selects textract.
func NewProcessorFactory(ctx context.Context, log logger.Logger, ocr *cfg.OCRConfig, opts ...FactoryOption) (*ProcessorFactory, error) {
	factory := &ProcessorFactory{
		processors: make(map[models.Format]document.Processor),
		logger:     log,
	}
	for _, opt := range opts {
		opt(factory)
	}

	var htmlOpts []html.Option
	if factory.linkDomain != "" {
		htmlOpts = append(htmlOpts, html.WithDomain(factory.linkDomain))
	}
	markupProcessor := markup.NewProcessor(log.Named("markup"))
	officeProcessor := office.NewProcessor(log.Named("office"))

	factory.register(models.FormatPDF, pdf.NewProcessor(log.Named("pdf")))
	factory.register(models.FormatHTML, html.NewProcessor(log.Named("html"), htmlOpts...))
	factory.register(models.FormatCSV, delimited.NewProcessor(log.Named("csv")))
	factory.register(models.FormatMarkdown, markupProcessor.ForFormat(models.FormatMarkdown))
	factory.register(models.FormatASCIIDoc, markupProcessor.ForFormat(models.FormatASCIIDoc))
	factory.register(models.FormatDOCX, officeProcessor.ForFormat(models.FormatDOCX))
	factory.register(models.FormatPPTX, officeProcessor.ForFormat(models.FormatPPTX))

	if _, ok := factory.processors[models.FormatImage]; !ok {
		imageProcessor, err := newImageProcessor(ctx, log, ocr)
		if err != nil {
			return nil, err
		}
		factory.processors[models.FormatImage] = imageProcessor
	}

	return factory, nil
}

// register keeps a processor supplied through WithProcessor.
func (f *ProcessorFactory) register(format models.Format, p document.Processor) {
	if _, ok := f.processors[format]; !ok {
		f.processors[format] = p
	}
}

func newImageProcessor(ctx context.Context, log logger.Logger, ocr *cfg.OCRConfig) (document.Processor, error) {
	if ocr == nil {
		ocr = &cfg.OCRConfig{Backend: cfg.OCRBackendTesseract}
	}

	switch ocr.Backend {
	case cfg.OCRBackendTextract:
		tc := cfg.GetTextractConfig()
		p, err := textract.NewProcessor(ctx, &textract.Config{
			Region:        tc.Region,
			Endpoint:      tc.Endpoint,
			AccessKey:     tc.AccessKey,
			SecretKey:     tc.SecretKey,
			MinConfidence: 80.0,
			EnableTable:   true,
			EnableForm:    true,
		}, log.Named("textract"))
		if err != nil {
			return nil, fmt.Errorf("failed to create textract processor: %w", err)
		}
		return p, nil

	case cfg.OCRBackendTesseract, "":
		opts := image.DefaultProcessOptions()
		if len(ocr.Languages) > 0 {
			opts.Languages = ocr.Languages
		}
		p, err := image.NewProcessor(log.Named("tesseract"), opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create image processor: %w", err)
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown OCR backend %q", ocr.Backend)
	}
}

func (f *ProcessorFactory) GetProcessor(format models.Format) (document.Processor, error) {
	processor, ok := f.processors[format]
	if !ok {
		f.logger.Error("No processor found", logger.String("format", format.String()))
		return nil, fmt.Errorf("%w: %s", ErrNoProcessor, format)
	}
	f.logger.Debug("Getting processor", logger.String("format", format.String()))
	return processor, nil
}

// Close closes every registered processor and returns the first error.
func (f *ProcessorFactory) Close() error {
	var first error
	for format, p := range f.processors {
		if err := p.Close(); err != nil {
			f.logger.Error("Failed to close processor",
				logger.String("format", format.String()),
				logger.Error(err),
			)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
