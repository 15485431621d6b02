package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/feichai0017/document-converter/internal/agent/document"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/logger"
)

// Processor runs tesseract over a preprocessed copy of the image.
type Processor struct {
	logger   logger.Logger
	config   *ProcessOptions
	pipeline []Preprocessor
}

type ProcessOptions struct {
	Languages     []string
	PageSegMode   gosseract.PageSegMode
	MinConfidence float64
	Preprocess    *PreprocessConfig
}

func DefaultProcessOptions() *ProcessOptions {
	return &ProcessOptions{
		Languages:     []string{"eng"},
		PageSegMode:   gosseract.PSM_AUTO,
		MinConfidence: 60.0,
		Preprocess:    DefaultPreprocessConfig(),
	}
}

func NewProcessor(log logger.Logger, opts *ProcessOptions) (*Processor, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if opts == nil {
		opts = DefaultProcessOptions()
	}
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"eng"}
	}
	if opts.Preprocess == nil {
		opts.Preprocess = DefaultPreprocessConfig()
	}

	return &Processor{
		logger:   log,
		config:   opts,
		pipeline: buildPipeline(opts.Preprocess),
	}, nil
}

func (p *Processor) CanProcess(format models.Format) bool {
	return format == models.FormatImage
}

func (p *Processor) Process(ctx context.Context, file io.Reader) ([]models.DocumentChunk, error) {
	img, err := decodeImage(file)
	if err != nil {
		return nil, err
	}

	processed, err := applyPipeline(img, p.pipeline)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// gosseract clients are not safe for concurrent use, so each call gets its own
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(strings.Join(p.config.Languages, "+")); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(p.config.PageSegMode); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, processed, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("failed to get text: %w", err)
	}

	confidence := 0.0
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		p.logger.Warn("failed to get bounding boxes", logger.Error(err))
	} else {
		confidence = averageConfidence(boxes, p.config.MinConfidence)
	}

	bounds := img.Bounds()
	return []models.DocumentChunk{
		{
			Content: strings.TrimSpace(text),
			Metadata: map[string]interface{}{
				document.MetaSource:    "tesseract",
				document.MetaType:      "image",
				document.MetaPageCount: 1,
				"confidence":           confidence,
				"width":                bounds.Dx(),
				"height":               bounds.Dy(),
			},
		},
	}, nil
}

// decodeImage reads any format imaging understands, honouring EXIF orientation.
func decodeImage(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// averageConfidence ignores words below minConfidence.
func averageConfidence(boxes []gosseract.BoundingBox, minConfidence float64) float64 {
	var total float64
	var n int
	for _, box := range boxes {
		if box.Confidence >= minConfidence {
			total += box.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func (p *Processor) Close() error {
	return nil
}
