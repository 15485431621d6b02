package image

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
)

// Preprocessor is one step of the pipeline applied before OCR.
type Preprocessor interface {
	Process(img image.Image) (image.Image, error)
}

// PreprocessConfig selects and tunes the pipeline steps.
type PreprocessConfig struct {
	Denoise           bool
	DenoiseStrength   float64
	ContrastNormalize bool
	Contrast          float64
	Sharpen           bool
	SharpenStrength   float64
	AdaptiveThreshold bool
	AdaptiveBlockSize int
	AdaptiveConstant  float64
}

func DefaultPreprocessConfig() *PreprocessConfig {
	return &PreprocessConfig{
		DenoiseStrength:   0.5,
		ContrastNormalize: true,
		Contrast:          20,
		Sharpen:           true,
		SharpenStrength:   0.5,
		AdaptiveBlockSize: 11,
		AdaptiveConstant:  2,
	}
}

// buildPipeline always starts with grayscale conversion.
func buildPipeline(cfg *PreprocessConfig) []Preprocessor {
	pipeline := []Preprocessor{NewGrayscaleProcessor()}
	if cfg.Denoise {
		pipeline = append(pipeline, NewDenoiseProcessor(cfg.DenoiseStrength))
	}
	if cfg.ContrastNormalize {
		pipeline = append(pipeline, NewContrastProcessor(cfg.Contrast))
	}
	if cfg.AdaptiveThreshold {
		pipeline = append(pipeline, NewAdaptiveThresholdProcessor(cfg.AdaptiveBlockSize, cfg.AdaptiveConstant))
	}
	if cfg.Sharpen {
		pipeline = append(pipeline, NewSharpenProcessor(cfg.SharpenStrength))
	}
	return pipeline
}

func applyPipeline(img image.Image, pipeline []Preprocessor) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	var err error
	result := img
	for _, step := range pipeline {
		result, err = step.Process(result)
		if err != nil {
			return nil, fmt.Errorf("preprocessing failed: %w", err)
		}
		if result == nil {
			return nil, fmt.Errorf("preprocessor returned nil image")
		}
	}
	return result, nil
}

type GrayscaleProcessor struct{}

func NewGrayscaleProcessor() *GrayscaleProcessor {
	return &GrayscaleProcessor{}
}

func (p *GrayscaleProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Grayscale(img), nil
}

type DenoiseProcessor struct {
	strength float64
}

func NewDenoiseProcessor(strength float64) *DenoiseProcessor {
	return &DenoiseProcessor{strength: strength}
}

func (p *DenoiseProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Blur(img, p.strength), nil
}

type ContrastProcessor struct {
	amount float64
}

// NewContrastProcessor takes a percentage in [-100, 100].
func NewContrastProcessor(amount float64) *ContrastProcessor {
	return &ContrastProcessor{amount: amount}
}

func (p *ContrastProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.AdjustContrast(img, p.amount), nil
}

type SharpenProcessor struct {
	strength float64
}

func NewSharpenProcessor(strength float64) *SharpenProcessor {
	return &SharpenProcessor{strength: strength}
}

func (p *SharpenProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Sharpen(img, p.strength), nil
}

// AdaptiveThresholdProcessor binarizes each pixel against the mean of its
// blockSize x blockSize neighbourhood.
type AdaptiveThresholdProcessor struct {
	blockSize int
	constant  float64
}

func NewAdaptiveThresholdProcessor(blockSize int, constant float64) *AdaptiveThresholdProcessor {
	return &AdaptiveThresholdProcessor{
		blockSize: blockSize,
		constant:  constant,
	}
}

func (p *AdaptiveThresholdProcessor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	gray := imaging.Grayscale(img)
	bounds := gray.Bounds()
	result := image.NewGray(bounds)
	draw.Draw(result, bounds, &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	half := p.blockSize / 2
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			var sum, count int
			for dy := -half; dy <= half; dy++ {
				for dx := -half; dx <= half; dx++ {
					nx, ny := x+dx, y+dy
					if nx >= bounds.Min.X && nx < bounds.Max.X && ny >= bounds.Min.Y && ny < bounds.Max.Y {
						sum += int(color.GrayModel.Convert(gray.At(nx, ny)).(color.Gray).Y)
						count++
					}
				}
			}
			mean := float64(sum) / float64(count)
			pixel := color.GrayModel.Convert(gray.At(x, y)).(color.Gray).Y
			if float64(pixel) < mean-p.constant {
				result.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return result, nil
}
