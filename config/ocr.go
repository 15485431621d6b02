package config

import (
	"strings"
	"sync"
)

const (
	OCRBackendTesseract = "tesseract"
	OCRBackendTextract  = "textract"
)

var (
	ocrOnce   sync.Once
	ocrConfig *OCRConfig

	textractOnce   sync.Once
	textractConfig *TextractConfig
)

// OCRConfig picks the engine used for image uploads.
type OCRConfig struct {
	Backend   string
	Languages []string
}

type TextractConfig struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

func GetOCRConfig() *OCRConfig {
	ocrOnce.Do(func() {
		ocrConfig = loadOCRConfig(getFileConfig())
	})
	return ocrConfig
}

func loadOCRConfig(fc *FileConfig) *OCRConfig {
	langs := []string{"eng"}
	if len(fc.OCR.Languages) > 0 {
		langs = fc.OCR.Languages
	}
	return &OCRConfig{
		Backend:   strings.ToLower(getEnv("OCR_BACKEND", orDefault(fc.OCR.Backend, OCRBackendTesseract))),
		Languages: getEnvList("OCR_LANGUAGES", langs),
	}
}

func GetTextractConfig() *TextractConfig {
	textractOnce.Do(func() {
		loadDotEnv()
		textractConfig = &TextractConfig{
			Region:    getEnv("AWS_REGION", ""),
			Endpoint:  getEnv("AWS_ENDPOINT", ""),
			AccessKey: getEnv("AWS_ACCESS_KEY", ""),
			SecretKey: getEnv("AWS_SECRET_KEY", ""),
		}
	})
	return textractConfig
}
