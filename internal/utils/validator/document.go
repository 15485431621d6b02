// Package validator checks uploads before they reach a processor.
package validator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-converter/internal/agent/document/pdf"
	"github.com/feichai0017/document-converter/internal/format"
	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/logger"
)

// Validation error codes.
const (
	CodeFileTooLarge      = "FILE_TOO_LARGE"
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodeFormatNotAllowed  = "FORMAT_NOT_ALLOWED"
	CodeInvalidDocument   = "INVALID_DOCUMENT"
	CodeTooManyPages      = "TOO_MANY_PAGES"
	CodeImageTooLarge     = "IMAGE_TOO_LARGE"
)

type DocumentValidator struct {
	logger   logger.Logger
	config   *ValidatorConfig
	resolver *format.Resolver
}

type ValidatorConfig struct {
	MaxFileSize int64
	// AllowedFormats restricts uploads further; empty allows every supported format.
	AllowedFormats []models.Format
	MaxPageCount   int
	MaxDimension   int
}

func DefaultConfig() *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize:  50 * 1024 * 1024, // 50MB
		MaxPageCount: 1000,
		MaxDimension: 10000,
	}
}

type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

// HasError reports whether the result carries an error with code.
func (r *ValidationResult) HasError(code string) bool {
	for _, e := range r.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

func (r *ValidationResult) addError(code, field, message string) {
	r.IsValid = false
	r.Errors = append(r.Errors, ValidationError{Code: code, Message: message, Field: field})
}

type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type FileInfo struct {
	Filename  string                 `json:"filename"`
	Size      int64                  `json:"size"`
	Format    models.Format          `json:"format"`
	MimeType  string                 `json:"mimeType,omitempty"`
	Extension string                 `json:"extension"`
	Hash      string                 `json:"hash,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func NewDocumentValidator(log logger.Logger, resolver *format.Resolver, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = DefaultConfig()
	}
	if resolver == nil {
		resolver = format.NewResolver(format.WithLogger(log))
	}
	return &DocumentValidator{
		logger:   log,
		config:   config,
		resolver: resolver,
	}
}

// ValidateContent checks an upload already held in memory.
func (v *DocumentValidator) ValidateContent(filename string, content []byte) *ValidationResult {
	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Filename:  filename,
			Size:      int64(len(content)),
			Extension: strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."),
			Metadata:  make(map[string]interface{}),
		},
	}

	if v.config.MaxFileSize > 0 && result.FileInfo.Size > v.config.MaxFileSize {
		result.addError(CodeFileTooLarge, "size",
			fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize))
		return result
	}
	hash := sha256.Sum256(content)
	result.FileInfo.Hash = hex.EncodeToString(hash[:])

	f := v.resolver.GuessFormat(content, filename)
	result.FileInfo.Format = f
	if f == models.FormatUnknown {
		result.addError(CodeUnsupportedFormat, "format", "Unsupported document format")
		return result
	}
	if mimes := format.MimeTypesFor(f); len(mimes) > 0 {
		result.FileInfo.MimeType = mimes[0]
	}
	if !v.allowed(f) {
		result.addError(CodeFormatNotAllowed, "format", fmt.Sprintf("Format %s is not allowed", f))
		return result
	}

	switch f {
	case models.FormatPDF:
		v.validatePDF(content, result)
	case models.FormatImage:
		v.validateImage(content, result)
	}

	if !result.IsValid {
		v.logger.Debug("Upload rejected",
			logger.String("filename", filename),
			logger.Any("errors", result.Errors),
		)
	}
	return result
}

// ValidateFile reads at most MaxFileSize+1 bytes of the upload.
func (v *DocumentValidator) ValidateFile(header *multipart.FileHeader) (*ValidationResult, []byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	content, err := ReadLimited(f, v.config.MaxFileSize)
	if err != nil {
		return nil, nil, err
	}
	return v.ValidateContent(header.Filename, content), content, nil
}

// ValidateFiles validates uploads concurrently; results keep input order.
func (v *DocumentValidator) ValidateFiles(ctx context.Context, headers []*multipart.FileHeader) ([]*ValidationResult, error) {
	results := make([]*ValidationResult, len(headers))
	g, _ := errgroup.WithContext(ctx)
	for i, header := range headers {
		g.Go(func() error {
			result, _, err := v.ValidateFile(header)
			if err != nil {
				return fmt.Errorf("%s: %w", header.Filename, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (v *DocumentValidator) allowed(f models.Format) bool {
	if len(v.config.AllowedFormats) == 0 {
		return true
	}
	for _, a := range v.config.AllowedFormats {
		if a == f {
			return true
		}
	}
	return false
}

func (v *DocumentValidator) validatePDF(content []byte, result *ValidationResult) {
	_, pages, err := pdf.Open(content)
	if err != nil {
		result.addError(CodeInvalidDocument, "content", fmt.Sprintf("Unreadable PDF: %v", err))
		return
	}
	result.FileInfo.Metadata["pageCount"] = pages
	if v.config.MaxPageCount > 0 && pages > v.config.MaxPageCount {
		result.addError(CodeTooManyPages, "pageCount",
			fmt.Sprintf("PDF has %d pages, limit is %d", pages, v.config.MaxPageCount))
	}
}

// validateImage checks png, jpeg, gif, bmp and tiff headers; other image
// kinds pass through to the OCR backend.
func (v *DocumentValidator) validateImage(content []byte, result *ValidationResult) {
	cfg, kind, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return
	}
	result.FileInfo.Metadata["width"] = cfg.Width
	result.FileInfo.Metadata["height"] = cfg.Height
	result.FileInfo.Metadata["imageType"] = kind
	if v.config.MaxDimension > 0 && (cfg.Width > v.config.MaxDimension || cfg.Height > v.config.MaxDimension) {
		result.addError(CodeImageTooLarge, "dimensions",
			fmt.Sprintf("Image is %dx%d, limit is %d pixels per side", cfg.Width, cfg.Height, v.config.MaxDimension))
	}
}

// ReadLimited reads r fully when limit <= 0, otherwise at most limit+1 bytes
// so callers can tell an oversized upload apart from one exactly at the limit.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return content, nil
}
