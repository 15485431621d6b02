package format

import (
	"strings"

	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/logger"
)

// signaturelessFormats have no reliable magic number, so their extension is
// trusted when the classifier finds nothing. Checked in this order.
var signaturelessFormats = []models.Format{
	models.FormatASCIIDoc,
	models.FormatHTML,
	models.FormatMarkdown,
	models.FormatCSV,
}

// Resolver decides the format of uploaded content. It holds no mutable state
// and is safe for concurrent use.
type Resolver struct {
	classifier MagicClassifier
	logger     logger.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClassifier swaps the binary signature classifier.
func WithClassifier(c MagicClassifier) Option {
	return func(r *Resolver) {
		r.classifier = c
	}
}

// WithLogger sets the logger decisions are traced to at debug level.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		classifier: MimetypeClassifier{},
		logger:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GuessFormat returns the format of content, or models.FormatUnknown. An
// empty filename means no hint. The first step that produces a MIME type
// decides:
//
//  1. a .csv filename is always CSV
//  2. binary signature
//  3. filename extension of a signatureless format
//  4. HTML/XHTML sniff
//  5. text/plain, which maps to no format
func (r *Resolver) GuessFormat(content []byte, filename string) models.Format {
	if strings.HasSuffix(strings.ToLower(filename), ".csv") {
		r.trace(filename, "filename", "", models.FormatCSV)
		return models.FormatCSV
	}

	step := "magic"
	mimeType, ok := r.classifier.Classify(content)
	if !ok {
		step = "extension"
		mimeType, ok = mimeFromExtension(extensionOf(filename))
	}
	if !ok {
		step = "sniff"
		mimeType, ok = SniffHTML(content)
	}
	if !ok {
		step = "default"
		mimeType = MIMETextPlain
	}

	f, ok := FormatForMime(mimeType)
	if !ok {
		f = models.FormatUnknown
	}
	r.trace(filename, step, mimeType, f)
	return f
}

// IsSupported reports whether GuessFormat finds a format.
func (r *Resolver) IsSupported(content []byte, filename string) bool {
	return r.GuessFormat(content, filename) != models.FormatUnknown
}

func (r *Resolver) trace(filename, step, mimeType string, f models.Format) {
	r.logger.Debug("format resolved",
		logger.String("filename", filename),
		logger.String("step", step),
		logger.String("mimeType", mimeType),
		logger.String("format", f.String()),
	)
}

func mimeFromExtension(ext string) (string, bool) {
	if ext == "" {
		return "", false
	}
	for _, f := range signaturelessFormats {
		for _, e := range formatExtensions[f] {
			if e == ext {
				return formatMimeTypes[f][0], true
			}
		}
	}
	return "", false
}

var defaultResolver = NewResolver()

// GuessFormat resolves with the default mimetype-backed resolver.
func GuessFormat(content []byte, filename string) models.Format {
	return defaultResolver.GuessFormat(content, filename)
}

// IsSupported reports support using the default resolver.
func IsSupported(content []byte, filename string) bool {
	return defaultResolver.IsSupported(content, filename)
}
