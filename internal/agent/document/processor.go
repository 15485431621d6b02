package document

import (
	"context"
	"errors"
	"io"

	"github.com/feichai0017/document-converter/internal/models"
)

// ErrMalformedDocument marks input whose structure a processor could not parse.
var ErrMalformedDocument = errors.New("malformed document")

// Processor turns one document into ordered text chunks.
type Processor interface {
	// CanProcess reports whether the processor handles the given format.
	CanProcess(format models.Format) bool

	// Process reads the whole document and returns its chunks in reading order.
	Process(ctx context.Context, reader io.Reader) ([]models.DocumentChunk, error)

	// Close releases resources held by the processor.
	Close() error
}

// Chunk metadata keys shared by all processors.
const (
	MetaPage      = "page"
	MetaPageCount = "pageCount"
	MetaSection   = "section"
	MetaSections  = "sections"
	MetaSource    = "source"
	MetaType      = "type"
	MetaEncoding  = "encoding"
	MetaHash      = "hash"
)
