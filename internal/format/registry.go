// Package format identifies which supported document format a byte buffer holds.
//
// Identification is layered: a .csv filename wins outright, then binary
// signatures, then the filename extension for formats without a signature,
// then a lexical HTML/XHTML sniff. Everything is a pure function of the
// content and the filename hint; the lookup tables are built once at init
// and only read afterwards.
package format

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/feichai0017/document-converter/internal/models"
)

// MIME types the resolver produces on its own.
const (
	MIMETextPlain = "text/plain"
	MIMETextHTML  = "text/html"
	MIMEXHTML     = "application/xhtml+xml"
)

var formatOrder = []models.Format{
	models.FormatDOCX,
	models.FormatPPTX,
	models.FormatPDF,
	models.FormatMarkdown,
	models.FormatHTML,
	models.FormatImage,
	models.FormatASCIIDoc,
	models.FormatCSV,
}

var formatExtensions = map[models.Format][]string{
	models.FormatDOCX:     {"docx", "dotx", "docm", "dotm"},
	models.FormatPPTX:     {"pptx", "potx", "ppsx", "pptm", "potm", "ppsm"},
	models.FormatPDF:      {"pdf"},
	models.FormatMarkdown: {"md"},
	models.FormatHTML:     {"html", "htm", "xhtml"},
	models.FormatImage:    {"jpg", "jpeg", "png", "tif", "tiff", "bmp"},
	models.FormatASCIIDoc: {"adoc", "asciidoc", "asc"},
	models.FormatCSV:      {"csv"},
}

var formatMimeTypes = map[models.Format][]string{
	models.FormatDOCX: {
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.template",
	},
	models.FormatPPTX: {
		"application/vnd.openxmlformats-officedocument.presentationml.template",
		"application/vnd.openxmlformats-officedocument.presentationml.slideshow",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	},
	models.FormatHTML: {MIMETextHTML, MIMEXHTML},
	models.FormatImage: {
		"image/png",
		"image/jpeg",
		"image/tiff",
		"image/gif",
		"image/bmp",
	},
	models.FormatPDF:      {"application/pdf"},
	models.FormatASCIIDoc: {"text/asciidoc"},
	models.FormatMarkdown: {"text/markdown", "text/x-markdown"},
	models.FormatCSV:      {"text/csv"},
}

var (
	mimeIndex      map[string]models.Format
	extensionIndex map[string]models.Format
)

func init() {
	var err error
	if mimeIndex, err = reverseIndex(formatMimeTypes); err != nil {
		panic(fmt.Sprintf("format: mime table: %v", err))
	}
	if extensionIndex, err = reverseIndex(formatExtensions); err != nil {
		panic(fmt.Sprintf("format: extension table: %v", err))
	}
}

// reverseIndex inverts a format table. A key claimed by two formats is an error.
func reverseIndex(table map[models.Format][]string) (map[string]models.Format, error) {
	index := make(map[string]models.Format)
	for _, f := range formatOrder {
		for _, key := range table[f] {
			if prev, ok := index[key]; ok {
				return nil, fmt.Errorf("%q registered for both %s and %s", key, prev, f)
			}
			index[key] = f
		}
	}
	return index, nil
}

// Formats returns every supported format in registry order.
func Formats() []models.Format {
	return append([]models.Format(nil), formatOrder...)
}

// ExtensionsFor returns the lowercase extensions (no leading dot) registered
// for f, or nil for an unrecognized format.
func ExtensionsFor(f models.Format) []string {
	return append([]string(nil), formatExtensions[f]...)
}

// MimeTypesFor returns the MIME types registered for f, or nil for an
// unrecognized format.
func MimeTypesFor(f models.Format) []string {
	return append([]string(nil), formatMimeTypes[f]...)
}

// FormatForMime maps a MIME type back to its format.
func FormatForMime(mimeType string) (models.Format, bool) {
	f, ok := mimeIndex[mimeType]
	return f, ok
}

// FormatForExtension maps an extension, with or without the leading dot and
// in any case, to its format.
func FormatForExtension(ext string) (models.Format, bool) {
	f, ok := extensionIndex[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return f, ok
}

// FilenameForMime builds a placeholder filename for an upload that only
// declared a Content-Type. Parameters such as charset are ignored. Types
// outside the registry get a bare "document".
func FilenameForMime(contentType string) string {
	const base = "document"

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return base
	}
	f, ok := FormatForMime(mediaType)
	if !ok {
		return base
	}
	// prefer the library's canonical extension (image/png -> .png) when it belongs to f
	if m := mimetype.Lookup(mediaType); m != nil {
		if ext := m.Extension(); ext != "" {
			if g, ok := FormatForExtension(ext); ok && g == f {
				return base + ext
			}
		}
	}
	return base + "." + formatExtensions[f][0]
}

// extensionOf returns the lowercased extension of the filename's base name.
// Dotfiles such as ".md" have no extension.
func extensionOf(filename string) string {
	name := filepath.Base(filename)
	if name == "." || strings.HasPrefix(name, ".") {
		return ""
	}
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}
