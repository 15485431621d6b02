package validator

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/feichai0017/document-converter/internal/models"
	"github.com/feichai0017/document-converter/pkg/logger"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func fileHeaders(t *testing.T, files map[string][]byte) []*multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	form, err := multipart.NewReader(&body, mw.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["files"]
}

func TestValidateContent(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), nil, &ValidatorConfig{MaxFileSize: 64, MaxDimension: 8})

	tests := []struct {
		name     string
		filename string
		content  []byte
		valid    bool
		code     string
		format   models.Format
	}{
		{name: "markdown", filename: "notes.md", content: []byte("# hi"), valid: true, format: models.FormatMarkdown},
		{name: "html sniffed", filename: "", content: []byte("<html></html>"), valid: true, format: models.FormatHTML},
		{name: "plain text", filename: "notes.txt", content: []byte("hello"), code: CodeUnsupportedFormat},
		{name: "too large", filename: "big.md", content: bytes.Repeat([]byte("a"), 65), code: CodeFileTooLarge},
		{name: "broken pdf", filename: "x.pdf", content: []byte("%PDF-1.4\nbroken"), code: CodeInvalidDocument, format: models.FormatPDF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := v.ValidateContent(tt.filename, tt.content)
			assert.Equal(t, tt.valid, r.IsValid)
			assert.Equal(t, tt.format, r.FileInfo.Format)
			if tt.code != "" {
				assert.True(t, r.HasError(tt.code), "%+v", r.Errors)
			}
		})
	}
}

func TestValidateContentImageDimensions(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), nil, &ValidatorConfig{MaxDimension: 8})

	ok := v.ValidateContent("small.png", pngBytes(t, 4, 4))
	assert.True(t, ok.IsValid)
	assert.Equal(t, models.FormatImage, ok.FileInfo.Format)
	assert.Equal(t, "image/png", ok.FileInfo.MimeType)
	assert.Equal(t, 4, ok.FileInfo.Metadata["width"])

	big := v.ValidateContent("big.png", pngBytes(t, 16, 4))
	assert.False(t, big.IsValid)
	assert.True(t, big.HasError(CodeImageTooLarge))
}

func TestValidateContentImageDimensionsByKind(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), nil, &ValidatorConfig{MaxDimension: 8})

	tests := []struct {
		name   string
		file   string
		encode func(io.Writer, image.Image) error
	}{
		{"bmp", "scan.bmp", bmp.Encode},
		{"tiff", "scan.tiff", func(w io.Writer, m image.Image) error { return tiff.Encode(w, m, nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var small, big bytes.Buffer
			require.NoError(t, tt.encode(&small, image.NewGray(image.Rect(0, 0, 4, 4))))
			require.NoError(t, tt.encode(&big, image.NewGray(image.Rect(0, 0, 16, 4))))

			ok := v.ValidateContent(tt.file, small.Bytes())
			assert.True(t, ok.IsValid, "%+v", ok.Errors)
			assert.Equal(t, tt.name, ok.FileInfo.Metadata["imageType"])

			r := v.ValidateContent(tt.file, big.Bytes())
			assert.False(t, r.IsValid)
			assert.True(t, r.HasError(CodeImageTooLarge), "%+v", r.Errors)
		})
	}
}

// unresolvablePDF has a well-formed header, xref and trailer, but the xref
// entry for the catalog points at bytes that are not an object.
func unresolvablePDF() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	catalog := buf.Len()
	buf.WriteString("garbage garbage garbage\n")
	pages := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 3\n0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \n", catalog, pages)
	fmt.Fprintf(&buf, "trailer\n<< /Size 3 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes()
}

func TestValidateContentUnresolvablePDF(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), nil, nil)

	var r *ValidationResult
	require.NotPanics(t, func() { r = v.ValidateContent("broken.pdf", unresolvablePDF()) })
	assert.False(t, r.IsValid)
	assert.Equal(t, models.FormatPDF, r.FileInfo.Format)
	assert.True(t, r.HasError(CodeInvalidDocument), "%+v", r.Errors)
}

func TestValidateContentAllowedFormats(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), nil, &ValidatorConfig{AllowedFormats: []models.Format{models.FormatCSV}})

	assert.True(t, v.ValidateContent("a.csv", []byte("a,b")).IsValid)
	r := v.ValidateContent("a.md", []byte("# a"))
	assert.True(t, r.HasError(CodeFormatNotAllowed))
}

func TestValidateContentHash(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), nil, nil)
	r := v.ValidateContent("a.md", []byte("abc"))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", r.FileInfo.Hash)
	assert.Equal(t, "md", r.FileInfo.Extension)
}

func TestValidateFiles(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), nil, nil)
	headers := fileHeaders(t, map[string][]byte{
		"a.csv":  []byte("x,y\n1,2\n"),
		"b.adoc": []byte("= Title"),
	})

	results, err := v.ValidateFiles(context.Background(), headers)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for i, r := range results {
		assert.True(t, r.IsValid)
		assert.Equal(t, headers[i].Filename, r.FileInfo.Filename)
	}
}

func TestValidateFileReturnsContent(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), nil, nil)
	headers := fileHeaders(t, map[string][]byte{"a.md": []byte("# x")})

	r, content, err := v.ValidateFile(headers[0])
	require.NoError(t, err)
	assert.True(t, r.IsValid)
	assert.Equal(t, "# x", string(content))
}

func TestReadLimited(t *testing.T) {
	got, err := ReadLimited(strings.NewReader("abcdef"), 3)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got))

	got, err = ReadLimited(strings.NewReader("abcdef"), 0)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(got))
}
