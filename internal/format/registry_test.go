package format

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-converter/internal/models"
)

func TestFormatForMimeRoundTrip(t *testing.T) {
	seen := make(map[string]models.Format)
	for _, f := range Formats() {
		mimes := MimeTypesFor(f)
		require.NotEmpty(t, mimes, f)
		for _, m := range mimes {
			prev, dup := seen[m]
			require.False(t, dup, "%s registered for %s and %s", m, prev, f)
			seen[m] = f

			got, ok := FormatForMime(m)
			require.True(t, ok, m)
			assert.Equal(t, f, got, m)
		}
	}
}

func TestExtensionsAreDisjointAndLowercase(t *testing.T) {
	seen := make(map[string]models.Format)
	for _, f := range Formats() {
		for _, ext := range ExtensionsFor(f) {
			assert.Equal(t, strings.ToLower(ext), ext)
			assert.False(t, strings.HasPrefix(ext, "."), ext)
			prev, dup := seen[ext]
			require.False(t, dup, "%s registered for %s and %s", ext, prev, f)
			seen[ext] = f
		}
	}
}

func TestFormatsCoverEveryFormat(t *testing.T) {
	formats := Formats()
	assert.Len(t, formats, 8)
	for _, f := range formats {
		assert.True(t, f.Valid(), f)
	}
}

func TestLookupsForUnknownFormat(t *testing.T) {
	assert.Empty(t, ExtensionsFor(models.Format("xlsx")))
	assert.Empty(t, MimeTypesFor(models.FormatUnknown))

	_, ok := FormatForMime("text/plain")
	assert.False(t, ok)
	_, ok = FormatForMime("")
	assert.False(t, ok)
}

func TestLookupsReturnCopies(t *testing.T) {
	exts := ExtensionsFor(models.FormatHTML)
	exts[0] = "mutated"
	assert.Equal(t, "html", ExtensionsFor(models.FormatHTML)[0])

	mimes := MimeTypesFor(models.FormatHTML)
	mimes[0] = "mutated"
	got, ok := FormatForMime("text/html")
	assert.True(t, ok)
	assert.Equal(t, models.FormatHTML, got)

	formats := Formats()
	formats[0] = models.FormatUnknown
	assert.Equal(t, models.FormatDOCX, Formats()[0])
}

func TestReverseIndexRejectsCollisions(t *testing.T) {
	_, err := reverseIndex(map[models.Format][]string{
		models.FormatHTML:     {"text/html"},
		models.FormatMarkdown: {"text/html"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"text/html"`)
}

func TestFormatForExtension(t *testing.T) {
	tests := []struct {
		ext  string
		want models.Format
		ok   bool
	}{
		{"md", models.FormatMarkdown, true},
		{".MD", models.FormatMarkdown, true},
		{"Tiff", models.FormatImage, true},
		{".dotm", models.FormatDOCX, true},
		{"asc", models.FormatASCIIDoc, true},
		{"txt", models.FormatUnknown, false},
		{"", models.FormatUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			got, ok := FormatForExtension(tt.ext)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilenameForMime(t *testing.T) {
	assert.Equal(t, "document.png", FilenameForMime("image/png"))
	assert.Equal(t, "document.pdf", FilenameForMime("application/pdf"))
	assert.Equal(t, "document.md", FilenameForMime("text/markdown; charset=utf-8"))
	assert.Equal(t, "document.adoc", FilenameForMime("text/asciidoc"))
	assert.Equal(t, "document", FilenameForMime("application/octet-stream"))
	assert.Equal(t, "document", FilenameForMime(""))
	assert.Equal(t, "document", FilenameForMime("not a media type;;"))

	// whatever extension is picked must resolve back to the declared format
	for _, f := range Formats() {
		for _, m := range MimeTypesFor(f) {
			name := FilenameForMime(m)
			got, ok := FormatForExtension(filepath.Ext(name))
			require.True(t, ok, "%s -> %s", m, name)
			assert.Equal(t, f, got, "%s -> %s", m, name)
		}
	}
}

func TestExtensionOf(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"report.PDF", "pdf"},
		{"notes.md", "md"},
		{"archive.tar.gz", "gz"},
		{"uploads/2024/readme.ADOC", "adoc"},
		{".md", ""},
		{"uploads/.hidden.md", ""},
		{"Makefile", ""},
		{"release.v2/README", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extensionOf(tt.name))
		})
	}
}
