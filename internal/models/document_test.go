package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatValid(t *testing.T) {
	for _, f := range []Format{
		FormatDOCX, FormatPPTX, FormatHTML, FormatImage,
		FormatPDF, FormatASCIIDoc, FormatMarkdown, FormatCSV,
	} {
		assert.True(t, f.Valid(), f)
	}
	assert.False(t, FormatUnknown.Valid())
	assert.False(t, Format("xlsx").Valid())
	assert.Equal(t, "unknown", FormatUnknown.String())
	assert.Equal(t, "md", FormatMarkdown.String())
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want ProcessingStatus
	}{
		{"pending", StatusPending},
		{"active", StatusRunning},
		{"running", StatusRunning},
		{"completed", StatusCompleted},
		{"failed", StatusFailed},
		{"cancelled", StatusCancelled},
		{"", StatusPending},
		{"archived", StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStatus(tt.in))
		})
	}
}
