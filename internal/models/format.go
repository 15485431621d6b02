package models

// Format 输入文档格式
type Format string

const (
	// FormatUnknown is the result for content no format claims.
	FormatUnknown Format = ""

	FormatDOCX     Format = "docx"
	FormatPPTX     Format = "pptx"
	FormatHTML     Format = "html"
	FormatImage    Format = "image"
	FormatPDF      Format = "pdf"
	FormatASCIIDoc Format = "asciidoc"
	FormatMarkdown Format = "md"
	FormatCSV      Format = "csv"
)

// Valid reports whether f is one of the recognized formats.
func (f Format) Valid() bool {
	switch f {
	case FormatDOCX, FormatPPTX, FormatHTML, FormatImage,
		FormatPDF, FormatASCIIDoc, FormatMarkdown, FormatCSV:
		return true
	default:
		return false
	}
}

func (f Format) String() string {
	if f == FormatUnknown {
		return "unknown"
	}
	return string(f)
}
