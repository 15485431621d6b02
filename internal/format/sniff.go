package format

import (
	"regexp"
	"strings"
	"unicode"
)

// xhtmlWindow is how far into the comment-stripped text the "xhtml" marker may appear.
const xhtmlWindow = 1000

var (
	commentPattern = regexp.MustCompile(`(?s)<!--.*?-->`)
	xmlDeclPattern = regexp.MustCompile(`^<\?xml`)
	htmlPattern    = regexp.MustCompile(`^(?:<!doctype\s+html|<html|<head|<body)`)
)

// SniffHTML recognizes HTML and XHTML from their leading markup. Content is
// read as ASCII with other bytes dropped, so binary input quietly yields no
// match. An XML prologue that never mentions xhtml is not HTML.
func SniffHTML(content []byte) (string, bool) {
	text := strings.ToLower(asciiOnly(content))
	text = commentPattern.ReplaceAllString(text, "")
	text = strings.TrimLeftFunc(text, unicode.IsSpace)

	if xmlDeclPattern.MatchString(text) {
		head := text
		if len(head) > xhtmlWindow {
			head = head[:xhtmlWindow]
		}
		if strings.Contains(head, "xhtml") {
			return MIMEXHTML, true
		}
	}

	if htmlPattern.MatchString(text) {
		return MIMETextHTML, true
	}

	return "", false
}

func asciiOnly(content []byte) string {
	var b strings.Builder
	b.Grow(len(content))
	for _, c := range content {
		if c <= unicode.MaxASCII {
			b.WriteByte(c)
		}
	}
	return b.String()
}
