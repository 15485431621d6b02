package document

import (
	"bytes"
	"regexp"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// NormalizeText strips a UTF-8 byte order mark, converts CRLF and lone CR
// line endings to LF and replaces invalid UTF-8 sequences.
func NormalizeText(content []byte) string {
	content = bytes.TrimPrefix(content, utf8BOM)
	text := strings.ToValidUTF8(string(content), "�")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

var (
	markdownHeading = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+?)[ \t#]*$`)
	asciidocHeading = regexp.MustCompile(`(?m)^={1,6}[ \t]+(.+?)[ \t]*$`)
)

// MarkdownHeadings returns ATX heading titles in document order.
func MarkdownHeadings(text string) []string {
	return headings(markdownHeading, text)
}

// AsciiDocHeadings returns section titles ("= Title", "== Section") in
// document order.
func AsciiDocHeadings(text string) []string {
	return headings(asciidocHeading, text)
}

func headings(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if title := strings.TrimSpace(m[1]); title != "" {
			out = append(out, title)
		}
	}
	return out
}
