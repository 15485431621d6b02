package format

import (
	"github.com/gabriel-vasile/mimetype"
)

// MagicClassifier guesses a MIME type from binary signatures alone.
type MagicClassifier interface {
	Classify(content []byte) (string, bool)
}

// MagicClassifierFunc adapts a plain function to MagicClassifier.
type MagicClassifierFunc func(content []byte) (string, bool)

func (f MagicClassifierFunc) Classify(content []byte) (string, bool) {
	return f(content)
}

// MimetypeClassifier is backed by the gabriel-vasile/mimetype signature tree.
// Anything the library detects as text (plain text and its descendants such
// as HTML, XML, JSON and CSV) or leaves at the octet-stream root is not a
// signature match; those formats are handled by the extension and sniff steps.
type MimetypeClassifier struct{}

func (MimetypeClassifier) Classify(content []byte) (string, bool) {
	m := mimetype.Detect(content)
	if m == nil || m.Parent() == nil {
		return "", false
	}
	for p := m; p != nil; p = p.Parent() {
		if p.Is(MIMETextPlain) {
			return "", false
		}
	}
	return m.String(), true
}
