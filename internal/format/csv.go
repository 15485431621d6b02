package format

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Encoding is one candidate text encoding for CSV uploads.
type Encoding struct {
	Name string
	// Decode returns the UTF-8 text, or an error when the buffer is not
	// valid in this encoding.
	Decode func(content []byte) ([]byte, error)
}

// DefaultCSVEncodings is tried in order: strict UTF-8 first so valid UTF-8 is
// never misread as a single-byte charset, then the legacy Western charsets.
var DefaultCSVEncodings = []Encoding{
	{Name: "utf-8", Decode: decodeUTF8},
	{Name: "latin1", Decode: decodeCharmap(charmap.ISO8859_1)},
	{Name: "cp1252", Decode: decodeCharmap(charmap.Windows1252)},
	{Name: "iso-8859-1", Decode: decodeCharmap(charmap.ISO8859_1)},
}

// DecodeError reports that no candidate encoding could decode a buffer.
type DecodeError struct {
	Encodings []string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("could not decode CSV content, supported encodings: %s",
		strings.Join(e.Encodings, ", "))
}

// EncodingResolver normalizes CSV text of unknown encoding to UTF-8.
type EncodingResolver struct {
	encodings []Encoding
}

// ResolverOption configures an EncodingResolver.
type ResolverOption func(*EncodingResolver)

// WithEncodings replaces the candidate list.
func WithEncodings(encodings ...Encoding) ResolverOption {
	return func(r *EncodingResolver) {
		r.encodings = encodings
	}
}

// NewEncodingResolver returns a resolver over DefaultCSVEncodings unless overridden.
func NewEncodingResolver(opts ...ResolverOption) *EncodingResolver {
	r := &EncodingResolver{encodings: DefaultCSVEncodings}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Normalize decodes content with the first candidate that accepts it and
// returns a new UTF-8 buffer plus the name of the encoding used. content is
// never modified.
func (r *EncodingResolver) Normalize(content []byte) ([]byte, string, error) {
	names := make([]string, 0, len(r.encodings))
	for _, enc := range r.encodings {
		names = append(names, enc.Name)
		out, err := enc.Decode(content)
		if err != nil {
			continue
		}
		return out, enc.Name, nil
	}
	return nil, "", &DecodeError{Encodings: names}
}

// NormalizeCSV runs the default resolver.
func NormalizeCSV(content []byte) ([]byte, string, error) {
	return NewEncodingResolver().Normalize(content)
}

func decodeUTF8(content []byte) ([]byte, error) {
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("invalid utf-8 sequence")
	}
	return append([]byte(nil), content...), nil
}

// decodeCharmap rejects bytes the charmap leaves undefined instead of
// letting them through as U+FFFD.
func decodeCharmap(cm *charmap.Charmap) func([]byte) ([]byte, error) {
	return func(content []byte) ([]byte, error) {
		for i, c := range content {
			if cm.DecodeByte(c) == utf8.RuneError {
				return nil, fmt.Errorf("%s: undefined byte 0x%02x at offset %d", cm, c, i)
			}
		}
		out, err := cm.NewDecoder().Bytes(content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cm, err)
		}
		return out, nil
	}
}
