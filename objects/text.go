package objects

import (
	"bytes"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var utf16beBOM = []byte{0xFE, 0xFF}

// Text interprets the string bytes as a PDF text string: UTF-16BE when the
// big-endian byte order mark is present, PDFDocEncoding otherwise. The
// PDFDocEncoding branch maps bytes through Latin-1, which matches it for
// the printable range.
func (s String) Text() string {
	if bytes.HasPrefix(s.Data, utf16beBOM) {
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, s.Data)
		if err == nil {
			return string(out)
		}
	}
	runes := make([]rune, len(s.Data))
	for i, b := range s.Data {
		runes[i] = rune(b)
	}
	return string(runes)
}
