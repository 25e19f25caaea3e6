// Package pdflib provides a PDF object-syntax parsing core: a tokenizer,
// an object parser, cross-reference resolution with a linear-scan recovery
// path, a stream filter pipeline, and standard-security-handler decryption.
//
// The root package holds small caller-facing helpers; the actual machinery
// lives in the subpackages (scanner, parser, xref, filters, security,
// document).
package pdflib

import "fmt"

// HumanReadableBytes renders a byte count for diagnostics. Counts below
// 1000 are reported as-is ("123 Byte"); larger counts are scaled to
// decimal units with one fractional digit ("1.2 kB", "1234.6 GB").
func HumanReadableBytes(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d Byte", n)
	}
	v := float64(n)
	for _, unit := range []string{"kB", "MB", "GB"} {
		v /= 1000
		if v < 1000 || unit == "GB" {
			return fmt.Sprintf("%.1f %s", v, unit)
		}
	}
	panic("unreachable")
}

// File describes an extracted embedded file or attachment payload.
type File struct {
	Name string
	Data []byte
}

func (f File) String() string {
	return fmt.Sprintf("File(name=%s, data: %s)", f.Name, HumanReadableBytes(int64(len(f.Data))))
}
