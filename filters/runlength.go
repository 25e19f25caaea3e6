package filters

import (
	"context"
	"errors"

	"pdflib/objects"
)

type runLengthDecoder struct{}

func (runLengthDecoder) Name() string { return "RunLengthDecode" }

// Decode expands run-length data: a length byte L of 0..127 copies the next
// L+1 bytes literally, 129..255 repeats the next byte 257-L times, and 128
// ends the data.
func (runLengthDecoder) Decode(_ context.Context, data []byte, _ *objects.Dict) ([]byte, error) {
	var out []byte
	i := 0
	for i < len(data) {
		l := int(data[i])
		i++
		switch {
		case l == 128:
			return out, nil
		case l < 128:
			n := l + 1
			if i+n > len(data) {
				return nil, errors.New("run length literal truncated")
			}
			out = append(out, data[i:i+n]...)
			i += n
		default:
			if i >= len(data) {
				return nil, errors.New("run length repeat truncated")
			}
			b := data[i]
			i++
			for k := 0; k < 257-l; k++ {
				out = append(out, b)
			}
		}
	}
	// Missing EOD marker is tolerated.
	return out, nil
}

// RunLengthEncode produces the inverse encoding, used by tests and writers.
func RunLengthEncode(data []byte) []byte {
	var out []byte
	i := 0
	for i < len(data) {
		// Measure the run starting at i.
		run := 1
		for i+run < len(data) && run < 128 && data[i+run] == data[i] {
			run++
		}
		if run >= 2 {
			out = append(out, byte(257-run), data[i])
			i += run
			continue
		}
		// Collect a literal stretch up to the next run of 3+.
		start := i
		for i < len(data) && i-start < 128 {
			if i+2 < len(data) && data[i] == data[i+1] && data[i] == data[i+2] {
				break
			}
			i++
		}
		out = append(out, byte(i-start-1))
		out = append(out, data[start:i]...)
	}
	return append(out, 128)
}
