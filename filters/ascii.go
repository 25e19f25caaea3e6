package filters

import (
	"bytes"
	"context"
	"encoding/ascii85"
	"errors"
	"fmt"
	"io"

	"pdflib/objects"
)

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }

// Decode reads hex pairs until the > terminator. Whitespace is ignored and
// an odd final digit is padded with zero.
func (asciiHexDecoder) Decode(_ context.Context, data []byte, _ *objects.Dict) ([]byte, error) {
	var out []byte
	var hi byte
	haveHi := false
	for _, c := range data {
		if c == '>' {
			break
		}
		if isHexWS(c) {
			continue
		}
		v, ok := hexVal(c)
		if !ok {
			return nil, fmt.Errorf("invalid hex character %q", c)
		}
		if haveHi {
			out = append(out, hi<<4|v)
			haveHi = false
		} else {
			hi = v
			haveHi = true
		}
	}
	if haveHi {
		out = append(out, hi<<4)
	}
	return out, nil
}

// ASCIIHexEncode is the inverse, terminated with >.
func ASCIIHexEncode(data []byte) []byte {
	const digits = "0123456789ABCDEF"
	out := make([]byte, 0, len(data)*2+1)
	for _, b := range data {
		out = append(out, digits[b>>4], digits[b&0x0F])
	}
	return append(out, '>')
}

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }

// Decode strips the optional <~ prefix and decodes up to the ~> terminator.
func (ascii85Decoder) Decode(_ context.Context, data []byte, _ *objects.Dict) ([]byte, error) {
	data = bytes.TrimPrefix(data, []byte("<~"))
	if idx := bytes.Index(data, []byte("~>")); idx >= 0 {
		data = data[:idx]
	}
	dec := ascii85.NewDecoder(bytes.NewReader(data))
	out, err := io.ReadAll(dec)
	if err != nil {
		var corrupt ascii85.CorruptInputError
		if errors.As(err, &corrupt) {
			return nil, fmt.Errorf("corrupt base85 data at byte %d", int64(corrupt))
		}
		return nil, err
	}
	return out, nil
}

// ASCII85Encode is the inverse, terminated with ~>.
func ASCII85Encode(data []byte) []byte {
	var buf bytes.Buffer
	enc := ascii85.NewEncoder(&buf)
	enc.Write(data)
	enc.Close()
	buf.WriteString("~>")
	return buf.Bytes()
}

type passthroughDecoder struct {
	name string
}

func (p passthroughDecoder) Name() string { return p.name }

func (passthroughDecoder) Decode(_ context.Context, data []byte, _ *objects.Dict) ([]byte, error) {
	return data, nil
}

func isHexWS(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
