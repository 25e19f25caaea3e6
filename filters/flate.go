package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	"errors"
	"io"

	"pdflib/objects"
)

type flateDecoder struct {
	limits Limits
}

func (*flateDecoder) Name() string { return "FlateDecode" }

// Decode inflates the payload. Writers occasionally omit the zlib wrapper,
// so a failed zlib open falls back to raw deflate before giving up.
func (f *flateDecoder) Decode(_ context.Context, data []byte, parms *objects.Dict) ([]byte, error) {
	out, err := inflateZlib(data, f.limits.MaxDecodedBytes)
	if err != nil {
		out, err = inflateRaw(data, f.limits.MaxDecodedBytes)
		if err != nil {
			return nil, err
		}
	}
	return applyPredictor(out, parms)
}

func inflateZlib(data []byte, limit int64) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return readBounded(zr, limit)
}

func inflateRaw(data []byte, limit int64) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	return readBounded(fr, limit)
}

func readBounded(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		out, err := io.ReadAll(r)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, err
		}
		return out, nil
	}
	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	if int64(len(out)) > limit {
		return nil, errors.New("decoded stream exceeds size limit")
	}
	return out, nil
}
