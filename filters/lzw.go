package filters

import (
	"bytes"
	"context"

	"github.com/hhrutter/lzw"

	"pdflib/objects"
)

type lzwDecoder struct {
	limits Limits
}

func (*lzwDecoder) Name() string { return "LZWDecode" }

// Decode expands LZW data. /EarlyChange defaults to 1, meaning code width
// grows one code before the table fills; the TIFF-style variant stdlib
// compress/lzw implements never does this, hence the external reader.
func (l *lzwDecoder) Decode(_ context.Context, data []byte, parms *objects.Dict) ([]byte, error) {
	earlyChange := parmInt(parms, "EarlyChange", 1) != 0
	r := lzw.NewReader(bytes.NewReader(data), earlyChange)
	defer r.Close()
	out, err := readBounded(r, l.limits.MaxDecodedBytes)
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, parms)
}
