package filters

import (
	"fmt"

	"pdflib/objects"
)

// applyPredictor undoes the /Predictor transform on already-inflated data.
// 1 means none, 2 is TIFF horizontal differencing, 10..15 are the PNG
// row filters where each row carries its own filter-type byte.
func applyPredictor(data []byte, parms *objects.Dict) ([]byte, error) {
	pred := parmInt(parms, "Predictor", 1)
	if pred <= 1 {
		return data, nil
	}
	colors := int(parmInt(parms, "Colors", 1))
	bpc := int(parmInt(parms, "BitsPerComponent", 8))
	columns := int(parmInt(parms, "Columns", 1))
	if colors < 1 || bpc < 1 || columns < 1 {
		return nil, fmt.Errorf("invalid predictor parameters colors=%d bpc=%d columns=%d", colors, bpc, columns)
	}
	bpp := (colors*bpc + 7) / 8
	rowLen := (columns*colors*bpc + 7) / 8
	switch {
	case pred == 2:
		return tiffPredictor(data, bpp, rowLen, bpc)
	case pred >= 10 && pred <= 15:
		return pngPredictor(data, bpp, rowLen)
	default:
		return nil, fmt.Errorf("unknown predictor %d", pred)
	}
}

func tiffPredictor(data []byte, bpp, rowLen, bpc int) ([]byte, error) {
	if bpc != 8 {
		return nil, fmt.Errorf("tiff predictor with %d bits per component not supported", bpc)
	}
	out := append([]byte(nil), data...)
	for row := 0; row+rowLen <= len(out); row += rowLen {
		for i := bpp; i < rowLen; i++ {
			out[row+i] += out[row+i-bpp]
		}
	}
	return out, nil
}

func pngPredictor(data []byte, bpp, rowLen int) ([]byte, error) {
	stride := rowLen + 1
	if len(data)%stride != 0 {
		return nil, fmt.Errorf("png predictor: data length %d not a multiple of row size %d", len(data), stride)
	}
	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		ft := data[r*stride]
		copy(cur, data[r*stride+1:(r+1)*stride])
		switch ft {
		case 0: // None
		case 1: // Sub
			for i := bpp; i < rowLen; i++ {
				cur[i] += cur[i-bpp]
			}
		case 2: // Up
			for i := 0; i < rowLen; i++ {
				cur[i] += prev[i]
			}
		case 3: // Average
			for i := 0; i < rowLen; i++ {
				var left int
				if i >= bpp {
					left = int(cur[i-bpp])
				}
				cur[i] += byte((left + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= bpp {
					left = cur[i-bpp]
					upLeft = prev[i-bpp]
				}
				cur[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, fmt.Errorf("png predictor: unknown row filter %d", ft)
		}
		out = append(out, cur...)
		prev, cur = cur, prev
	}
	return out, nil
}

// paeth picks whichever of left, up, upLeft is closest to the linear
// prediction left+up-upLeft, preferring left, then up, on ties.
func paeth(left, up, upLeft byte) byte {
	p := int(left) + int(up) - int(upLeft)
	pa := abs(p - int(left))
	pb := abs(p - int(up))
	pc := abs(p - int(upLeft))
	if pa <= pb && pa <= pc {
		return left
	}
	if pb <= pc {
		return up
	}
	return upLeft
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
