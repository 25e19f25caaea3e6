package filters

import (
	"bytes"
	"context"
	"testing"

	"pdflib/objects"
)

func parmsDict(kv map[objects.Name]int64) *objects.Dict {
	d := objects.NewDict()
	for k, v := range kv {
		d.Set(k, objects.Integer(v))
	}
	return d
}

func TestPaeth(t *testing.T) {
	cases := []struct {
		left, up, upLeft byte
		want             byte
	}{
		{0, 0, 0, 0},
		{1, 2, 3, 1},     // p=0: left closest
		{2, 1, 3, 1},     // up closest
		{0, 255, 128, 128}, // upLeft closest
		{1, 1, 1, 1},     // three-way tie: left
		{2, 2, 4, 2},     // left/up tie: left
		{0, 6, 2, 6},     // up/upLeft tie: up
		{2, 4, 2, 4},
		{1, 3, 2, 2}, // upLeft exact
		{3, 1, 2, 2},
		{3, 2, 1, 3},
		{255, 255, 255, 255},
	}
	for _, c := range cases {
		if got := paeth(c.left, c.up, c.upLeft); got != c.want {
			t.Errorf("paeth(%d, %d, %d) = %d, want %d", c.left, c.up, c.upLeft, got, c.want)
		}
	}
}

func TestTIFFPredictor(t *testing.T) {
	// Two rows of three single-byte samples, horizontally differenced.
	encoded := []byte{
		10, 10, 10,
		5, 0, 251,
	}
	want := []byte{
		10, 20, 30,
		5, 5, 0,
	}
	parms := parmsDict(map[objects.Name]int64{"Predictor": 2, "Columns": 3})
	got, err := applyPredictor(encoded, parms)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// pngEncode applies one PNG row filter per row, the inverse of the decoder.
func pngEncode(raw []byte, rowLen, bpp int, rowFilters []byte) []byte {
	rows := len(raw) / rowLen
	out := make([]byte, 0, rows*(rowLen+1))
	prev := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		cur := raw[r*rowLen : (r+1)*rowLen]
		ft := rowFilters[r]
		out = append(out, ft)
		for i := 0; i < rowLen; i++ {
			var left, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prev[i-bpp]
			}
			up := prev[i]
			var pred byte
			switch ft {
			case 0:
			case 1:
				pred = left
			case 2:
				pred = up
			case 3:
				pred = byte((int(left) + int(up)) / 2)
			case 4:
				pred = paeth(left, up, upLeft)
			}
			out = append(out, cur[i]-pred)
		}
		prev = cur
	}
	return out
}

func TestPNGPredictorAllRowFilters(t *testing.T) {
	raw := []byte{
		1, 2, 3, 4,
		10, 20, 30, 40,
		9, 8, 7, 6,
		100, 101, 102, 103,
		50, 60, 70, 80,
	}
	encoded := pngEncode(raw, 4, 1, []byte{0, 1, 2, 3, 4})
	parms := parmsDict(map[objects.Name]int64{"Predictor": 15, "Columns": 4})
	got, err := applyPredictor(encoded, parms)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("got %v, want %v", got, raw)
	}
}

func TestPNGPredictorMultiComponent(t *testing.T) {
	// RGB rows: bpp is 3, so Sub references the pixel three bytes back.
	raw := []byte{
		255, 0, 0, 250, 5, 5,
		0, 255, 0, 5, 250, 5,
	}
	encoded := pngEncode(raw, 6, 3, []byte{1, 4})
	parms := parmsDict(map[objects.Name]int64{"Predictor": 12, "Columns": 2, "Colors": 3})
	got, err := applyPredictor(encoded, parms)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("got %v, want %v", got, raw)
	}
}

func TestPNGPredictorBadRowSize(t *testing.T) {
	parms := parmsDict(map[objects.Name]int64{"Predictor": 12, "Columns": 4})
	if _, err := applyPredictor([]byte{0, 1, 2}, parms); err == nil {
		t.Fatal("want row size error")
	}
}

func TestFlateWithPNGPredictor(t *testing.T) {
	raw := []byte{
		1, 1, 1, 1,
		2, 2, 2, 2,
		3, 3, 3, 3,
	}
	encoded := pngEncode(raw, 4, 1, []byte{0, 2, 2})
	parms := parmsDict(map[objects.Name]int64{"Predictor": 12, "Columns": 4})
	p := NewPipeline(Limits{}, nil)
	st := streamWith(objects.Name("FlateDecode"), parms, zlibCompress(t, encoded))
	got, err := p.Decode(context.Background(), st, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("got %v, want %v", got, raw)
	}
}

func TestPredictorDefaultIsNone(t *testing.T) {
	data := []byte{9, 9, 9}
	got, err := applyPredictor(data, nil)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("got %v, %v", got, err)
	}
}
