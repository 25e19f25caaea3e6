package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	"errors"
	"testing"

	"github.com/hhrutter/lzw"

	"pdflib/objects"
	"pdflib/recovery"
)

func zlibCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func streamWith(filter objects.Object, parms objects.Object, raw []byte) *objects.Stream {
	d := objects.NewDict()
	if filter != nil {
		d.Set("Filter", filter)
	}
	if parms != nil {
		d.Set("DecodeParms", parms)
	}
	return objects.NewStream(d, raw)
}

func decode(t *testing.T, p *Pipeline, st *objects.Stream) []byte {
	t.Helper()
	out, err := p.Decode(context.Background(), st, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return out
}

func TestFlateRoundTrip(t *testing.T) {
	raw := []byte("some stream content worth compressing, repeated repeated repeated")
	p := NewPipeline(Limits{}, nil)
	st := streamWith(objects.Name("FlateDecode"), nil, zlibCompress(t, raw))
	if got := decode(t, p, st); !bytes.Equal(got, raw) {
		t.Fatalf("got %q", got)
	}
}

func TestFlateEmptyPayload(t *testing.T) {
	p := NewPipeline(Limits{}, nil)
	st := streamWith(objects.Name("FlateDecode"), nil, zlibCompress(t, nil))
	if got := decode(t, p, st); len(got) != 0 {
		t.Fatalf("got %d bytes", len(got))
	}
}

func TestFlateRawFallback(t *testing.T) {
	// Some producers emit raw deflate without the zlib wrapper.
	raw := []byte("raw deflate payload")
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(raw)
	fw.Close()
	p := NewPipeline(Limits{}, nil)
	st := streamWith(objects.Name("FlateDecode"), nil, buf.Bytes())
	if got := decode(t, p, st); !bytes.Equal(got, raw) {
		t.Fatalf("got %q", got)
	}
}

func TestFlateSizeLimit(t *testing.T) {
	raw := make([]byte, 4096)
	p := NewPipeline(Limits{MaxDecodedBytes: 100}, recovery.NewStrict())
	st := streamWith(objects.Name("FlateDecode"), nil, zlibCompress(t, raw))
	if _, err := p.Decode(context.Background(), st, nil); err == nil {
		t.Fatal("want size limit error")
	}
}

func TestLZWRoundTrip(t *testing.T) {
	raw := []byte("LZW compresses repeated sequences: abcabcabcabcabc")
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, true)
	if _, err := w.Write(raw); err != nil {
		t.Fatal(err)
	}
	w.Close()
	p := NewPipeline(Limits{}, nil)
	st := streamWith(objects.Name("LZWDecode"), nil, buf.Bytes())
	if got := decode(t, p, st); !bytes.Equal(got, raw) {
		t.Fatalf("got %q", got)
	}
}

func TestLZWNoEarlyChange(t *testing.T) {
	raw := []byte("early change off")
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, false)
	w.Write(raw)
	w.Close()
	parms := objects.NewDict()
	parms.Set("EarlyChange", objects.Integer(0))
	p := NewPipeline(Limits{}, nil)
	st := streamWith(objects.Name("LZWDecode"), parms, buf.Bytes())
	if got := decode(t, p, st); !bytes.Equal(got, raw) {
		t.Fatalf("got %q", got)
	}
}

func TestRunLengthKnownVectors(t *testing.T) {
	// 2 → three literal bytes, 254 → byte repeated 3 times, 128 → EOD.
	in := []byte{2, 'a', 'b', 'c', 254, 'x', 128}
	p := NewPipeline(Limits{}, nil)
	st := streamWith(objects.Name("RunLengthDecode"), nil, in)
	if got := decode(t, p, st); string(got) != "abcxxx" {
		t.Fatalf("got %q", got)
	}
}

func TestRunLengthRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("a"),
		[]byte("aaaaaaaaaa"),
		[]byte("abcdef"),
		[]byte("aaabbbcde"),
		bytes.Repeat([]byte{7}, 300),
	}
	p := NewPipeline(Limits{}, nil)
	for _, raw := range cases {
		st := streamWith(objects.Name("RunLengthDecode"), nil, RunLengthEncode(raw))
		if got := decode(t, p, st); !bytes.Equal(got, raw) {
			t.Errorf("round trip of %q gave %q", raw, got)
		}
	}
}

func TestRunLengthDataAfterEOD(t *testing.T) {
	in := []byte{0, 'z', 128, 0, 'q'}
	p := NewPipeline(Limits{}, nil)
	st := streamWith(objects.Name("RunLengthDecode"), nil, in)
	if got := decode(t, p, st); string(got) != "z" {
		t.Fatalf("got %q", got)
	}
}

func TestASCIIHex(t *testing.T) {
	p := NewPipeline(Limits{}, nil)
	st := streamWith(objects.Name("ASCIIHexDecode"), nil, []byte("48 65 6C\n6C 6F>junk"))
	if got := decode(t, p, st); string(got) != "Hello" {
		t.Fatalf("got %q", got)
	}
	// Odd trailing digit pads with zero.
	st = streamWith(objects.Name("ASCIIHexDecode"), nil, []byte("4>"))
	if got := decode(t, p, st); !bytes.Equal(got, []byte{0x40}) {
		t.Fatalf("got %v", got)
	}
}

func TestASCIIHexInvalidStrict(t *testing.T) {
	p := NewPipeline(Limits{}, recovery.NewStrict())
	st := streamWith(objects.Name("ASCIIHexDecode"), nil, []byte("4G>"))
	if _, err := p.Decode(context.Background(), st, nil); err == nil {
		t.Fatal("want error for invalid hex digit")
	}
}

func TestASCIIHexEncodeInverse(t *testing.T) {
	raw := []byte{0x00, 0xAB, 0xFF, '1'}
	p := NewPipeline(Limits{}, nil)
	st := streamWith(objects.Name("ASCIIHexDecode"), nil, ASCIIHexEncode(raw))
	if got := decode(t, p, st); !bytes.Equal(got, raw) {
		t.Fatalf("got %v", got)
	}
}

func TestASCII85RoundTrip(t *testing.T) {
	raw := []byte("base eighty-five round trip \x00\x01\x02 with binary")
	p := NewPipeline(Limits{}, nil)
	st := streamWith(objects.Name("ASCII85Decode"), nil, ASCII85Encode(raw))
	if got := decode(t, p, st); !bytes.Equal(got, raw) {
		t.Fatalf("got %q", got)
	}
	// Optional <~ prefix is stripped.
	st = streamWith(objects.Name("ASCII85Decode"), nil, append([]byte("<~"), ASCII85Encode(raw)...))
	if got := decode(t, p, st); !bytes.Equal(got, raw) {
		t.Fatalf("with prefix: got %q", got)
	}
}

func TestPassthroughFilters(t *testing.T) {
	raw := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	p := NewPipeline(Limits{}, nil)
	for _, name := range []string{"DCTDecode", "JPXDecode", "CCITTFaxDecode", "JBIG2Decode"} {
		st := streamWith(objects.Name(name), nil, raw)
		if got := decode(t, p, st); !bytes.Equal(got, raw) {
			t.Errorf("%s modified the data", name)
		}
	}
}

func TestUnknownFilterLenient(t *testing.T) {
	lenient := recovery.NewLenient(nil)
	raw := []byte("opaque")
	p := NewPipeline(Limits{}, lenient)
	st := streamWith(objects.Name("NoSuchFilter"), nil, raw)
	if got := decode(t, p, st); !bytes.Equal(got, raw) {
		t.Fatalf("got %q", got)
	}
	if len(lenient.Diagnostics()) != 1 {
		t.Fatalf("diagnostics = %d", len(lenient.Diagnostics()))
	}
	var unsup *UnsupportedError
	if !errors.As(lenient.Diagnostics()[0].Err, &unsup) || unsup.Filter != "NoSuchFilter" {
		t.Fatalf("diagnostic = %v", lenient.Diagnostics()[0])
	}
}

func TestUnknownFilterMidChainContinues(t *testing.T) {
	// A degraded stage passes its input through; the stages after it
	// still run.
	lenient := recovery.NewLenient(nil)
	p := NewPipeline(Limits{}, lenient)
	st := streamWith(
		objects.Array{objects.Name("NoSuchFilter"), objects.Name("ASCIIHexDecode")},
		nil, []byte("41 42 43>"))
	if got := decode(t, p, st); !bytes.Equal(got, []byte("ABC")) {
		t.Fatalf("got %q", got)
	}
	if len(lenient.Diagnostics()) != 1 {
		t.Fatalf("diagnostics = %d", len(lenient.Diagnostics()))
	}
}

func TestUnknownFilterStrict(t *testing.T) {
	p := NewPipeline(Limits{}, recovery.NewStrict())
	st := streamWith(objects.Name("NoSuchFilter"), nil, []byte("x"))
	if _, err := p.Decode(context.Background(), st, nil); err == nil {
		t.Fatal("want error")
	}
}

func TestFilterChain(t *testing.T) {
	raw := []byte("chained stages decode outermost first")
	encoded := ASCIIHexEncode(zlibCompress(t, raw))
	p := NewPipeline(Limits{}, nil)
	st := streamWith(
		objects.Array{objects.Name("ASCIIHexDecode"), objects.Name("FlateDecode")},
		nil, encoded)
	if got := decode(t, p, st); !bytes.Equal(got, raw) {
		t.Fatalf("got %q", got)
	}
}

func TestNoFilterReturnsRaw(t *testing.T) {
	raw := []byte("plain")
	p := NewPipeline(Limits{}, nil)
	st := streamWith(nil, nil, raw)
	if got := decode(t, p, st); !bytes.Equal(got, raw) {
		t.Fatalf("got %q", got)
	}
}

func TestFilterChainIndirect(t *testing.T) {
	raw := []byte("indirect filter name")
	resolve := func(o objects.Object) objects.Object {
		if ref, ok := o.(objects.Reference); ok && ref.Num == 5 {
			return objects.Name("FlateDecode")
		}
		return o
	}
	p := NewPipeline(Limits{}, nil)
	st := streamWith(objects.Reference{Num: 5}, nil, zlibCompress(t, raw))
	got, err := p.Decode(context.Background(), st, resolve)
	if err != nil || !bytes.Equal(got, raw) {
		t.Fatalf("got %q, %v", got, err)
	}
}
