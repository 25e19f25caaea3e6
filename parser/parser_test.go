package parser

import (
	"bytes"
	"testing"

	"pdflib/objects"
	"pdflib/recovery"
	"pdflib/scanner"
)

func parseOne(t *testing.T, input string, cfg Config) objects.Object {
	t.Helper()
	sc := scanner.New(bytes.NewReader([]byte(input)), scanner.Config{Recovery: cfg.Recovery})
	p := New(sc, cfg)
	obj, err := p.ParseObject()
	if err != nil {
		t.Fatalf("ParseObject(%q): %v", input, err)
	}
	return obj
}

func TestParseScalars(t *testing.T) {
	if v, ok := parseOne(t, "42", Config{}).(objects.Integer); !ok || v != 42 {
		t.Fatalf("got %#v", v)
	}
	if v, ok := parseOne(t, "-2.5", Config{}).(objects.Real); !ok || v != -2.5 {
		t.Fatalf("got %#v", v)
	}
	if v, ok := parseOne(t, "/Type", Config{}).(objects.Name); !ok || v != "Type" {
		t.Fatalf("got %#v", v)
	}
	if _, ok := parseOne(t, "null", Config{}).(objects.Null); !ok {
		t.Fatal("want null")
	}
	if v, ok := parseOne(t, "true", Config{}).(objects.Boolean); !ok || !bool(v) {
		t.Fatalf("got %#v", v)
	}
	if v, ok := parseOne(t, "(str)", Config{}).(objects.String); !ok || string(v.Data) != "str" {
		t.Fatalf("got %#v", v)
	}
	if v, ok := parseOne(t, "5 0 R", Config{}).(objects.Reference); !ok || v.Num != 5 {
		t.Fatalf("got %#v", v)
	}
}

func TestParseNestedStructures(t *testing.T) {
	obj := parseOne(t, "<< /Kids [ 1 0 R << /Deep (x) >> ] /Count 2 >>", Config{})
	dict, ok := obj.(*objects.Dict)
	if !ok {
		t.Fatalf("got %#v", obj)
	}
	kids, ok := dict.Array("Kids")
	if !ok || len(kids) != 2 {
		t.Fatalf("Kids = %#v", kids)
	}
	if _, ok := kids[0].(objects.Reference); !ok {
		t.Fatalf("kids[0] = %#v", kids[0])
	}
	inner, ok := kids[1].(*objects.Dict)
	if !ok {
		t.Fatalf("kids[1] = %#v", kids[1])
	}
	if s, _ := inner.StringBytes("Deep"); string(s) != "x" {
		t.Fatalf("Deep = %q", s)
	}
	if n, _ := dict.Int("Count"); n != 2 {
		t.Fatalf("Count = %d", n)
	}
}

func TestDuplicateDictKeyLastWins(t *testing.T) {
	dict := parseOne(t, "<< /A 1 /A 2 >>", Config{}).(*objects.Dict)
	if n, _ := dict.Int("A"); n != 2 {
		t.Fatalf("A = %d", n)
	}
}

func TestMalformedDictKeySkipped(t *testing.T) {
	lenient := recovery.NewLenient(nil)
	dict := parseOne(t, "<< /Good 1 (bogus) 99 /Other 2 >>", Config{Recovery: lenient}).(*objects.Dict)
	if n, _ := dict.Int("Good"); n != 1 {
		t.Fatalf("Good = %d", n)
	}
	if n, _ := dict.Int("Other"); n != 2 {
		t.Fatalf("Other = %d", n)
	}
	if dict.Len() != 2 {
		t.Fatalf("Len = %d", dict.Len())
	}
	if len(lenient.Diagnostics()) == 0 {
		t.Fatal("expected a diagnostic")
	}
}

func TestMalformedDictKeyStrict(t *testing.T) {
	sc := scanner.New(bytes.NewReader([]byte("<< 1 2 >>")), scanner.Config{})
	p := New(sc, Config{Recovery: recovery.NewStrict()})
	if _, err := p.ParseObject(); err == nil {
		t.Fatal("want error under strict policy")
	}
}

func TestDepthLimit(t *testing.T) {
	input := ""
	for i := 0; i < 20; i++ {
		input += "[ "
	}
	sc := scanner.New(bytes.NewReader([]byte(input)), scanner.Config{})
	p := New(sc, Config{MaxDepth: 10})
	if _, err := p.ParseObject(); err == nil {
		t.Fatal("want nesting error")
	}
}

func TestStreamWithDirectLength(t *testing.T) {
	obj := parseOne(t, "<< /Length 5 >> stream\nABCDE\nendstream", Config{})
	st, ok := obj.(*objects.Stream)
	if !ok {
		t.Fatalf("got %#v", obj)
	}
	if string(st.Raw) != "ABCDE" {
		t.Fatalf("Raw = %q", st.Raw)
	}
}

func TestStreamWithIndirectLength(t *testing.T) {
	resolve := func(ref objects.Reference) (objects.Object, error) {
		if ref.Num != 7 {
			t.Fatalf("unexpected ref %s", ref)
		}
		return objects.Integer(4), nil
	}
	obj := parseOne(t, "<< /Length 7 0 R >> stream\nWXYZ\nendstream", Config{Resolve: resolve})
	st := obj.(*objects.Stream)
	if string(st.Raw) != "WXYZ" {
		t.Fatalf("Raw = %q", st.Raw)
	}
}

func TestStreamNoResolverFallsBackToScan(t *testing.T) {
	lenient := recovery.NewLenient(nil)
	obj := parseOne(t, "<< /Length 7 0 R >> stream\nWXYZ\nendstream", Config{Recovery: lenient})
	st := obj.(*objects.Stream)
	if string(st.Raw) != "WXYZ" {
		t.Fatalf("Raw = %q", st.Raw)
	}
}

func TestParseIndirectObject(t *testing.T) {
	sc := scanner.New(bytes.NewReader([]byte("9 1 obj << /X 1 >> endobj")), scanner.Config{})
	p := New(sc, Config{})
	ind, err := p.ParseIndirectObject()
	if err != nil {
		t.Fatal(err)
	}
	if ind.Num != 9 || ind.Gen != 1 {
		t.Fatalf("got %d %d", ind.Num, ind.Gen)
	}
	if _, ok := ind.Body.(*objects.Dict); !ok {
		t.Fatalf("body = %#v", ind.Body)
	}
}

func TestParseIndirectObjectMissingEndobj(t *testing.T) {
	lenient := recovery.NewLenient(nil)
	sc := scanner.New(bytes.NewReader([]byte("3 0 obj 17 4 0 obj")), scanner.Config{Recovery: lenient})
	p := New(sc, Config{Recovery: lenient})
	ind, err := p.ParseIndirectObject()
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := ind.Body.(objects.Integer); !ok || v != 17 {
		t.Fatalf("body = %#v", ind.Body)
	}
	if len(lenient.Diagnostics()) == 0 {
		t.Fatal("expected a diagnostic for the missing endobj")
	}
}
