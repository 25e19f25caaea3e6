package pdflib

import "testing"

func TestHumanReadableBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 Byte"},
		{123, "123 Byte"},
		{999, "999 Byte"},
		{1234, "1.2 kB"},
		{123456, "123.5 kB"},
		{1234567, "1.2 MB"},
		{1234567890, "1.2 GB"},
		{1234567890000, "1234.6 GB"},
	}
	for _, c := range cases {
		if got := HumanReadableBytes(c.in); got != c.want {
			t.Errorf("HumanReadableBytes(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFileString(t *testing.T) {
	f := File{Name: "image.png", Data: make([]byte, 1234)}
	want := "File(name=image.png, data: 1.2 kB)"
	if got := f.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	empty := File{Name: "empty.txt"}
	if got := empty.String(); got != "File(name=empty.txt, data: 0 Byte)" {
		t.Errorf("got %q", got)
	}
}
