package scanner

import (
	"bytes"
	"strings"
	"testing"
)

func backScannerFor(data string) *BackScanner {
	return NewBackScanner(bytes.NewReader([]byte(data)), int64(len(data)))
}

func TestReadBlockBackwards(t *testing.T) {
	bs := backScannerFor("abcdefghij")
	block, err := bs.ReadBlockBackwards(4)
	if err != nil || string(block) != "ghij" {
		t.Fatalf("got %q, %v", block, err)
	}
	if bs.Pos() != 6 {
		t.Fatalf("Pos() = %d, want 6", bs.Pos())
	}
	block, err = bs.ReadBlockBackwards(6)
	if err != nil || string(block) != "abcdef" {
		t.Fatalf("got %q, %v", block, err)
	}
	if bs.Pos() != 0 {
		t.Fatalf("Pos() = %d, want 0", bs.Pos())
	}
	if _, err := bs.ReadBlockBackwards(1); err == nil {
		t.Fatal("reading past the start must fail")
	}
}

func TestReadPreviousLine(t *testing.T) {
	bs := backScannerFor("line1\nline2\r\nline3")
	line, err := bs.ReadPreviousLine()
	if err != nil || string(line) != "line3" {
		t.Fatalf("got %q, %v", line, err)
	}
	if bs.Pos() != 11 {
		t.Fatalf("Pos() = %d, want 11", bs.Pos())
	}
	line, err = bs.ReadPreviousLine()
	if err != nil || string(line) != "line2" {
		t.Fatalf("got %q, %v", line, err)
	}
	if bs.Pos() != 5 {
		t.Fatalf("Pos() = %d, want 5", bs.Pos())
	}
	line, err = bs.ReadPreviousLine()
	if err != nil || string(line) != "line1" {
		t.Fatalf("got %q, %v", line, err)
	}
	if bs.Pos() != 0 {
		t.Fatalf("Pos() = %d, want 0", bs.Pos())
	}
	if _, err := bs.ReadPreviousLine(); err == nil {
		t.Fatal("reading a line at the start must fail")
	}
}

func TestReadPreviousLineTrailingNewline(t *testing.T) {
	bs := backScannerFor("abc\n")
	line, err := bs.ReadPreviousLine()
	if err != nil || string(line) != "" {
		t.Fatalf("got %q, %v", line, err)
	}
	if bs.Pos() != 3 {
		t.Fatalf("Pos() = %d, want 3", bs.Pos())
	}
	line, err = bs.ReadPreviousLine()
	if err != nil || string(line) != "abc" {
		t.Fatalf("got %q, %v", line, err)
	}
}

func TestReadPreviousLineAcrossBlocks(t *testing.T) {
	bs := backScannerFor("abcdef\nxy")
	bs.SetBlockSize(2)
	line, err := bs.ReadPreviousLine()
	if err != nil || string(line) != "xy" {
		t.Fatalf("got %q, %v", line, err)
	}
	if bs.Pos() != 6 {
		t.Fatalf("Pos() = %d, want 6", bs.Pos())
	}
	line, err = bs.ReadPreviousLine()
	if err != nil || string(line) != "abcdef" {
		t.Fatalf("got %q, %v", line, err)
	}
	if bs.Pos() != 0 {
		t.Fatalf("Pos() = %d, want 0", bs.Pos())
	}
}

func TestReadPreviousLineLongRuns(t *testing.T) {
	// Newline and non-newline runs several blocks long must not confuse
	// the window-crossing walk.
	cases := []struct {
		data    string
		line    string
		wantPos int64
	}{
		{"abc" + strings.Repeat("\n", 40) + "d", "d", 3},
		{"abc\n" + strings.Repeat("d", 40), strings.Repeat("d", 40), 3},
		{"abcxyz" + strings.Repeat("\n", 40) + strings.Repeat("d", 40), strings.Repeat("d", 40), 6},
	}
	for i, c := range cases {
		bs := backScannerFor(c.data)
		bs.SetBlockSize(8)
		line, err := bs.ReadPreviousLine()
		if err != nil || string(line) != c.line {
			t.Fatalf("case %d: got %q, %v", i, line, err)
		}
		if bs.Pos() != c.wantPos {
			t.Fatalf("case %d: Pos() = %d, want %d", i, bs.Pos(), c.wantPos)
		}
	}
}

func TestReadPreviousLineNoNewline(t *testing.T) {
	bs := backScannerFor("single")
	line, err := bs.ReadPreviousLine()
	if err != nil || string(line) != "single" {
		t.Fatalf("got %q, %v", line, err)
	}
	if bs.Pos() != 0 {
		t.Fatalf("Pos() = %d, want 0", bs.Pos())
	}
}
