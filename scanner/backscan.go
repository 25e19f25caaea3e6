package scanner

import (
	"errors"
	"io"
)

const defaultBackBlock = 8192

// BackScanner reads a ReaderAt backwards from a cursor. It exists for the
// trailer dance at the end of a file: locating startxref means walking
// lines from the tail toward the head.
type BackScanner struct {
	reader io.ReaderAt
	pos    int64
	block  int64
}

// NewBackScanner positions the cursor at size, i.e. just past the last byte.
func NewBackScanner(r io.ReaderAt, size int64) *BackScanner {
	return &BackScanner{reader: r, pos: size, block: defaultBackBlock}
}

// SetBlockSize overrides the read granularity. Small values force lines to
// span multiple reads, which tests rely on.
func (b *BackScanner) SetBlockSize(n int64) {
	if n > 0 {
		b.block = n
	}
}

func (b *BackScanner) Pos() int64 { return b.pos }

func (b *BackScanner) Seek(pos int64) error {
	if pos < 0 {
		return errors.New("seek before start")
	}
	b.pos = pos
	return nil
}

// ReadBlockBackwards moves the cursor back by n and returns the n bytes in
// file order. Asking for more bytes than remain before the cursor is an
// error.
func (b *BackScanner) ReadBlockBackwards(n int64) ([]byte, error) {
	if n > b.pos {
		return nil, errors.New("read past start of file")
	}
	b.pos -= n
	buf := make([]byte, n)
	if _, err := b.reader.ReadAt(buf, b.pos); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

// ReadPreviousLine returns the content of the line ending at the cursor,
// without its trailing newline bytes, and leaves the cursor at the start of
// the CR/LF run that precedes that line. Calling it with the cursor at the
// start of the file is an error.
func (b *BackScanner) ReadPreviousLine() ([]byte, error) {
	if b.pos == 0 {
		return nil, errors.New("read past start of file")
	}
	var chunks [][]byte
	foundEOL := false
	for {
		toRead := b.block
		if b.pos < toRead {
			toRead = b.pos
		}
		if toRead == 0 {
			break
		}
		block, err := b.ReadBlockBackwards(toRead)
		if err != nil {
			return nil, err
		}
		idx := len(block) - 1
		if !foundEOL {
			for idx >= 0 && block[idx] != '\r' && block[idx] != '\n' {
				idx--
			}
			if idx >= 0 {
				foundEOL = true
			}
		}
		if foundEOL {
			chunks = append(chunks, block[idx+1:])
			for idx >= 0 && (block[idx] == '\r' || block[idx] == '\n') {
				idx--
			}
		} else {
			chunks = append(chunks, block)
		}
		if idx >= 0 {
			// Cursor lands just past the last byte of the previous line.
			b.pos += int64(idx) + 1
			break
		}
	}
	var n int
	for _, c := range chunks {
		n += len(c)
	}
	out := make([]byte, 0, n)
	for i := len(chunks) - 1; i >= 0; i-- {
		out = append(out, chunks[i]...)
	}
	return out, nil
}
