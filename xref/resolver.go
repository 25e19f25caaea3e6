package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"pdflib/filters"
	"pdflib/objects"
	"pdflib/parser"
	"pdflib/recovery"
	"pdflib/scanner"
)

const defaultMaxXRefDepth = 100

// ErrNoStartXref means the trailer dance failed: no startxref keyword was
// found near the end of the file. Callers typically fall back to Repair.
var ErrNoStartXref = errors.New("startxref not found")

type Config struct {
	MaxXRefDepth int
	WindowSize   int64
	Recovery     recovery.Strategy
	Pipeline     *filters.Pipeline
}

// Resolver loads the cross-reference data of a file by following the
// startxref pointer and the /Prev chain.
type Resolver struct {
	reader io.ReaderAt
	size   int64
	cfg    Config
}

func NewResolver(r io.ReaderAt, size int64, cfg Config) *Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = defaultMaxXRefDepth
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = filters.NewPipeline(filters.Limits{}, cfg.Recovery)
	}
	return &Resolver{reader: r, size: size, cfg: cfg}
}

// Load builds the merged table. Sections are visited newest-first so the
// first definition of each object number wins.
func (r *Resolver) Load() (*Table, error) {
	start, err := r.findStartXref()
	if err != nil {
		return nil, err
	}
	table := NewTable()
	visited := make(map[int64]bool)
	offsets := []int64{start}
	depth := 0
	for len(offsets) > 0 {
		off := offsets[0]
		offsets = offsets[1:]
		if visited[off] {
			if err := r.fault(fmt.Errorf("cross-reference chain revisits offset %d", off), off); err != nil {
				return nil, err
			}
			continue
		}
		if depth++; depth > r.cfg.MaxXRefDepth {
			if err := r.fault(errors.New("cross-reference chain too deep"), off); err != nil {
				return nil, err
			}
			break
		}
		visited[off] = true
		prevs, err := r.readSection(off, table, visited)
		if err != nil {
			if ferr := r.fault(err, off); ferr != nil {
				return nil, ferr
			}
			continue
		}
		offsets = append(offsets, prevs...)
	}
	if table.Len() == 0 {
		return nil, errors.New("no usable cross-reference section")
	}
	return table, nil
}

// findStartXref walks lines backwards from the end of the file. The layout
// is startxref, the byte offset on its own line, then %%EOF.
func (r *Resolver) findStartXref() (int64, error) {
	bs := scanner.NewBackScanner(r.reader, r.size)
	var after []byte
	for i := 0; i < 100 && bs.Pos() > 0; i++ {
		line, err := bs.ReadPreviousLine()
		if err != nil {
			return 0, ErrNoStartXref
		}
		trimmed := bytes.TrimSpace(line)
		if bytes.Equal(trimmed, []byte("startxref")) {
			off, perr := strconv.ParseInt(string(bytes.TrimSpace(after)), 10, 64)
			if perr != nil || off < 0 || off >= r.size {
				return 0, fmt.Errorf("startxref offset %q out of range", after)
			}
			return off, nil
		}
		after = trimmed
	}
	return 0, ErrNoStartXref
}

// readSection parses one cross-reference section and returns the offsets
// of the sections it chains to.
func (r *Resolver) readSection(off int64, table *Table, visited map[int64]bool) ([]int64, error) {
	sc := scanner.New(r.reader, scanner.Config{WindowSize: r.cfg.WindowSize, Recovery: r.cfg.Recovery})
	if err := sc.Seek(off); err != nil {
		return nil, err
	}
	tok, err := sc.Next()
	if err != nil {
		return nil, err
	}
	if tok.Type == scanner.TokenKeyword && tok.Str == "xref" {
		return r.readClassic(sc, table, visited)
	}
	// Not a table: expect an indirect object holding a cross-reference
	// stream.
	if err := sc.Seek(off); err != nil {
		return nil, err
	}
	p := parser.New(sc, parser.Config{Recovery: r.cfg.Recovery})
	ind, err := p.ParseIndirectObject()
	if err != nil {
		return nil, fmt.Errorf("offset %d holds neither xref table nor stream: %w", off, err)
	}
	st, ok := ind.Body.(*objects.Stream)
	if !ok {
		return nil, fmt.Errorf("object %d %d at offset %d is not a stream", ind.Num, ind.Gen, off)
	}
	return r.readXRefStream(st, table)
}

func (r *Resolver) readClassic(sc *scanner.Scanner, table *Table, visited map[int64]bool) ([]int64, error) {
	type pending struct {
		num uint32
		e   Entry
	}
	var entries []pending
	for {
		tok, err := sc.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			break
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			return nil, fmt.Errorf("malformed xref subsection header at offset %d", tok.Pos)
		}
		start := tok.Int
		tok, err = sc.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			return nil, fmt.Errorf("malformed xref subsection header at offset %d", tok.Pos)
		}
		count := tok.Int
		for i := int64(0); i < count; i++ {
			f1, err := sc.Next()
			if err != nil {
				return nil, err
			}
			f2, err := sc.Next()
			if err != nil {
				return nil, err
			}
			kind, err := sc.Next()
			if err != nil {
				return nil, err
			}
			if f1.Type != scanner.TokenNumber || f2.Type != scanner.TokenNumber || kind.Type != scanner.TokenKeyword {
				return nil, fmt.Errorf("malformed xref record at offset %d", f1.Pos)
			}
			num := uint32(start + i)
			switch kind.Str {
			case "n":
				entries = append(entries, pending{num, Entry{Kind: EntryOffset, Offset: f1.Int, Gen: int(f2.Int)}})
			case "f":
				entries = append(entries, pending{num, Entry{Kind: EntryFree, Gen: int(f2.Int)}})
			default:
				return nil, fmt.Errorf("malformed xref record type %q at offset %d", kind.Str, kind.Pos)
			}
		}
	}
	p := parser.New(sc, parser.Config{Recovery: r.cfg.Recovery})
	obj, err := p.ParseObject()
	if err != nil {
		return nil, fmt.Errorf("parsing trailer: %w", err)
	}
	trailer, ok := obj.(*objects.Dict)
	if !ok {
		return nil, errors.New("trailer is not a dictionary")
	}
	var prevs []int64
	// Hybrid files carry a cross-reference stream alongside the table; its
	// entries take precedence over the table's for this section.
	if stm, ok := trailer.Int("XRefStm"); ok && !visited[stm] {
		visited[stm] = true
		if morePrevs, err := r.readSection(stm, table, visited); err != nil {
			if ferr := r.fault(fmt.Errorf("hybrid xref stream: %w", err), stm); ferr != nil {
				return nil, ferr
			}
		} else {
			prevs = append(prevs, morePrevs...)
		}
	}
	for _, pe := range entries {
		table.add(pe.num, pe.e)
	}
	table.mergeTrailer(trailer)
	if prev, ok := trailer.Int("Prev"); ok {
		prevs = append(prevs, prev)
	}
	return prevs, nil
}

func (r *Resolver) readXRefStream(st *objects.Stream, table *Table) ([]int64, error) {
	dict := st.Dict
	if typ, _ := dict.Name("Type"); typ != "XRef" {
		if err := r.fault(fmt.Errorf("cross-reference stream has /Type %q", typ), 0); err != nil {
			return nil, err
		}
	}
	data, err := r.cfg.Pipeline.Decode(context.Background(), st, nil)
	if err != nil {
		return nil, fmt.Errorf("decoding cross-reference stream: %w", err)
	}
	wArr, ok := dict.Array("W")
	if !ok || len(wArr) < 3 {
		return nil, errors.New("cross-reference stream missing /W")
	}
	var w [3]int
	for i := 0; i < 3; i++ {
		n, ok := objects.AsInt64(wArr[i])
		if !ok || n < 0 || n > 8 {
			return nil, errors.New("cross-reference stream has invalid /W")
		}
		w[i] = int(n)
	}
	size, _ := dict.Int("Size")
	index := []int64{0, size}
	if idxArr, ok := dict.Array("Index"); ok && len(idxArr)%2 == 0 {
		index = index[:0]
		for _, el := range idxArr {
			n, ok := objects.AsInt64(el)
			if !ok {
				return nil, errors.New("cross-reference stream has invalid /Index")
			}
			index = append(index, n)
		}
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return nil, errors.New("cross-reference stream has zero-width rows")
	}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for j := int64(0); j < count; j++ {
			if pos+rowLen > len(data) {
				if err := r.fault(errors.New("cross-reference stream data truncated"), 0); err != nil {
					return nil, err
				}
				break
			}
			f0 := int64(1)
			if w[0] > 0 {
				f0 = beInt(data[pos : pos+w[0]])
			}
			f1 := beInt(data[pos+w[0] : pos+w[0]+w[1]])
			f2 := beInt(data[pos+w[0]+w[1] : pos+rowLen])
			pos += rowLen
			num := uint32(start + j)
			switch f0 {
			case 0:
				table.add(num, Entry{Kind: EntryFree, Gen: int(f2)})
			case 1:
				table.add(num, Entry{Kind: EntryOffset, Offset: f1, Gen: int(f2)})
			case 2:
				table.add(num, Entry{Kind: EntryInStream, StreamNum: uint32(f1), StreamIdx: int(f2)})
			default:
				// Unknown entry types are reserved; treat as free.
			}
		}
	}
	table.mergeTrailer(dict)
	if prev, ok := dict.Int("Prev"); ok {
		return []int64{prev}, nil
	}
	return nil, nil
}

func beInt(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func (r *Resolver) fault(err error, off int64) error {
	if r.cfg.Recovery == nil {
		return err
	}
	if r.cfg.Recovery.OnError(err, recovery.Location{ByteOffset: off, Component: "xref"}) == recovery.ActionFail {
		return err
	}
	return nil
}
