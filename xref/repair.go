package xref

import (
	"errors"
	"io"
	"regexp"
	"strconv"

	"pdflib/objects"
	"pdflib/observability"
	"pdflib/parser"
	"pdflib/recovery"
	"pdflib/scanner"
)

var (
	objMarker     = regexp.MustCompile(`(?:^|[\r\n])[ \t]*(\d+)[ \t]+(\d+)[ \t]+obj\b`)
	trailerMarker = regexp.MustCompile(`trailer`)
	catalogMarker = regexp.MustCompile(`/Type[ \t\r\n]*/Catalog`)
)

// Repair rebuilds a cross-reference table by scanning the entire file for
// object markers. When the same object number appears more than once the
// occurrence at the highest offset wins, matching the shadowing rule of
// incremental updates. Used when the real table is missing or corrupt.
func Repair(r io.ReaderAt, size int64, strategy recovery.Strategy, logger observability.Logger) (*Table, error) {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	data := make([]byte, size)
	if _, err := r.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, err
	}
	table := NewTable()
	matches := objMarker.FindAllSubmatchIndex(data, -1)
	for _, m := range matches {
		num, err1 := strconv.ParseUint(string(data[m[2]:m[3]]), 10, 32)
		gen, err2 := strconv.ParseUint(string(data[m[4]:m[5]]), 10, 16)
		if err1 != nil || err2 != nil {
			continue
		}
		off := int64(m[2])
		table.set(uint32(num), Entry{Kind: EntryOffset, Offset: off, Gen: int(gen)})
	}
	if table.Len() == 0 {
		return nil, errors.New("repair scan found no objects")
	}
	logger.Info("rebuilt cross-reference table by scanning",
		observability.String("metric", observability.MetricRepairRuns),
		observability.Int("objects", table.Len()),
	)
	if trailer := recoverTrailer(r, data, strategy); trailer != nil {
		table.mergeTrailer(trailer)
	}
	if _, ok := table.trailer.Get("Root"); !ok {
		if root, ok := findCatalog(data, matches); ok {
			table.trailer.Set("Root", root)
		}
	}
	if _, ok := table.trailer.Get("Size"); !ok {
		var max uint32
		for _, n := range table.Objects() {
			if n > max {
				max = n
			}
		}
		table.trailer.Set("Size", objects.Integer(int64(max)+1))
	}
	return table, nil
}

// recoverTrailer parses the dictionary after the last trailer keyword that
// yields one.
func recoverTrailer(r io.ReaderAt, data []byte, strategy recovery.Strategy) *objects.Dict {
	locs := trailerMarker.FindAllIndex(data, -1)
	for i := len(locs) - 1; i >= 0; i-- {
		sc := scanner.New(r, scanner.Config{Recovery: strategy})
		if err := sc.Seek(int64(locs[i][1])); err != nil {
			continue
		}
		p := parser.New(sc, parser.Config{Recovery: strategy})
		obj, err := p.ParseObject()
		if err != nil {
			continue
		}
		if d, ok := obj.(*objects.Dict); ok {
			return d
		}
	}
	return nil
}

// findCatalog locates a /Type /Catalog occurrence and returns a reference
// to the enclosing object, used to synthesize /Root when no trailer
// survived.
func findCatalog(data []byte, objMatches [][]int) (objects.Reference, bool) {
	loc := catalogMarker.FindIndex(data)
	if loc == nil {
		return objects.Reference{}, false
	}
	var best []int
	for _, m := range objMatches {
		if m[2] < loc[0] {
			best = m
		} else {
			break
		}
	}
	if best == nil {
		return objects.Reference{}, false
	}
	num, err1 := strconv.ParseUint(string(data[best[2]:best[3]]), 10, 32)
	gen, err2 := strconv.ParseUint(string(data[best[4]:best[5]]), 10, 16)
	if err1 != nil || err2 != nil {
		return objects.Reference{}, false
	}
	return objects.Reference{Num: uint32(num), Gen: uint16(gen)}, true
}
