package document

import (
	"bytes"
	"context"
	"fmt"

	"pdflib/objects"
	"pdflib/parser"
	"pdflib/scanner"
	"pdflib/xref"
)

// objStm is a parsed object-stream container: the decoded payload plus the
// number/offset pairs from its header.
type objStm struct {
	nums  []uint32
	offs  []int64
	first int64
	data  []byte
}

func (d *Document) resolveInStream(ref objects.Reference, entry xref.Entry) (objects.Object, error) {
	if ref.Gen != 0 {
		if err := d.fault(fmt.Errorf("compressed object %s has nonzero generation", ref), 0); err != nil {
			return nil, err
		}
		return d.cacheResult(ref, objects.Null{}), nil
	}
	stm, err := d.loadObjStm(entry.StreamNum)
	if err != nil {
		if ferr := d.fault(fmt.Errorf("object stream %d: %w", entry.StreamNum, err), 0); ferr != nil {
			return nil, ferr
		}
		return d.cacheResult(ref, objects.Null{}), nil
	}
	idx := entry.StreamIdx
	if idx < 0 || idx >= len(stm.nums) || stm.nums[idx] != ref.Num {
		// Index does not line up with the header; fall back to searching.
		idx = -1
		for i, n := range stm.nums {
			if n == ref.Num {
				idx = i
				break
			}
		}
		if idx < 0 {
			if err := d.fault(fmt.Errorf("object %s not in object stream %d", ref, entry.StreamNum), 0); err != nil {
				return nil, err
			}
			return d.cacheResult(ref, objects.Null{}), nil
		}
	}
	sc := scanner.New(bytes.NewReader(stm.data), scanner.Config{Recovery: d.strategy})
	if err := sc.Seek(stm.first + stm.offs[idx]); err != nil {
		return nil, err
	}
	p := parser.New(sc, parser.Config{MaxDepth: d.cfg.MaxDepth, Recovery: d.strategy})
	obj, err := p.ParseObject()
	if err != nil {
		if ferr := d.fault(fmt.Errorf("parsing compressed object %s: %w", ref, err), 0); ferr != nil {
			return nil, ferr
		}
		return d.cacheResult(ref, objects.Null{}), nil
	}
	// Strings inside a container are already plaintext: the container body
	// was decrypted as a whole when it was resolved.
	return d.cacheResult(ref, obj), nil
}

// loadObjStm resolves, decodes, and indexes an object-stream container.
// Runs with mu held; the parse result is cached per container.
func (d *Document) loadObjStm(num uint32) (*objStm, error) {
	if stm, ok := d.objstms[num]; ok {
		return stm, nil
	}
	containerRef := objects.Reference{Num: num, Gen: 0}
	container, err := d.resolve(containerRef)
	if err != nil {
		return nil, err
	}
	st, ok := container.(*objects.Stream)
	if !ok {
		return nil, fmt.Errorf("container %d is not a stream", num)
	}
	if typ, _ := st.Dict.Name("Type"); typ != "ObjStm" {
		if err := d.fault(fmt.Errorf("container %d has /Type %q", num, typ), 0); err != nil {
			return nil, err
		}
	}
	n, ok := st.Dict.Int("N")
	if !ok || n < 0 {
		return nil, fmt.Errorf("container %d missing /N", num)
	}
	first, ok := st.Dict.Int("First")
	if !ok || first < 0 {
		return nil, fmt.Errorf("container %d missing /First", num)
	}
	data, err := d.pipeline.Decode(context.Background(), st, func(o objects.Object) objects.Object {
		if resolved, rerr := d.resolveIndirect(o); rerr == nil {
			return resolved
		}
		return o
	})
	if err != nil {
		return nil, err
	}
	stm := &objStm{first: first, data: data}
	sc := scanner.New(bytes.NewReader(data), scanner.Config{Recovery: d.strategy})
	for i := int64(0); i < n; i++ {
		numTok, err := sc.Next()
		if err != nil {
			return nil, fmt.Errorf("container %d header truncated", num)
		}
		offTok, err := sc.Next()
		if err != nil {
			return nil, fmt.Errorf("container %d header truncated", num)
		}
		if numTok.Type != scanner.TokenNumber || !numTok.IsInt ||
			offTok.Type != scanner.TokenNumber || !offTok.IsInt {
			return nil, fmt.Errorf("container %d header malformed", num)
		}
		stm.nums = append(stm.nums, uint32(numTok.Int))
		stm.offs = append(stm.offs, offTok.Int)
	}
	d.objstms[num] = stm
	return stm, nil
}

// resolveIndirect is the mu-held twin of ResolveValue.
func (d *Document) resolveIndirect(v objects.Object) (objects.Object, error) {
	if ref, ok := v.(objects.Reference); ok {
		return d.resolve(ref)
	}
	return v, nil
}
