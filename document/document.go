// Package document is the top-level entry point: it opens a file, loads
// the cross-reference data (repairing it when broken), authenticates
// against the encryption dictionary, and resolves indirect references with
// caching.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"pdflib/filters"
	"pdflib/objects"
	"pdflib/observability"
	"pdflib/parser"
	"pdflib/recovery"
	"pdflib/scanner"
	"pdflib/security"
	"pdflib/xref"
)

// ErrNoHeader means no %PDF-x.y marker exists anywhere in the file.
var ErrNoHeader = errors.New("no PDF header found")

// Config controls how a document is opened. The zero value is usable:
// lenient recovery, no password, default limits.
type Config struct {
	Password     string
	Logger       observability.Logger
	Recovery     recovery.Strategy
	WindowSize   int64
	MaxDepth     int
	MaxXRefDepth int
	FilterLimits filters.Limits
}

type Document struct {
	reader   io.ReaderAt
	size     int64
	cfg      Config
	logger   observability.Logger
	strategy recovery.Strategy
	lenient  *recovery.Lenient
	pipeline *filters.Pipeline
	table    *xref.Table
	version  string
	repaired bool

	sec        security.Handler
	encryptRef *objects.Reference

	mu      sync.Mutex
	cache   map[objects.Reference]objects.Object
	loading map[objects.Reference]bool
	objstms map[uint32]*objStm
}

// Open reads the document structure from r. The object bodies themselves
// are parsed lazily on Resolve.
func Open(r io.ReaderAt, size int64, cfg Config) (*Document, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger{}
	}
	strategy := cfg.Recovery
	var lenient *recovery.Lenient
	if strategy == nil {
		lenient = recovery.NewLenient(logger)
		strategy = lenient
	} else if l, ok := strategy.(*recovery.Lenient); ok {
		lenient = l
	}
	d := &Document{
		reader:   r,
		size:     size,
		cfg:      cfg,
		logger:   logger,
		strategy: strategy,
		lenient:  lenient,
		pipeline: filters.NewPipeline(cfg.FilterLimits, strategy),
		cache:    make(map[objects.Reference]objects.Object),
		loading:  make(map[objects.Reference]bool),
		objstms:  make(map[uint32]*objStm),
	}

	raw := make([]byte, size)
	if _, err := r.ReadAt(raw, 0); err != nil && err != io.EOF {
		return nil, err
	}
	version, ok := maxHeaderVersion(raw)
	if !ok {
		return nil, ErrNoHeader
	}
	d.version = version

	resolver := xref.NewResolver(r, size, xref.Config{
		MaxXRefDepth: cfg.MaxXRefDepth,
		WindowSize:   cfg.WindowSize,
		Recovery:     strategy,
		Pipeline:     d.pipeline,
	})
	table, err := resolver.Load()
	if err != nil {
		if ferr := d.fault(fmt.Errorf("cross-reference load failed, rebuilding: %w", err), 0); ferr != nil {
			return nil, ferr
		}
		table, err = xref.Repair(r, size, strategy, logger)
		if err != nil {
			return nil, fmt.Errorf("cross-reference data unusable: %w", err)
		}
		d.repaired = true
	}
	d.table = table

	if err := d.setupEncryption(); err != nil {
		return nil, err
	}
	return d, nil
}

// OpenBytes opens an in-memory document.
func OpenBytes(data []byte, cfg Config) (*Document, error) {
	return Open(bytes.NewReader(data), int64(len(data)), cfg)
}

func (d *Document) setupEncryption() error {
	encVal, ok := d.table.Trailer().Get("Encrypt")
	if !ok {
		d.sec = security.Noop{}
		return nil
	}
	if ref, isRef := encVal.(objects.Reference); isRef {
		d.encryptRef = &ref
		resolved, err := d.Resolve(ref)
		if err != nil {
			return err
		}
		encVal = resolved
	}
	encDict, ok := encVal.(*objects.Dict)
	if !ok {
		return errors.New("trailer /Encrypt is not a dictionary")
	}
	var fileID []byte
	if ids, ok := d.table.Trailer().Array("ID"); ok && len(ids) > 0 {
		if s, ok := ids[0].(objects.String); ok {
			fileID = s.Data
		}
	}
	sec, err := security.NewHandler(encDict, fileID, d.cfg.Password)
	if err != nil {
		return err
	}
	d.sec = sec
	return nil
}

func (d *Document) Version() string        { return d.version }
func (d *Document) Trailer() *objects.Dict { return d.table.Trailer() }
func (d *Document) XRef() *xref.Table      { return d.table }
func (d *Document) Repaired() bool         { return d.repaired }

func (d *Document) IsEncrypted() bool {
	_, noop := d.sec.(security.Noop)
	return !noop
}

func (d *Document) Permissions() security.Permissions { return d.sec.Permissions() }

// Diagnostics returns the defects recovered from so far. Empty when a
// custom non-lenient strategy is in use.
func (d *Document) Diagnostics() []recovery.Diagnostic {
	if d.lenient == nil {
		return nil
	}
	return d.lenient.Diagnostics()
}

// Catalog resolves the document catalog from the trailer's /Root.
func (d *Document) Catalog() (*objects.Dict, error) {
	rootVal, ok := d.table.Trailer().Get("Root")
	if !ok {
		return nil, errors.New("trailer has no /Root")
	}
	resolved, err := d.ResolveValue(rootVal)
	if err != nil {
		return nil, err
	}
	dict, ok := resolved.(*objects.Dict)
	if !ok {
		return nil, errors.New("document catalog is not a dictionary")
	}
	return dict, nil
}

// Resolve returns the object a reference points at. Missing objects, free
// entries, and generation mismatches degrade to Null under a lenient
// policy. Results are cached; resolving the same reference twice returns
// the same value.
func (d *Document) Resolve(ref objects.Reference) (objects.Object, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolve(ref)
}

// ResolveValue dereferences v if it is a reference, else returns it as is.
func (d *Document) ResolveValue(v objects.Object) (objects.Object, error) {
	if ref, ok := v.(objects.Reference); ok {
		return d.Resolve(ref)
	}
	return v, nil
}

// resolve must run with mu held. It recurses for indirect /Length values
// and object-stream containers; the loading set breaks reference cycles.
func (d *Document) resolve(ref objects.Reference) (objects.Object, error) {
	if obj, ok := d.cache[ref]; ok {
		return obj, nil
	}
	if d.loading[ref] {
		if err := d.fault(fmt.Errorf("reference cycle through %s", ref), 0); err != nil {
			return nil, err
		}
		return objects.Null{}, nil
	}
	d.loading[ref] = true
	defer delete(d.loading, ref)

	entry, ok := d.table.Lookup(ref.Num)
	if !ok {
		if err := d.fault(fmt.Errorf("object %s not in cross-reference table", ref), 0); err != nil {
			return nil, err
		}
		return d.cacheResult(ref, objects.Null{}), nil
	}
	switch entry.Kind {
	case xref.EntryFree:
		if err := d.fault(fmt.Errorf("object %s is free", ref), 0); err != nil {
			return nil, err
		}
		return d.cacheResult(ref, objects.Null{}), nil
	case xref.EntryOffset:
		return d.resolveAt(ref, entry)
	case xref.EntryInStream:
		return d.resolveInStream(ref, entry)
	}
	return nil, fmt.Errorf("unknown entry kind for %s", ref)
}

func (d *Document) resolveAt(ref objects.Reference, entry xref.Entry) (objects.Object, error) {
	if entry.Gen != int(ref.Gen) {
		if err := d.fault(fmt.Errorf("object %s has generation %d in table", ref, entry.Gen), entry.Offset); err != nil {
			return nil, err
		}
		return d.cacheResult(ref, objects.Null{}), nil
	}
	sc := scanner.New(d.reader, scanner.Config{WindowSize: d.cfg.WindowSize, Recovery: d.strategy})
	if err := sc.Seek(entry.Offset); err != nil {
		return nil, err
	}
	p := parser.New(sc, parser.Config{
		MaxDepth: d.cfg.MaxDepth,
		Recovery: d.strategy,
		Resolve:  d.resolve,
	})
	ind, err := p.ParseIndirectObject()
	if err != nil {
		if ferr := d.fault(fmt.Errorf("parsing object %s: %w", ref, err), entry.Offset); ferr != nil {
			return nil, ferr
		}
		return d.cacheResult(ref, objects.Null{}), nil
	}
	if uint32(ind.Num) != ref.Num || uint16(ind.Gen) != ref.Gen {
		if err := d.fault(fmt.Errorf("offset %d holds object %d %d, wanted %s", entry.Offset, ind.Num, ind.Gen, ref), entry.Offset); err != nil {
			return nil, err
		}
	}
	body, err := d.decryptObject(ind.Body, ref)
	if err != nil {
		return nil, err
	}
	return d.cacheResult(ref, body), nil
}

func (d *Document) cacheResult(ref objects.Reference, obj objects.Object) objects.Object {
	d.cache[ref] = obj
	return obj
}

// decryptObject decrypts strings and stream bodies. Containers are
// rewritten in place; a bare string body is replaced. The encryption
// dictionary's own strings stay encrypted, as do metadata streams when
// /EncryptMetadata is false.
func (d *Document) decryptObject(obj objects.Object, ref objects.Reference) (objects.Object, error) {
	if d.sec == nil {
		return obj, nil
	}
	if _, noop := d.sec.(security.Noop); noop {
		return obj, nil
	}
	if d.encryptRef != nil && *d.encryptRef == ref {
		return obj, nil
	}
	if s, ok := obj.(objects.String); ok {
		out, err := d.sec.DecryptString(s.Data, ref)
		if err != nil {
			return nil, err
		}
		return objects.String{Data: out, Hex: s.Hex}, nil
	}
	if err := d.decryptValue(obj, ref); err != nil {
		return nil, err
	}
	return obj, nil
}

func (d *Document) decryptValue(obj objects.Object, ref objects.Reference) error {
	switch v := obj.(type) {
	case objects.Array:
		for i, el := range v {
			if s, ok := el.(objects.String); ok {
				out, err := d.sec.DecryptString(s.Data, ref)
				if err != nil {
					return err
				}
				v[i] = objects.String{Data: out, Hex: s.Hex}
			} else if err := d.decryptValue(el, ref); err != nil {
				return err
			}
		}
	case *objects.Dict:
		for _, k := range v.Keys() {
			el, _ := v.Get(k)
			if s, ok := el.(objects.String); ok {
				out, err := d.sec.DecryptString(s.Data, ref)
				if err != nil {
					return err
				}
				v.Set(k, objects.String{Data: out, Hex: s.Hex})
			} else if err := d.decryptValue(el, ref); err != nil {
				return err
			}
		}
	case *objects.Stream:
		if typ, _ := v.Dict.Name("Type"); typ == "Metadata" && !d.sec.EncryptMetadata() {
			return d.decryptValue(v.Dict, ref)
		}
		out, err := d.sec.DecryptStream(v.Raw, ref)
		if err != nil {
			return err
		}
		v.Raw = out
		return d.decryptValue(v.Dict, ref)
	}
	return nil
}

// DecodedStreamBytes runs the filter pipeline on a stream, caching the
// result on the stream itself so each body is decoded at most once.
func (d *Document) DecodedStreamBytes(ctx context.Context, st *objects.Stream) ([]byte, error) {
	if data, ok := st.Decoded(); ok {
		return data, nil
	}
	data, err := d.pipeline.Decode(ctx, st, func(o objects.Object) objects.Object {
		resolved, err := d.ResolveValue(o)
		if err != nil {
			return o
		}
		return resolved
	})
	if err != nil {
		return nil, err
	}
	st.SetDecoded(data)
	d.logger.Debug("decoded stream",
		observability.String("metric", observability.MetricDecodedBytes),
		observability.Int("bytes", len(data)),
	)
	return data, nil
}

func (d *Document) fault(err error, off int64) error {
	if d.strategy.OnError(err, recovery.Location{ByteOffset: off, Component: "document"}) == recovery.ActionFail {
		return err
	}
	return nil
}
