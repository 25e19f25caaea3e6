// Package objects defines the low-level PDF object model: the tagged union
// of values the object parser produces and every other layer consumes.
// References are pure identity tokens; resolving them is a document
// operation, not a property of the value.
package objects

import (
	"fmt"
	"sort"
)

// Kind discriminates the members of the Object union.
type Kind int

const (
	KindNull Kind = iota
	KindBoolean
	KindInteger
	KindReal
	KindString
	KindName
	KindArray
	KindDict
	KindStream
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindString:
		return "string"
	case KindName:
		return "name"
	case KindArray:
		return "array"
	case KindDict:
		return "dict"
	case KindStream:
		return "stream"
	case KindReference:
		return "reference"
	}
	return "unknown"
}

// Object is implemented by every PDF value.
type Object interface {
	Kind() Kind
}

// Null is the PDF null object. Malformed constructs degrade to Null.
type Null struct{}

func (Null) Kind() Kind { return KindNull }

// Boolean is a PDF true/false value.
type Boolean bool

func (Boolean) Kind() Kind { return KindBoolean }

// Integer is a PDF integer. PDF distinguishes integers from reals only by
// the presence of a decimal point.
type Integer int64

func (Integer) Kind() Kind { return KindInteger }

// Real is a PDF real number.
type Real float64

func (Real) Kind() Kind { return KindReal }

// Name is a /Foo-style identifier with #xx escapes already decoded.
type Name string

func (Name) Kind() Kind { return KindName }

// String is a PDF string. Literal and hex strings both normalize to raw
// bytes; Hex records which syntax produced it. Interpreting the bytes
// (PDFDocEncoding vs UTF-16BE) is the caller's concern, see Text.
type String struct {
	Data []byte
	Hex  bool
}

func (String) Kind() Kind { return KindString }

// Reference identifies an indirect object by (number, generation). It is
// meaningless outside a document context.
type Reference struct {
	Num uint32
	Gen uint16
}

func (Reference) Kind() Kind { return KindReference }

func (r Reference) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Array is an ordered sequence of values.
type Array []Object

func (Array) Kind() Kind { return KindArray }

// Dict maps names to values. Duplicate keys encountered during parsing
// overwrite earlier ones: last write wins.
type Dict struct {
	kv map[Name]Object
}

func NewDict() *Dict { return &Dict{kv: make(map[Name]Object)} }

func (*Dict) Kind() Kind { return KindDict }

func (d *Dict) Get(key Name) (Object, bool) {
	o, ok := d.kv[key]
	return o, ok
}

// Set stores value under key, replacing any previous entry.
func (d *Dict) Set(key Name, value Object) {
	if d.kv == nil {
		d.kv = make(map[Name]Object)
	}
	d.kv[key] = value
}

func (d *Dict) Delete(key Name) { delete(d.kv, key) }

func (d *Dict) Len() int { return len(d.kv) }

func (d *Dict) Keys() []Name {
	keys := make([]Name, 0, len(d.kv))
	for k := range d.kv {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Typed accessors. Each returns the zero value and false when the key is
// absent or holds a different kind.

func (d *Dict) Int(key Name) (int64, bool) {
	v, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	return AsInt64(v)
}

func (d *Dict) Name(key Name) (Name, bool) {
	if v, ok := d.Get(key); ok {
		if n, ok := v.(Name); ok {
			return n, true
		}
	}
	return "", false
}

func (d *Dict) Bool(key Name) (bool, bool) {
	if v, ok := d.Get(key); ok {
		if b, ok := v.(Boolean); ok {
			return bool(b), true
		}
	}
	return false, false
}

func (d *Dict) StringBytes(key Name) ([]byte, bool) {
	if v, ok := d.Get(key); ok {
		if s, ok := v.(String); ok {
			return s.Data, true
		}
	}
	return nil, false
}

func (d *Dict) Array(key Name) (Array, bool) {
	if v, ok := d.Get(key); ok {
		if a, ok := v.(Array); ok {
			return a, true
		}
	}
	return nil, false
}

func (d *Dict) Dict(key Name) (*Dict, bool) {
	if v, ok := d.Get(key); ok {
		if sub, ok := v.(*Dict); ok {
			return sub, true
		}
	}
	return nil, false
}

func (d *Dict) Ref(key Name) (Reference, bool) {
	if v, ok := d.Get(key); ok {
		if r, ok := v.(Reference); ok {
			return r, true
		}
	}
	return Reference{}, false
}

// Stream couples a metadata dictionary with the raw body bytes found
// between the stream and endstream keywords. Decoded bytes are computed at
// most once and cached; Raw is never destroyed by decoding so the body can
// be re-decoded if a caller mutates filter parameters.
type Stream struct {
	Dict *Dict
	Raw  []byte

	decoded    []byte
	hasDecoded bool
}

func NewStream(dict *Dict, raw []byte) *Stream {
	if dict == nil {
		dict = NewDict()
	}
	return &Stream{Dict: dict, Raw: raw}
}

func (*Stream) Kind() Kind { return KindStream }

// Decoded returns the cached decoded body, if any.
func (s *Stream) Decoded() ([]byte, bool) { return s.decoded, s.hasDecoded }

// SetDecoded populates the decoded-body cache.
func (s *Stream) SetDecoded(data []byte) {
	s.decoded = data
	s.hasDecoded = true
}

// InvalidateDecoded drops the cache so the next decode runs the filter
// pipeline again, e.g. after a caller edits /DecodeParms.
func (s *Stream) InvalidateDecoded() {
	s.decoded = nil
	s.hasDecoded = false
}

// AsInt64 extracts an integral value from an Integer or Real object.
func AsInt64(o Object) (int64, bool) {
	switch v := o.(type) {
	case Integer:
		return int64(v), true
	case Real:
		return int64(v), true
	}
	return 0, false
}
