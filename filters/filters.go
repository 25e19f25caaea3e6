// Package filters decodes stream payloads. A stream's /Filter entry names
// a chain applied first-to-last; /DecodeParms carries per-stage parameters.
// Image codecs (DCT, JPX, CCITT, JBIG2) are passed through undecoded so
// callers receive the compressed image bytes intact.
package filters

import (
	"context"
	"fmt"

	"pdflib/objects"
	"pdflib/recovery"
)

// Decoder turns the encoded bytes of one filter stage back into plain
// bytes. parms may be nil.
type Decoder interface {
	Name() string
	Decode(ctx context.Context, data []byte, parms *objects.Dict) ([]byte, error)
}

// UnsupportedError marks a filter the library knows of but does not decode,
// or one it has never heard of. The pipeline treats both as passthrough
// under a lenient policy.
type UnsupportedError struct {
	Filter string
}

func (e *UnsupportedError) Error() string { return "unsupported filter " + e.Filter }

// Limits caps decode output. Zero means unbounded.
type Limits struct {
	MaxDecodedBytes int64
}

type Pipeline struct {
	limits   Limits
	strategy recovery.Strategy
	decoders map[string]Decoder
}

func NewPipeline(limits Limits, strategy recovery.Strategy) *Pipeline {
	p := &Pipeline{limits: limits, strategy: strategy, decoders: map[string]Decoder{}}
	for _, d := range []Decoder{
		&flateDecoder{limits: limits},
		&lzwDecoder{limits: limits},
		&runLengthDecoder{},
		&asciiHexDecoder{},
		&ascii85Decoder{},
		passthroughDecoder{"DCTDecode"},
		passthroughDecoder{"JPXDecode"},
		passthroughDecoder{"CCITTFaxDecode"},
		passthroughDecoder{"JBIG2Decode"},
	} {
		p.decoders[d.Name()] = d
	}
	return p
}

// Register adds or replaces a decoder.
func (p *Pipeline) Register(d Decoder) { p.decoders[d.Name()] = d }

// Decode runs the full filter chain of a stream and returns the decoded
// payload. Resolve, when non-nil, is used to chase indirect references
// inside /Filter and /DecodeParms.
func (p *Pipeline) Decode(ctx context.Context, st *objects.Stream, resolve func(objects.Object) objects.Object) ([]byte, error) {
	if resolve == nil {
		resolve = func(o objects.Object) objects.Object { return o }
	}
	names, parms := filterChain(st.Dict, resolve)
	data := st.Raw
	for i, name := range names {
		var pd *objects.Dict
		if i < len(parms) {
			pd = parms[i]
		}
		out, err := p.decodeStage(ctx, name, data, pd)
		if err != nil {
			if p.fault(err, name) != nil {
				return nil, err
			}
			// Degrade: this stage passes its input through unchanged and
			// the rest of the chain still runs.
			continue
		}
		data = out
	}
	return data, nil
}

func (p *Pipeline) decodeStage(ctx context.Context, name string, data []byte, parms *objects.Dict) ([]byte, error) {
	d, ok := p.decoders[name]
	if !ok {
		return nil, &UnsupportedError{Filter: name}
	}
	out, err := d.Decode(ctx, data, parms)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func (p *Pipeline) fault(err error, filter string) error {
	if p.strategy == nil {
		return err
	}
	if p.strategy.OnError(err, recovery.Location{Component: "filters:" + filter}) == recovery.ActionFail {
		return err
	}
	return nil
}

// filterChain normalizes /Filter and /DecodeParms into parallel slices.
// Both accept a single value or an array; a null or absent parms entry
// yields a nil dict for that stage.
func filterChain(dict *objects.Dict, resolve func(objects.Object) objects.Object) ([]string, []*objects.Dict) {
	if dict == nil {
		return nil, nil
	}
	var names []string
	if v, ok := dict.Get("Filter"); ok {
		switch f := resolve(v).(type) {
		case objects.Name:
			names = []string{string(f)}
		case objects.Array:
			for _, el := range f {
				if n, ok := resolve(el).(objects.Name); ok {
					names = append(names, string(n))
				}
			}
		}
	}
	var parms []*objects.Dict
	v, ok := dict.Get("DecodeParms")
	if !ok {
		v, ok = dict.Get("DP")
	}
	if ok {
		switch pv := resolve(v).(type) {
		case *objects.Dict:
			parms = []*objects.Dict{pv}
		case objects.Array:
			for _, el := range pv {
				if d, ok := resolve(el).(*objects.Dict); ok {
					parms = append(parms, d)
				} else {
					parms = append(parms, nil)
				}
			}
		}
	}
	return names, parms
}

func parmInt(parms *objects.Dict, key objects.Name, def int64) int64 {
	if parms == nil {
		return def
	}
	if v, ok := parms.Int(key); ok {
		return v
	}
	return def
}
