// Package parser composes tokens from the scanner into object trees:
// dictionaries, arrays, streams, and the indirect-object envelope around
// them. It never touches the cross-reference table; resolving the
// occasional indirect /Length is delegated to a caller-supplied callback.
package parser

import (
	"errors"
	"fmt"
	"io"

	"pdflib/objects"
	"pdflib/recovery"
	"pdflib/scanner"
)

const defaultMaxDepth = 100

// Config bounds and parameterizes a Parser. Resolve is consulted when a
// stream's /Length is an indirect reference; a nil Resolve makes the
// scanner fall back to locating endstream by search.
type Config struct {
	MaxDepth int
	Recovery recovery.Strategy
	Resolve  func(objects.Reference) (objects.Object, error)
}

type Parser struct {
	sc  *scanner.Scanner
	cfg Config

	buf    scanner.Token
	hasBuf bool
}

func New(sc *scanner.Scanner, cfg Config) *Parser {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	return &Parser{sc: sc, cfg: cfg}
}

func (p *Parser) next() (scanner.Token, error) {
	if p.hasBuf {
		p.hasBuf = false
		return p.buf, nil
	}
	return p.sc.Next()
}

func (p *Parser) unread(tok scanner.Token) {
	p.buf = tok
	p.hasBuf = true
}

// ParseObject parses one complete object starting at the scanner's current
// position.
func (p *Parser) ParseObject() (objects.Object, error) {
	return p.parseValue(0)
}

func (p *Parser) parseValue(depth int) (objects.Object, error) {
	if depth > p.cfg.MaxDepth {
		return nil, errors.New("object nesting too deep")
	}
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case scanner.TokenNull:
		return objects.Null{}, nil
	case scanner.TokenBoolean:
		return objects.Boolean(tok.Str == "true"), nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return objects.Integer(tok.Int), nil
		}
		return objects.Real(tok.Float), nil
	case scanner.TokenName:
		return objects.Name(tok.Str), nil
	case scanner.TokenString:
		return objects.String{Data: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenRef:
		return objects.Reference{Num: uint32(tok.Num), Gen: uint16(tok.Gen)}, nil
	case scanner.TokenArrayBegin:
		return p.parseArray(depth + 1)
	case scanner.TokenDictBegin:
		return p.parseDictOrStream(depth + 1)
	default:
		if err := p.report(fmt.Errorf("unexpected token %q", tok.Str), tok.Pos); err != nil {
			return nil, err
		}
		return objects.Null{}, nil
	}
}

func (p *Parser) parseArray(depth int) (objects.Object, error) {
	arr := objects.Array{}
	for {
		tok, err := p.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return arr, p.degradeErr(errors.New("unterminated array"), p.sc.Position(), arr)
			}
			return nil, err
		}
		if tok.Type == scanner.TokenArrayEnd {
			return arr, nil
		}
		p.unread(tok)
		elem, err := p.parseValue(depth)
		if err != nil {
			return nil, err
		}
		arr = append(arr, elem)
	}
}

func (p *Parser) parseDictOrStream(depth int) (objects.Object, error) {
	dict, err := p.parseDictBody(depth)
	if err != nil {
		return nil, err
	}
	tok, err := p.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return dict, nil
		}
		return nil, err
	}
	if tok.Type != scanner.TokenStream {
		p.unread(tok)
		return dict, nil
	}
	return &objects.Stream{Dict: dict, Raw: tok.Bytes}, nil
}

// parseDictBody reads key/value pairs until >>. A non-name key is a defect:
// the policy decides whether to fail, and in lenient mode both the bogus
// key and its would-be value are skipped so the rest of the dictionary
// survives.
func (p *Parser) parseDictBody(depth int) (*objects.Dict, error) {
	dict := objects.NewDict()
	for {
		tok, err := p.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return dict, p.degradeErr(errors.New("unterminated dictionary"), p.sc.Position(), dict)
			}
			return nil, err
		}
		if tok.Type == scanner.TokenDictEnd {
			break
		}
		if tok.Type != scanner.TokenName {
			if err := p.report(fmt.Errorf("dictionary key is not a name (token type %d)", tok.Type), tok.Pos); err != nil {
				return nil, err
			}
			if err := p.skipValue(depth); err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			continue
		}
		key := objects.Name(tok.Str)
		val, err := p.parseValue(depth)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return dict, p.degradeErr(errors.New("unterminated dictionary"), p.sc.Position(), dict)
			}
			return nil, err
		}
		dict.Set(key, val)
	}
	return dict, p.primeStreamLength(dict)
}

// primeStreamLength feeds the declared /Length to the scanner so the
// upcoming stream keyword, if any, can slice the body without searching.
func (p *Parser) primeStreamLength(dict *objects.Dict) error {
	v, ok := dict.Get("Length")
	if !ok {
		p.sc.SetNextStreamLength(-1)
		return nil
	}
	if ref, isRef := v.(objects.Reference); isRef {
		if p.cfg.Resolve == nil {
			p.sc.SetNextStreamLength(-1)
			return nil
		}
		resolved, err := p.cfg.Resolve(ref)
		if err != nil {
			p.sc.SetNextStreamLength(-1)
			return p.report(fmt.Errorf("resolving stream length %s: %w", ref, err), p.sc.Position())
		}
		v = resolved
	}
	if n, ok := objects.AsInt64(v); ok && n >= 0 {
		p.sc.SetNextStreamLength(n)
	} else {
		p.sc.SetNextStreamLength(-1)
	}
	return nil
}

// skipValue consumes and discards one value, balancing nesting.
func (p *Parser) skipValue(depth int) error {
	if depth > p.cfg.MaxDepth {
		return errors.New("object nesting too deep")
	}
	tok, err := p.next()
	if err != nil {
		return err
	}
	switch tok.Type {
	case scanner.TokenArrayBegin:
		for {
			t, err := p.next()
			if err != nil {
				return err
			}
			if t.Type == scanner.TokenArrayEnd {
				return nil
			}
			p.unread(t)
			if err := p.skipValue(depth + 1); err != nil {
				return err
			}
		}
	case scanner.TokenDictBegin:
		for {
			t, err := p.next()
			if err != nil {
				return err
			}
			if t.Type == scanner.TokenDictEnd {
				return nil
			}
			p.unread(t)
			if err := p.skipValue(depth + 1); err != nil {
				return err
			}
		}
	default:
		return nil
	}
}

// IndirectObject is the envelope around a parsed body.
type IndirectObject struct {
	Num  int
	Gen  int
	Body objects.Object
}

// ParseIndirectObject expects "N G obj <body> endobj" at the scanner's
// current position. A missing endobj is a defect handled by the policy; the
// body already parsed is kept.
func (p *Parser) ParseIndirectObject() (*IndirectObject, error) {
	num, err := p.expectInt()
	if err != nil {
		return nil, err
	}
	gen, err := p.expectInt()
	if err != nil {
		return nil, err
	}
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	if tok.Type != scanner.TokenKeyword || tok.Str != "obj" {
		return nil, fmt.Errorf("expected obj keyword at offset %d", tok.Pos)
	}
	body, err := p.parseValue(0)
	if err != nil {
		return nil, err
	}
	tok, err = p.next()
	if err == nil {
		if tok.Type != scanner.TokenKeyword || tok.Str != "endobj" {
			p.unread(tok)
			if rerr := p.report(fmt.Errorf("object %d %d missing endobj", num, gen), tok.Pos); rerr != nil {
				return nil, rerr
			}
		}
	} else if !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &IndirectObject{Num: num, Gen: gen, Body: body}, nil
}

func (p *Parser) expectInt() (int, error) {
	tok, err := p.next()
	if err != nil {
		return 0, err
	}
	if tok.Type != scanner.TokenNumber || !tok.IsInt {
		return 0, fmt.Errorf("expected integer at offset %d", tok.Pos)
	}
	return int(tok.Int), nil
}

func (p *Parser) report(err error, pos int64) error {
	if p.cfg.Recovery == nil {
		return err
	}
	if p.cfg.Recovery.OnError(err, recovery.Location{ByteOffset: pos, Component: "parser"}) == recovery.ActionFail {
		return err
	}
	return nil
}

// degradeErr reports err; in lenient mode the partial value already built
// is returned to the caller in place of a failure.
func (p *Parser) degradeErr(err error, pos int64, _ objects.Object) error {
	return p.report(err, pos)
}
