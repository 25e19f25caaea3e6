// Package scanner turns a byte cursor over a PDF file into lexical tokens.
// It performs no semantic interpretation: names, numbers, strings, and
// keywords come out exactly as the grammar defines them, and malformed
// input is reported to the recovery strategy instead of aborting.
package scanner

import (
	"bytes"
	"errors"
	"io"
	"strconv"

	"pdflib/recovery"
)

type TokenType int

const (
	TokenNumber  TokenType = iota // integer or real
	TokenName                     // /Name, #xx escapes decoded
	TokenString                   // literal or hex string, raw bytes
	TokenBoolean                  // true / false
	TokenNull                     // null
	TokenRef                      // collapsed "N G R"
	TokenDictBegin
	TokenDictEnd
	TokenArrayBegin
	TokenArrayEnd
	TokenStream  // raw stream payload between stream/endstream
	TokenKeyword // obj, endobj, xref, trailer, startxref, stray delimiters
)

// Token is one lexical unit. Which fields are meaningful depends on Type:
// numbers use Int/Float/IsInt, names and keywords use Str, strings and
// stream payloads use Bytes, references use Num/Gen.
type Token struct {
	Type  TokenType
	Pos   int64
	Int   int64
	Float float64
	IsInt bool
	Str   string
	Bytes []byte
	Hex   bool
	Num   int
	Gen   int
}

// Config bounds the scanner. Zero values select defaults; WindowSize is
// exposed so tests can exercise buffer-boundary behavior deterministically.
type Config struct {
	WindowSize      int64
	MaxStringLength int64
	MaxStreamLength int64
	MaxStreamScan   int64
	Recovery        recovery.Strategy
}

const defaultWindowSize = 64 * 1024

// Scanner incrementally buffers data from a ReaderAt in fixed-size windows
// and hands out tokens. Seeking backward is always possible because the
// buffered prefix is retained.
type Scanner struct {
	reader        io.ReaderAt
	data          []byte
	pos           int64
	cfg           Config
	window        int64
	eof           bool
	nextStreamLen int64
}

func New(r io.ReaderAt, cfg Config) *Scanner {
	w := cfg.WindowSize
	if w <= 0 {
		w = defaultWindowSize
	}
	return &Scanner{reader: r, cfg: cfg, window: w, nextStreamLen: -1}
}

func (s *Scanner) Position() int64 { return s.pos }

func (s *Scanner) Seek(offset int64) error {
	if offset < 0 {
		return errors.New("seek out of range")
	}
	if err := s.ensure(offset); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if offset > int64(len(s.data)) {
		return errors.New("seek out of range")
	}
	s.pos = offset
	return nil
}

// SetNextStreamLength tells the scanner the declared /Length of the next
// stream keyword it encounters. Negative clears the hint.
func (s *Scanner) SetNextStreamLength(n int64) { s.nextStreamLen = n }

// Next returns the next token, or io.EOF when the input is exhausted.
func (s *Scanner) Next() (Token, error) {
	if err := s.skipWSAndComments(); err != nil {
		return Token{}, err
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDictBegin, Pos: start}, nil
		}
		return s.scanHexString()
	case '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return Token{Type: TokenDictEnd, Pos: start}, nil
		}
		s.pos++
		return Token{Type: TokenKeyword, Str: ">", Pos: start}, nil
	case '[':
		s.pos++
		return Token{Type: TokenArrayBegin, Pos: start}, nil
	case ']':
		s.pos++
		return Token{Type: TokenArrayEnd, Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	case '{', '}':
		s.pos++
		return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
	}
	if isNumberStart(c) {
		return s.scanNumberOrRef()
	}
	if isRegular(c) {
		return s.scanKeyword()
	}
	s.pos++
	return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
}

func (s *Scanner) skipWSAndComments() error {
	for {
		if err := s.ensure(s.pos); err != nil {
			return err
		}
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for {
				s.pos++
				if err := s.ensure(s.pos); err != nil {
					return err
				}
				if c := s.data[s.pos]; c == '\r' || c == '\n' {
					break
				}
			}
			continue
		}
		return nil
	}
}

// ensure grows the buffer until the byte at offset n is available.
func (s *Scanner) ensure(n int64) error {
	for int64(len(s.data)) <= n {
		if s.eof {
			return io.EOF
		}
		if err := s.loadMore(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) loadMore() error {
	buf := make([]byte, s.window)
	n, err := s.reader.ReadAt(buf, int64(len(s.data)))
	if n > 0 {
		s.data = append(s.data, buf[:n]...)
	}
	if err == io.EOF || n == 0 {
		s.eof = true
		return nil
	}
	return err
}

func (s *Scanner) peek(n int64) byte {
	if err := s.ensure(s.pos + n); err != nil {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *Scanner) atEnd() bool {
	return s.ensure(s.pos) != nil
}

func (s *Scanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // '/'
	var out bytes.Buffer
	for !s.atEnd() {
		c := s.data[s.pos]
		if isDelimiter(c) || isWhitespace(c) {
			break
		}
		if c == '#' && isHexDigit(s.peek(1)) && isHexDigit(s.peek(2)) {
			out.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		out.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Str: out.String(), Pos: start}, nil
}

func (s *Scanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // '('
	var buf bytes.Buffer
	depth := 1
	for {
		if s.atEnd() {
			if err := s.fault(errors.New("unterminated literal string"), "literal"); err != nil {
				return Token{}, err
			}
			break
		}
		c := s.data[s.pos]
		switch {
		case c == '\\':
			s.pos++
			if s.atEnd() {
				continue
			}
			esc := s.data[s.pos]
			switch {
			case esc == '\r': // line continuation, swallow CR or CRLF
				s.pos++
				if !s.atEnd() && s.data[s.pos] == '\n' {
					s.pos++
				}
			case esc == '\n':
				s.pos++
			case esc >= '0' && esc <= '7': // up to three octal digits
				val := int(esc - '0')
				s.pos++
				for k := 0; k < 2 && !s.atEnd(); k++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(unescape(esc))
				s.pos++
			}
		case c == '(':
			depth++
			buf.WriteByte(c)
			s.pos++
		case c == ')':
			depth--
			s.pos++
			if depth == 0 {
				return Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start}, nil
			}
			buf.WriteByte(c)
		default:
			buf.WriteByte(c)
			s.pos++
		}
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, errors.New("literal string too long")
		}
	}
	return Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start}, nil
}

func (s *Scanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // '<'
	var nibbles []byte
	closed := false
	for !s.atEnd() {
		c := s.data[s.pos]
		if c == '>' {
			s.pos++
			closed = true
			break
		}
		s.pos++
		if isWhitespace(c) {
			continue
		}
		if isHexDigit(c) {
			nibbles = append(nibbles, c)
		}
		if s.cfg.MaxStringLength > 0 && int64(len(nibbles)/2) > s.cfg.MaxStringLength {
			return Token{}, errors.New("hex string too long")
		}
	}
	if !closed {
		if err := s.fault(errors.New("unterminated hex string"), "hex"); err != nil {
			return Token{}, err
		}
	}
	if len(nibbles)%2 == 1 {
		nibbles = append(nibbles, '0') // odd trailing nibble pads with 0
	}
	out := make([]byte, 0, len(nibbles)/2)
	for i := 0; i < len(nibbles); i += 2 {
		out = append(out, fromHex(nibbles[i])<<4|fromHex(nibbles[i+1]))
	}
	return Token{Type: TokenString, Bytes: out, Hex: true, Pos: start}, nil
}

func (s *Scanner) scanKeyword() (Token, error) {
	start := s.pos
	var buf bytes.Buffer
	for !s.atEnd() {
		c := s.data[s.pos]
		if isDelimiter(c) || isWhitespace(c) {
			break
		}
		buf.WriteByte(c)
		s.pos++
	}
	switch kw := buf.String(); kw {
	case "true", "false":
		return Token{Type: TokenBoolean, IsInt: false, Int: 0, Str: kw, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	default:
		return Token{Type: TokenKeyword, Str: kw, Pos: start}, nil
	}
}

// scanNumberOrRef reads a numeric token and, when it is an integer followed
// by a second integer and the keyword R, collapses the triple into a
// reference token.
func (s *Scanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	first := s.scanNumberText()
	if first == "" {
		s.pos++
		return Token{Type: TokenKeyword, Str: string(s.data[s.pos-1]), Pos: start}, nil
	}
	i1, f1, isInt1 := parseNumeric(first)
	if isInt1 && i1 >= 0 {
		if err := s.skipWSAndComments(); err == nil {
			secondStart := s.pos
			second := s.scanNumberText()
			if second != "" {
				i2, _, isInt2 := parseNumeric(second)
				if isInt2 && i2 >= 0 {
					if err := s.skipWSAndComments(); err == nil &&
						s.data[s.pos] == 'R' && isBoundary(s.peek(1)) {
						s.pos++
						return Token{Type: TokenRef, Num: int(i1), Gen: int(i2), Pos: start}, nil
					}
				}
			}
			// Not a reference: rewind so the second number is re-scanned.
			s.pos = secondStart
		}
	}
	if isInt1 {
		return Token{Type: TokenNumber, Int: i1, IsInt: true, Pos: start}, nil
	}
	return Token{Type: TokenNumber, Float: f1, Pos: start}, nil
}

func (s *Scanner) scanNumberText() string {
	start := s.pos
	var buf bytes.Buffer
	seenDigit := false
	for !s.atEnd() {
		c := s.data[s.pos]
		if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
			buf.WriteByte(c)
			if c >= '0' && c <= '9' {
				seenDigit = true
			}
			s.pos++
			continue
		}
		break
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return buf.String()
}

// parseNumeric tolerates malformed numbers by truncating at the first
// character that would make the literal unparseable (extra signs, a second
// decimal point) instead of failing.
func parseNumeric(text string) (int64, float64, bool) {
	i := 0
	if i < len(text) && (text[i] == '+' || text[i] == '-') {
		i++
	}
	dot := false
	j := i
	for ; j < len(text); j++ {
		c := text[j]
		if c == '.' {
			if dot {
				break
			}
			dot = true
			continue
		}
		if c < '0' || c > '9' {
			break
		}
	}
	text = text[:j]
	if !dot {
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return 0, 0, true
		}
		return v, float64(v), true
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, 0, false
	}
	return int64(f), f, false
}

// scanStream consumes the stream body. With a declared-length hint the body
// is read directly and the endstream marker verified; on mismatch, or with
// no hint at all, the body boundary is recovered by scanning for a
// plausible endstream keyword.
func (s *Scanner) scanStream(start int64) (Token, error) {
	hint := s.nextStreamLen
	s.nextStreamLen = -1
	// The keyword must be followed by an end-of-line before the data.
	if !s.atEnd() {
		if s.data[s.pos] == '\r' {
			s.pos++
			if !s.atEnd() && s.data[s.pos] == '\n' {
				s.pos++
			}
		} else if s.data[s.pos] == '\n' {
			s.pos++
		} else if err := s.fault(errors.New("stream keyword not followed by EOL"), "stream"); err != nil {
			return Token{}, err
		}
	}
	dataStart := s.pos
	if hint >= 0 {
		if s.cfg.MaxStreamLength > 0 && hint > s.cfg.MaxStreamLength {
			return Token{}, errors.New("stream too long")
		}
		if err := s.ensure(dataStart + hint); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
		end := dataStart + hint
		if end > int64(len(s.data)) {
			end = int64(len(s.data))
		}
		if after, ok := s.endstreamAfter(end); ok {
			payload := append([]byte(nil), s.data[dataStart:end]...)
			s.pos = after
			return Token{Type: TokenStream, Bytes: payload, Pos: start}, nil
		}
		// Declared length does not land on endstream; fall back to scanning.
		if err := s.fault(errors.New("declared stream length does not match endstream"), "stream"); err != nil {
			return Token{}, err
		}
	}
	end, after, found := s.findEndstream(dataStart)
	if !found {
		// Truncated stream: keep whatever bytes are available.
		if err := s.fault(errors.New("endstream not found, stream truncated"), "stream"); err != nil {
			return Token{}, err
		}
		payload := append([]byte(nil), s.data[dataStart:]...)
		s.pos = int64(len(s.data))
		return Token{Type: TokenStream, Bytes: payload, Pos: start}, nil
	}
	payload := append([]byte(nil), s.data[dataStart:end]...)
	s.pos = after
	return Token{Type: TokenStream, Bytes: payload, Pos: start}, nil
}

var endstreamKeyword = []byte("endstream")

// endstreamAfter reports whether an endstream keyword sits at end, allowing
// a single EOL between the data and the marker, and returns the position
// just past the keyword.
func (s *Scanner) endstreamAfter(end int64) (int64, bool) {
	p := end
	if s.ensure(p) == nil && s.data[p] == '\r' {
		p++
	}
	if s.ensure(p) == nil && s.data[p] == '\n' {
		p++
	}
	if err := s.ensure(p + int64(len(endstreamKeyword)) - 1); err != nil {
		return 0, false
	}
	if bytes.Equal(s.data[p:p+int64(len(endstreamKeyword))], endstreamKeyword) {
		return p + int64(len(endstreamKeyword)), true
	}
	return 0, false
}

// findEndstream scans forward from dataStart for an endstream keyword that
// sits on a whitespace boundary. It returns the data end (EOL before the
// marker trimmed) and the position past the keyword.
func (s *Scanner) findEndstream(dataStart int64) (end, after int64, found bool) {
	from := dataStart
	for {
		// Pull in more data until the needle is found or EOF.
		idx := bytes.Index(s.data[from:], endstreamKeyword)
		for idx < 0 && !s.eof {
			if err := s.loadMore(); err != nil {
				return 0, 0, false
			}
			idx = bytes.Index(s.data[from:], endstreamKeyword)
		}
		if idx < 0 {
			return 0, 0, false
		}
		at := from + int64(idx)
		if s.cfg.MaxStreamScan > 0 && at-dataStart > s.cfg.MaxStreamScan {
			return 0, 0, false
		}
		afterKw := at + int64(len(endstreamKeyword))
		prevOK := at == dataStart || isWhitespace(s.data[at-1])
		nextOK := s.ensure(afterKw) != nil || isDelimiter(s.data[afterKw]) || isWhitespace(s.data[afterKw])
		if prevOK && nextOK {
			end = at
			if end > dataStart && s.data[end-1] == '\n' {
				end--
			}
			if end > dataStart && s.data[end-1] == '\r' {
				end--
			}
			return end, afterKw, true
		}
		from = afterKw
	}
}

func (s *Scanner) fault(err error, where string) error {
	if s.cfg.Recovery == nil {
		return err
	}
	action := s.cfg.Recovery.OnError(err, recovery.Location{
		ByteOffset: s.pos,
		Component:  "scanner:" + where,
	})
	if action == recovery.ActionFail {
		return err
	}
	return nil
}

// Character classes per the PDF grammar. NUL, tab, LF, FF, CR, and space
// are all equivalent separators.
func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isBoundary(c byte) bool { return c == 0 || isDelimiter(c) || isWhitespace(c) }

func isRegular(c byte) bool { return !isDelimiter(c) && !isWhitespace(c) }

func isNumberStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c // includes ( ) \ and anything else: escaped char stands for itself
	}
}
