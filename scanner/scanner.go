// Package scanner tokenizes PDF syntax from an in-memory byte buffer. It
// understands the full token grammar (dictionaries, arrays, literal and hex
// strings, names, numbers, indirect-reference triples) and captures raw
// stream payloads, tolerating the newline and length irregularities common
// in real-world files.
package scanner

import (
	"bytes"
	"io"
	"strconv"

	"github.com/scribd/keynote/object"
	"github.com/scribd/keynote/recovery"
)

type TokenType int

const (
	TokenDict    TokenType = iota // '<<'
	TokenArray                    // '['
	TokenName                     // '/Name'
	TokenString                   // literal or hex string
	TokenNumber                   // integer or real
	TokenBoolean                  // true/false
	TokenNull                     // null
	TokenRef                      // indirect reference 'N G R'
	TokenStream                   // captured stream payload
	TokenKeyword                  // obj, endobj, '>>', ']', xref, trailer, ...
)

type Token struct {
	Type  TokenType
	Pos   int64
	Str   string // names (slash stripped) and keywords
	Bytes []byte // string payloads and stream payloads
	Hex   bool   // string came from the hexadecimal form
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Gen   int // generation for TokenRef; object number is in Int
}

// Scanner walks a byte buffer, producing one token per Next call. It keeps a
// single cursor; Seek repositions it for random-access object loading.
type Scanner struct {
	data          []byte
	pos           int64
	nextStreamLen int64
	strategy      recovery.Strategy
}

func New(data []byte, strategy recovery.Strategy) *Scanner {
	if strategy == nil {
		strategy = recovery.NewStrictStrategy()
	}
	return &Scanner{data: data, nextStreamLen: -1, strategy: strategy}
}

func (s *Scanner) Pos() int64 { return s.pos }

func (s *Scanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return object.Malformedf(offset, "seek out of range (buffer is %d bytes)", len(s.data))
	}
	s.pos = offset
	return nil
}

// SetNextStreamLength tells the scanner the declared /Length of the next
// stream payload. Pass a negative value when the length is unknown (for
// example when /Length is an unresolved indirect reference); the scanner
// then seeks the endstream marker instead.
func (s *Scanner) SetNextStreamLength(n int64) { s.nextStreamLen = n }

// tolerate reports a non-fatal irregularity through the recovery strategy.
// It returns nil when processing should continue with the fallback.
func (s *Scanner) tolerate(component string, err error) error {
	loc := recovery.Location{ByteOffset: s.pos, Component: "scanner:" + component}
	if s.strategy.OnError(err, loc) == recovery.ActionContinue {
		return nil
	}
	return err
}

func (s *Scanner) Next() (Token, error) {
	s.skipWhitespaceAndComments()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDict, Pos: start, Str: "<<"}, nil
		}
		return s.scanHexString()
	case '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return Token{Type: TokenKeyword, Pos: start, Str: ">>"}, nil
		}
		s.pos++
		return Token{Type: TokenKeyword, Pos: start, Str: ">"}, nil
	case '[':
		s.pos++
		return Token{Type: TokenArray, Pos: start, Str: "["}, nil
	case ']':
		s.pos++
		return Token{Type: TokenKeyword, Pos: start, Str: "]"}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	if isNumberStart(c) {
		return s.scanNumberOrRef()
	}
	if isRegular(c) {
		return s.scanKeyword()
	}
	s.pos++
	return Token{Type: TokenKeyword, Pos: start, Str: string(c)}, nil
}

func (s *Scanner) skipWhitespaceAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *Scanner) peek(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *Scanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // '/'
	var out bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) && isHexDigit(s.data[s.pos+1]) && isHexDigit(s.data[s.pos+2]) {
			out.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		out.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Pos: start, Str: out.String()}, nil
}

func (s *Scanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // '('
	var buf bytes.Buffer
	depth := 1
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		switch c {
		case '\\':
			s.pos++
			if s.pos >= int64(len(s.data)) {
				return Token{}, object.Malformedf(start, "unterminated literal string")
			}
			esc := s.data[s.pos]
			switch esc {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case '(', ')', '\\':
				buf.WriteByte(esc)
			default:
				return Token{}, object.Malformedf(s.pos, "invalid escape sequence \\%c in literal string", esc)
			}
			s.pos++
		case '(':
			depth++
			buf.WriteByte(c)
			s.pos++
		case ')':
			depth--
			s.pos++
			if depth == 0 {
				// Skip stray closing parentheses after the string; some
				// old producers emit them.
				for s.pos < int64(len(s.data)) && s.data[s.pos] == ')' {
					if err := s.tolerate("literal", object.Malformedf(s.pos, "stray ) after literal string")); err != nil {
						return Token{}, err
					}
					s.pos++
				}
				return Token{Type: TokenString, Pos: start, Bytes: buf.Bytes()}, nil
			}
			buf.WriteByte(')')
		default:
			buf.WriteByte(c)
			s.pos++
		}
	}
	return Token{}, object.Malformedf(start, "unterminated literal string")
}

func (s *Scanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // '<'
	var nibbles []byte
	for {
		if s.pos >= int64(len(s.data)) {
			return Token{}, object.Malformedf(start, "unterminated hex string")
		}
		c := s.data[s.pos]
		if c == '>' {
			s.pos++
			break
		}
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if !isHexDigit(c) {
			return Token{}, object.Malformedf(s.pos, "invalid character %q in hex string", c)
		}
		nibbles = append(nibbles, c)
		s.pos++
	}
	if len(nibbles)%2 == 1 {
		nibbles = append(nibbles, '0')
	}
	out := make([]byte, 0, len(nibbles)/2)
	for i := 0; i < len(nibbles); i += 2 {
		out = append(out, fromHex(nibbles[i])<<4|fromHex(nibbles[i+1]))
	}
	return Token{Type: TokenString, Pos: start, Bytes: out, Hex: true}, nil
}

func (s *Scanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	first := s.scanNumberChars()
	if first == "" {
		s.pos++
		return Token{}, object.Malformedf(start, "invalid number")
	}
	// Lookahead for the 'N G R' indirect-reference form.
	if n1, err := strconv.ParseInt(first, 10, 64); err == nil && n1 >= 0 {
		save := s.pos
		s.skipWhitespaceAndComments()
		second := s.scanNumberChars()
		if second != "" {
			if n2, err := strconv.ParseInt(second, 10, 64); err == nil && n2 >= 0 {
				s.skipWhitespaceAndComments()
				if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
					(s.pos+1 >= int64(len(s.data)) || isDelimiter(s.data[s.pos+1])) {
					s.pos++
					return Token{Type: TokenRef, Pos: start, Int: n1, Gen: int(n2)}, nil
				}
			}
		}
		s.pos = save
	}
	if i, err := strconv.ParseInt(first, 10, 64); err == nil {
		return Token{Type: TokenNumber, Pos: start, Int: i, IsInt: true}, nil
	}
	f, err := strconv.ParseFloat(first, 64)
	if err != nil {
		return Token{}, object.Malformedf(start, "invalid number %q", first)
	}
	return Token{Type: TokenNumber, Pos: start, Float: f}, nil
}

func (s *Scanner) scanNumberChars() string {
	start := s.pos
	seenDigit := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if c >= '0' && c <= '9' {
			seenDigit = true
			s.pos++
			continue
		}
		if c == '+' || c == '-' || c == '.' {
			s.pos++
			continue
		}
		if (c == 'e' || c == 'E') && seenDigit {
			s.pos++
			continue
		}
		break
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return string(s.data[start:s.pos])
}

func (s *Scanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < int64(len(s.data)) && !isDelimiter(s.data[s.pos]) {
		s.pos++
	}
	kw := string(s.data[start:s.pos])
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Pos: start, Bool: kw == "true"}, nil
	case "null":
		return Token{Type: TokenNull, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	default:
		return Token{Type: TokenKeyword, Pos: start, Str: kw}, nil
	}
}

// scanStream captures the raw payload following a 'stream' keyword. When the
// declared length is known it is trusted first and verified against the
// endstream marker; any mismatch falls back to scanning for the marker.
func (s *Scanner) scanStream(start int64) (Token, error) {
	declared := s.nextStreamLen
	s.nextStreamLen = -1

	// EOL after the keyword: CRLF or LF per the format; lone CR and a
	// missing break both occur in the wild and are tolerated.
	switch {
	case s.pos+1 < int64(len(s.data)) && s.data[s.pos] == '\r' && s.data[s.pos+1] == '\n':
		s.pos += 2
	case s.pos < int64(len(s.data)) && s.data[s.pos] == '\n':
		s.pos++
	case s.pos < int64(len(s.data)) && s.data[s.pos] == '\r':
		if err := s.tolerate("stream", object.Malformedf(s.pos, "stream keyword followed by a lone carriage return")); err != nil {
			return Token{}, err
		}
		s.pos++
	default:
		if err := s.tolerate("stream", object.Malformedf(s.pos, "no newline after stream keyword")); err != nil {
			return Token{}, err
		}
	}
	dataStart := s.pos

	if declared >= 0 {
		end := dataStart + declared
		if end <= int64(len(s.data)) && s.markerFollows(end) {
			payload := append([]byte(nil), s.data[dataStart:end]...)
			s.pos = s.skipToMarkerEnd(end)
			return Token{Type: TokenStream, Pos: start, Bytes: payload}, nil
		}
		if err := s.tolerate("stream", object.Malformedf(dataStart, "declared stream length %d does not reach an endstream marker", declared)); err != nil {
			return Token{}, err
		}
	}

	idx := s.findMarker(dataStart)
	if idx < 0 {
		return Token{}, object.Malformedf(dataStart, "stream has no endstream marker")
	}
	end := trimStreamEOL(s.data, dataStart, idx)
	payload := append([]byte(nil), s.data[dataStart:end]...)
	s.pos = idx + int64(len(endstreamMarker))
	return Token{Type: TokenStream, Pos: start, Bytes: payload}, nil
}

var endstreamMarker = []byte("endstream")

// markerFollows reports whether an endstream keyword begins at end, allowing
// leading whitespace.
func (s *Scanner) markerFollows(end int64) bool {
	p := end
	for p < int64(len(s.data)) && isWhitespace(s.data[p]) {
		p++
	}
	if p+int64(len(endstreamMarker)) > int64(len(s.data)) {
		return false
	}
	return bytes.Equal(s.data[p:p+int64(len(endstreamMarker))], endstreamMarker)
}

func (s *Scanner) skipToMarkerEnd(end int64) int64 {
	p := end
	for p < int64(len(s.data)) && isWhitespace(s.data[p]) {
		p++
	}
	return p + int64(len(endstreamMarker))
}

// findMarker locates the first plausible endstream keyword at or after
// dataStart: one preceded by whitespace and followed by a delimiter or EOF,
// so binary payload bytes cannot match.
func (s *Scanner) findMarker(dataStart int64) int64 {
	for from := dataStart; ; {
		i := bytes.Index(s.data[from:], endstreamMarker)
		if i < 0 {
			return -1
		}
		at := from + int64(i)
		after := at + int64(len(endstreamMarker))
		prevOK := at == dataStart || isWhitespace(s.data[at-1])
		afterOK := after >= int64(len(s.data)) || isDelimiter(s.data[after])
		if prevOK && afterOK {
			return at
		}
		from = at + 1
	}
}

// trimStreamEOL drops the end-of-line bytes separating payload from the
// endstream marker.
func trimStreamEOL(data []byte, dataStart, markerAt int64) int64 {
	end := markerAt
	if end > dataStart && data[end-1] == '\n' {
		end--
	}
	if end > dataStart && data[end-1] == '\r' {
		end--
	}
	return end
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isEOL(c byte) bool { return c == '\r' || c == '\n' }

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}

func isNumberStart(c byte) bool {
	return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9')
}

func isRegular(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

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
