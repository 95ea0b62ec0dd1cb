// Package parser assembles scanner tokens into objects: values, complete
// indirect objects with their stream payloads, and objects packed inside
// object streams.
package parser

import (
	"io"

	"github.com/scribd/keynote/object"
	"github.com/scribd/keynote/recovery"
	"github.com/scribd/keynote/scanner"
)

// Raw is one indirect object as read from the file: its identity, its value,
// and the raw (still encoded, possibly encrypted) stream payload when the
// object carries one.
type Raw struct {
	Ref       object.Ref
	Value     object.Object
	Stream    []byte
	HasStream bool
}

// Reader parses objects from a byte buffer. It supports random access via
// Seek so indirect objects can be loaded straight from cross-reference
// offsets.
type Reader struct {
	s        *scanner.Scanner
	pushback []scanner.Token
	strategy recovery.Strategy
}

func New(data []byte, strategy recovery.Strategy) *Reader {
	if strategy == nil {
		strategy = recovery.NewStrictStrategy()
	}
	return &Reader{s: scanner.New(data, strategy), strategy: strategy}
}

func (r *Reader) Seek(offset int64) error {
	r.pushback = r.pushback[:0]
	return r.s.Seek(offset)
}

// Pos returns the scanner's current byte position.
func (r *Reader) Pos() int64 { return r.s.Pos() }

// Token returns the next token, honoring pushback.
func (r *Reader) Token() (scanner.Token, error) {
	if n := len(r.pushback); n > 0 {
		tok := r.pushback[n-1]
		r.pushback = r.pushback[:n-1]
		return tok, nil
	}
	return r.s.Next()
}

// Unread pushes tok back so the next Token call returns it again.
func (r *Reader) Unread(tok scanner.Token) {
	r.pushback = append(r.pushback, tok)
}

func (r *Reader) tolerate(component string, offset int64, err error) error {
	loc := recovery.Location{ByteOffset: offset, Component: "parser:" + component}
	if r.strategy.OnError(err, loc) == recovery.ActionContinue {
		return nil
	}
	return err
}

// ReadValue parses one object value: a scalar, a reference, or a container
// with its contents.
func (r *Reader) ReadValue() (object.Object, error) {
	tok, err := r.Token()
	if err != nil {
		return nil, err
	}
	return r.value(tok)
}

func (r *Reader) value(tok scanner.Token) (object.Object, error) {
	switch tok.Type {
	case scanner.TokenNull:
		return object.Null{}, nil
	case scanner.TokenBoolean:
		return object.Bool(tok.Bool), nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return object.Integer(tok.Int), nil
		}
		return object.Real(tok.Float), nil
	case scanner.TokenString:
		return object.String{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenName:
		return object.Name(tok.Str), nil
	case scanner.TokenRef:
		return object.Reference{Ref: object.Ref{Num: int(tok.Int), Gen: tok.Gen}}, nil
	case scanner.TokenArray:
		return r.array(tok.Pos)
	case scanner.TokenDict:
		return r.dict(tok.Pos)
	default:
		return nil, object.Malformedf(tok.Pos, "unexpected token %q where a value was expected", tok.Str)
	}
}

func (r *Reader) array(start int64) (object.Object, error) {
	arr := object.NewArray()
	for {
		tok, err := r.Token()
		if err == io.EOF {
			return nil, object.Malformedf(start, "unterminated array")
		}
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "]" {
			return arr, nil
		}
		v, err := r.value(tok)
		if err != nil {
			return nil, err
		}
		arr.Append(v)
	}
}

func (r *Reader) dict(start int64) (object.Object, error) {
	d := object.NewDict()
	for {
		tok, err := r.Token()
		if err == io.EOF {
			return nil, object.Malformedf(start, "unterminated dictionary")
		}
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, object.Malformedf(tok.Pos, "dictionary key is not a name")
		}
		key := object.Name(tok.Str)
		v, err := r.ReadValue()
		if err != nil {
			return nil, err
		}
		d.Set(key, v)
	}
}

// ReadObjectAt seeks to offset and reads the indirect object found there.
// wantNum is the object number the cross-reference table promised; a
// different number in the header is reported through the recovery strategy
// and the header's own number wins.
func (r *Reader) ReadObjectAt(offset int64, wantNum int) (*Raw, error) {
	if err := r.Seek(offset); err != nil {
		return nil, err
	}
	return r.ReadObject(wantNum)
}

// ReadObject reads an 'N G obj ... endobj' block at the current position.
func (r *Reader) ReadObject(wantNum int) (*Raw, error) {
	numTok, err := r.Token()
	if err != nil {
		return nil, err
	}
	if numTok.Type != scanner.TokenNumber || !numTok.IsInt {
		return nil, object.Malformedf(numTok.Pos, "expected object number, got %q", numTok.Str)
	}
	genTok, err := r.Token()
	if err != nil {
		return nil, err
	}
	if genTok.Type != scanner.TokenNumber || !genTok.IsInt {
		return nil, object.Malformedf(genTok.Pos, "expected generation number")
	}
	objTok, err := r.Token()
	if err != nil {
		return nil, err
	}
	if objTok.Type != scanner.TokenKeyword || objTok.Str != "obj" {
		return nil, object.Malformedf(objTok.Pos, "expected obj keyword, got %q", objTok.Str)
	}
	ref := object.Ref{Num: int(numTok.Int), Gen: int(genTok.Int)}
	if wantNum >= 0 && ref.Num != wantNum {
		err := object.Malformedf(numTok.Pos, "object header says %d, cross-reference says %d", ref.Num, wantNum)
		if terr := r.tolerate("object", numTok.Pos, err); terr != nil {
			return nil, terr
		}
	}

	val, err := r.ReadValue()
	if err != nil {
		return nil, err
	}
	raw := &Raw{Ref: ref, Value: val}

	// A stream may follow a dictionary value. The scanner needs the
	// declared length before it sees the keyword; an indirect or absent
	// /Length means it must fall back to seeking the endstream marker.
	if d, ok := val.(*object.Dict); ok {
		if n, ok := d.GetInt("Length"); ok {
			r.s.SetNextStreamLength(n)
		} else {
			r.s.SetNextStreamLength(-1)
		}
	}
	defer r.s.SetNextStreamLength(-1)

	tok, err := r.Token()
	if err == io.EOF {
		terr := r.tolerate("object", r.s.Pos(), object.Malformedf(r.s.Pos(), "object %s not closed before end of file", ref))
		return raw, terr
	}
	if err != nil {
		return nil, err
	}
	if tok.Type == scanner.TokenStream {
		raw.Stream = tok.Bytes
		raw.HasStream = true
		tok, err = r.Token()
		if err == io.EOF {
			terr := r.tolerate("object", r.s.Pos(), object.Malformedf(r.s.Pos(), "object %s not closed before end of file", ref))
			return raw, terr
		}
		if err != nil {
			return nil, err
		}
	}
	if err := r.expectEndobj(tok, ref); err != nil {
		return nil, err
	}
	return raw, nil
}

// expectEndobj consumes the endobj keyword. A missing endobj is tolerated
// when the next tokens clearly begin the next file construct; anything else
// is a parse error.
func (r *Reader) expectEndobj(tok scanner.Token, ref object.Ref) error {
	if tok.Type == scanner.TokenKeyword && tok.Str == "endobj" {
		return nil
	}
	if nextConstructStarts(tok) {
		r.Unread(tok)
		return r.tolerate("object", tok.Pos, object.Malformedf(tok.Pos, "object %s is missing endobj", ref))
	}
	return object.Malformedf(tok.Pos, "expected endobj after object %s, got %q", ref, tok.Str)
}

// nextConstructStarts reports whether tok plausibly begins the next
// top-level construct: another object header, a cross-reference section, or
// a trailer.
func nextConstructStarts(tok scanner.Token) bool {
	switch tok.Type {
	case scanner.TokenNumber:
		return tok.IsInt && tok.Int >= 0
	case scanner.TokenKeyword:
		return tok.Str == "xref" || tok.Str == "trailer" || tok.Str == "startxref"
	default:
		return false
	}
}
