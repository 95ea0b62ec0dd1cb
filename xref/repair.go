package xref

import (
	"bytes"
	"regexp"

	"github.com/scribd/keynote/object"
	"github.com/scribd/keynote/parser"
	"github.com/scribd/keynote/scanner"
)

var objHeaderRe = regexp.MustCompile(`[^0-9]?(\d+)[ \t\r\n]+(\d+)[ \t\r\n]+obj\b`)

// reconstruct rebuilds the table by scanning the whole file for object
// headers. When the same number appears more than once the later definition
// wins, matching the effect of incremental updates. The trailer comes from
// the last trailer dictionary carrying /Root, or failing that from the
// document catalog itself.
func (r *resolver) reconstruct() (*Table, error) {
	t := NewTable()
	for _, m := range objHeaderRe.FindAllSubmatchIndex(r.data, -1) {
		numStart, numEnd := m[2], m[3]
		genStart, genEnd := m[4], m[5]
		num := atoiBytes(r.data[numStart:numEnd])
		gen := atoiBytes(r.data[genStart:genEnd])
		t.Set(num, Location{Kind: InFile, Offset: int64(numStart), Gen: gen})
	}
	if t.Len() == 0 {
		return nil, object.Malformedf(0, "no object headers found while reconstructing cross-reference data")
	}

	t.Trailer = r.reconstructTrailer(t)
	if t.Trailer == nil {
		return nil, object.Malformedf(0, "no trailer with /Root found while reconstructing cross-reference data")
	}
	if !t.Trailer.Has("Size") {
		t.Trailer.Set("Size", object.Integer(int64(t.MaxNum()+1)))
	}
	return t, nil
}

func (r *resolver) reconstructTrailer(t *Table) *object.Dict {
	// Walk trailer keywords back to front; the newest one with /Root wins.
	for end := len(r.data); end > 0; {
		i := bytes.LastIndex(r.data[:end], []byte("trailer"))
		if i < 0 {
			break
		}
		end = i
		p := parser.New(r.data, r.strategy)
		if err := p.Seek(int64(i + len("trailer"))); err != nil {
			continue
		}
		v, err := p.ReadValue()
		if err != nil {
			continue
		}
		if d, ok := v.(*object.Dict); ok {
			if _, ok := d.GetRef("Root"); ok {
				return d
			}
		}
	}

	// Files written with cross-reference streams have no trailer keyword;
	// find the catalog and synthesize one.
	for _, num := range t.Nums() {
		loc, _ := t.Get(num)
		if loc.Kind != InFile {
			continue
		}
		if !dictAtIsCatalog(r.data, loc.Offset) {
			continue
		}
		d := object.NewDict()
		d.Set("Root", object.Reference{Ref: object.Ref{Num: num, Gen: loc.Gen}})
		return d
	}
	return nil
}

func dictAtIsCatalog(data []byte, offset int64) bool {
	p := parser.New(data, nil)
	if err := p.Seek(offset); err != nil {
		return false
	}
	// Header tokens, then the value.
	for i := 0; i < 3; i++ {
		if _, err := p.Token(); err != nil {
			return false
		}
	}
	tok, err := p.Token()
	if err != nil || tok.Type != scanner.TokenDict {
		return false
	}
	p.Unread(tok)
	v, err := p.ReadValue()
	if err != nil {
		return false
	}
	d, ok := v.(*object.Dict)
	if !ok {
		return false
	}
	typ, _ := d.GetName("Type")
	return typ == "Catalog"
}

func atoiBytes(b []byte) int {
	n := 0
	for _, c := range b {
		n = n*10 + int(c-'0')
	}
	return n
}
