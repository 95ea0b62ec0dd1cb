package xref

import (
	"bytes"
	"encoding/binary"

	"github.com/scribd/keynote/filters"
	"github.com/scribd/keynote/object"
	"github.com/scribd/keynote/parser"
	"github.com/scribd/keynote/recovery"
	"github.com/scribd/keynote/scanner"
)

// Load resolves the complete cross-reference data for a file held in memory.
// It follows the startxref pointer through the /Prev chain, merging sections
// newest-first, and falls back to scanning the whole file for object headers
// when the tables are broken. The registry decodes cross-reference stream
// payloads.
func Load(data []byte, registry *filters.Registry, strategy recovery.Strategy) (*Table, error) {
	if strategy == nil {
		strategy = recovery.NewStrictStrategy()
	}
	r := &resolver{
		data:     data,
		registry: registry,
		strategy: strategy,
		table:    NewTable(),
		visited:  make(map[int64]bool),
	}

	// Junk before the %PDF header shifts every stored offset by the
	// header position.
	probe := data
	if len(probe) > 1024 {
		probe = probe[:1024]
	}
	if i := bytes.Index(probe, []byte("%PDF-")); i > 0 {
		r.delta = int64(i)
	} else if i < 0 {
		if err := r.tolerate(0, object.Malformedf(0, "file has no %%PDF header")); err != nil {
			return nil, err
		}
	}

	start, err := r.findStartXref()
	if err == nil {
		err = r.chain(start)
	}
	if err == nil && !r.verifyOffsets() {
		err = object.Malformedf(start, "cross-reference offsets do not land on object headers")
	}
	if err == nil && !r.trailerComplete() {
		err = object.Malformedf(start, "cross-reference chain yields no trailer with /Root")
	}
	if err != nil {
		if terr := r.tolerate(start, err); terr != nil {
			return nil, terr
		}
		return r.reconstruct()
	}
	return r.table, nil
}

type resolver struct {
	data     []byte
	registry *filters.Registry
	strategy recovery.Strategy
	table    *Table
	delta    int64
	visited  map[int64]bool
}

func (r *resolver) tolerate(offset int64, err error) error {
	loc := recovery.Location{ByteOffset: offset, Component: "xref"}
	if r.strategy.OnError(err, loc) == recovery.ActionContinue {
		return nil
	}
	return err
}

// findStartXref locates the last startxref keyword near the end of the file
// and returns the offset it points at.
func (r *resolver) findStartXref() (int64, error) {
	tail := r.data
	const window = 2048
	base := 0
	if len(tail) > window {
		base = len(tail) - window
		tail = tail[base:]
	}
	i := bytes.LastIndex(tail, []byte("startxref"))
	if i < 0 {
		return 0, object.Malformedf(int64(len(r.data)), "no startxref keyword near end of file")
	}
	p := parser.New(r.data, r.strategy)
	if err := p.Seek(int64(base + i + len("startxref"))); err != nil {
		return 0, err
	}
	tok, err := p.Token()
	if err != nil || tok.Type != scanner.TokenNumber || !tok.IsInt || tok.Int < 0 {
		return 0, object.Malformedf(int64(base+i), "startxref is not followed by an offset")
	}
	return tok.Int, nil
}

// chain parses the section at offset and every /Prev section behind it.
func (r *resolver) chain(offset int64) error {
	for offset >= 0 {
		if r.visited[offset] {
			return r.tolerate(offset, object.Malformedf(offset, "cross-reference /Prev chain loops at offset %d", offset))
		}
		r.visited[offset] = true
		prev, err := r.section(offset)
		if err != nil {
			return err
		}
		offset = prev
	}
	return nil
}

// section parses one cross-reference section, trying the stored offset
// first, then the header-shifted offset, then a short nudge window around
// the stored offset. It returns the /Prev offset or -1.
func (r *resolver) section(offset int64) (int64, error) {
	candidates := []int64{offset}
	if r.delta > 0 {
		candidates = append(candidates, offset+r.delta)
	}
	var firstErr error
	for _, off := range candidates {
		prev, err := r.sectionAt(off)
		if err == nil {
			if off != offset {
				if terr := r.tolerate(offset, object.Malformedf(offset, "cross-reference section found %d bytes past its stored offset", off-offset)); terr != nil {
					return 0, terr
				}
			}
			return prev, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if off, ok := r.nudge(offset); ok {
		if terr := r.tolerate(offset, object.Malformedf(offset, "cross-reference keyword found near, not at, its stored offset")); terr != nil {
			return 0, terr
		}
		return r.sectionAt(off)
	}
	return 0, firstErr
}

// nudge searches a small window around offset for the xref keyword.
func (r *resolver) nudge(offset int64) (int64, bool) {
	lo := offset - 50
	if lo < 0 {
		lo = 0
	}
	hi := offset + 50
	if hi > int64(len(r.data)) {
		hi = int64(len(r.data))
	}
	if lo >= hi {
		return 0, false
	}
	i := bytes.Index(r.data[lo:hi], []byte("xref"))
	if i < 0 {
		return 0, false
	}
	at := lo + int64(i)
	// 'startxref' contains 'xref'; skip it.
	if at >= 5 && bytes.Equal(r.data[at-5:at], []byte("start")) {
		return 0, false
	}
	return at, true
}

func (r *resolver) sectionAt(offset int64) (int64, error) {
	p := parser.New(r.data, r.strategy)
	if err := p.Seek(offset); err != nil {
		return 0, err
	}
	tok, err := p.Token()
	if err != nil {
		return 0, err
	}
	if tok.Type == scanner.TokenKeyword && tok.Str == "xref" {
		return r.classicSection(p)
	}
	if tok.Type == scanner.TokenNumber && tok.IsInt {
		p.Unread(tok)
		return r.streamSection(p, offset)
	}
	return 0, object.Malformedf(offset, "no cross-reference section at offset %d", offset)
}

// classicSection parses the subsections and trailer of a classic table.
func (r *resolver) classicSection(p *parser.Reader) (int64, error) {
	for {
		tok, err := p.Token()
		if err != nil {
			return 0, object.Malformedf(p.Pos(), "cross-reference table ends without a trailer")
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			v, err := p.ReadValue()
			if err != nil {
				return 0, err
			}
			d, ok := v.(*object.Dict)
			if !ok {
				return 0, object.Malformedf(tok.Pos, "trailer is not a dictionary")
			}
			r.mergeTrailer(d)
			if prev, ok := d.GetInt("Prev"); ok {
				return prev, nil
			}
			return -1, nil
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			return 0, object.Malformedf(tok.Pos, "expected subsection header or trailer in cross-reference table")
		}
		start := int(tok.Int)
		countTok, err := p.Token()
		if err != nil || !countTok.IsInt {
			return 0, object.Malformedf(tok.Pos, "cross-reference subsection header is missing its count")
		}
		for i := 0; i < int(countTok.Int); i++ {
			offTok, err := p.Token()
			if err != nil || !offTok.IsInt {
				return 0, object.Malformedf(p.Pos(), "truncated cross-reference entry")
			}
			genTok, err := p.Token()
			if err != nil || !genTok.IsInt {
				return 0, object.Malformedf(p.Pos(), "truncated cross-reference entry")
			}
			flagTok, err := p.Token()
			if err != nil || flagTok.Type != scanner.TokenKeyword {
				return 0, object.Malformedf(p.Pos(), "cross-reference entry is missing its n/f flag")
			}
			num := start + i
			switch flagTok.Str {
			case "n":
				r.table.SetIfAbsent(num, Location{Kind: InFile, Offset: offTok.Int, Gen: int(genTok.Int)})
			case "f":
				r.table.MarkFreeIfAbsent(num)
			default:
				return 0, object.Malformedf(flagTok.Pos, "cross-reference entry flag %q is not n or f", flagTok.Str)
			}
		}
	}
}

// streamSection parses a cross-reference stream object.
func (r *resolver) streamSection(p *parser.Reader, offset int64) (int64, error) {
	raw, err := p.ReadObjectAt(offset, -1)
	if err != nil {
		return 0, err
	}
	d, ok := raw.Value.(*object.Dict)
	if !ok || !raw.HasStream {
		return 0, object.Malformedf(offset, "object at cross-reference offset carries no stream")
	}
	if typ, _ := d.GetName("Type"); typ != "XRef" {
		return 0, object.Malformedf(offset, "stream at cross-reference offset is not /Type /XRef")
	}
	payload, err := decodeAll(raw.Stream, d, r.registry)
	if err != nil {
		return 0, err
	}

	wArr, ok := d.GetArray("W")
	if !ok || wArr.Len() != 3 {
		return 0, object.Malformedf(offset, "cross-reference stream has no three-element /W")
	}
	var w [3]int
	for i := 0; i < 3; i++ {
		n, ok := wArr.At(i).(object.Integer)
		if !ok || n < 0 || n > 4 {
			return 0, object.Malformedf(offset, "cross-reference stream /W widths out of range")
		}
		w[i] = int(n)
	}
	rowSize := w[0] + w[1] + w[2]
	if rowSize == 0 {
		return 0, object.Malformedf(offset, "cross-reference stream rows are empty")
	}

	size, ok := d.GetInt("Size")
	if !ok {
		return 0, object.Malformedf(offset, "cross-reference stream has no /Size")
	}
	type span struct{ start, count int }
	var spans []span
	if idxArr, ok := d.GetArray("Index"); ok {
		if idxArr.Len()%2 != 0 {
			return 0, object.Malformedf(offset, "cross-reference stream /Index has odd length")
		}
		for i := 0; i < idxArr.Len(); i += 2 {
			s, ok1 := idxArr.At(i).(object.Integer)
			c, ok2 := idxArr.At(i + 1).(object.Integer)
			if !ok1 || !ok2 {
				return 0, object.Malformedf(offset, "cross-reference stream /Index is not integers")
			}
			spans = append(spans, span{int(s), int(c)})
		}
	} else {
		spans = []span{{0, int(size)}}
	}

	pos := 0
	for _, sp := range spans {
		for i := 0; i < sp.count; i++ {
			if pos+rowSize > len(payload) {
				return 0, object.Malformedf(offset, "cross-reference stream payload is shorter than its /Index promises")
			}
			typ := int64(1)
			if w[0] > 0 {
				typ = beField(payload[pos : pos+w[0]])
			}
			f2 := beField(payload[pos+w[0] : pos+w[0]+w[1]])
			f3 := beField(payload[pos+w[0]+w[1] : pos+rowSize])
			pos += rowSize
			num := sp.start + i
			switch typ {
			case 0:
				r.table.MarkFreeIfAbsent(num)
			case 1:
				r.table.SetIfAbsent(num, Location{Kind: InFile, Offset: f2, Gen: int(f3)})
			case 2:
				r.table.SetIfAbsent(num, Location{Kind: InStream, Container: int(f2), Index: int(f3)})
			default:
				// Unknown entry types are reserved; treat as free.
				r.table.MarkFreeIfAbsent(num)
			}
		}
	}

	r.mergeTrailer(d)
	if prev, ok := d.GetInt("Prev"); ok {
		return prev, nil
	}
	return -1, nil
}

// beField reads a big-endian unsigned field of up to four bytes.
func beField(b []byte) int64 {
	var buf [4]byte
	copy(buf[4-len(b):], b)
	return int64(binary.BigEndian.Uint32(buf[:]))
}

// mergeTrailer folds a section dictionary into the accumulated trailer.
// Sections are visited newest-first, so existing keys win.
func (r *resolver) mergeTrailer(d *object.Dict) {
	if r.table.Trailer == nil {
		r.table.Trailer = object.NewDict()
	}
	for _, k := range d.Keys() {
		if !r.table.Trailer.Has(k) {
			v, _ := d.Get(k)
			r.table.Trailer.Set(k, v)
		}
	}
}

func (r *resolver) trailerComplete() bool {
	if r.table.Trailer == nil {
		return false
	}
	_, ok := r.table.Trailer.GetRef("Root")
	return ok
}

// verifyOffsets checks every in-file entry points at a plausible object
// header, repairing entries shifted by a junk preamble. Object number
// mismatches are left for load time; only structurally wrong offsets fail.
func (r *resolver) verifyOffsets() bool {
	for _, num := range r.table.Nums() {
		loc, _ := r.table.Get(num)
		if loc.Kind != InFile {
			continue
		}
		if headerAt(r.data, loc.Offset) {
			continue
		}
		if r.delta > 0 && headerAt(r.data, loc.Offset+r.delta) {
			loc.Offset += r.delta
			r.table.Set(num, loc)
			continue
		}
		return false
	}
	return true
}

// headerAt reports whether an 'N G obj' header starts at offset.
func headerAt(data []byte, offset int64) bool {
	p := parser.New(data, recovery.NewStrictStrategy())
	if err := p.Seek(offset); err != nil {
		return false
	}
	numTok, err := p.Token()
	if err != nil || numTok.Type != scanner.TokenNumber || !numTok.IsInt {
		return false
	}
	genTok, err := p.Token()
	if err != nil || genTok.Type != scanner.TokenNumber || !genTok.IsInt {
		return false
	}
	objTok, err := p.Token()
	return err == nil && objTok.Type == scanner.TokenKeyword && objTok.Str == "obj"
}

// decodeAll runs a stream payload through its whole filter chain. Unlike
// document streams, a cross-reference stream must decode completely or the
// file cannot be read.
func decodeAll(payload []byte, d *object.Dict, registry *filters.Registry) ([]byte, error) {
	names, parms, err := filters.Chain(d)
	if err != nil {
		return nil, err
	}
	for i, name := range names {
		dec := registry.Lookup(name)
		if dec == nil {
			return nil, object.Malformedf(0, "cross-reference stream uses unsupported filter /%s", string(name))
		}
		payload, err = dec.Decode(payload, parms[i])
		if err != nil {
			return nil, err
		}
	}
	return payload, nil
}
