package document

import (
	"bytes"
	"regexp"

	pkgerrors "github.com/pkg/errors"

	"github.com/scribd/keynote/filters"
	"github.com/scribd/keynote/object"
	"github.com/scribd/keynote/observability"
	"github.com/scribd/keynote/parser"
	"github.com/scribd/keynote/recovery"
	"github.com/scribd/keynote/security"
	"github.com/scribd/keynote/xref"
)

// Document is a loaded file: its bytes, cross-reference table, lazily
// resolved object cache, and the flattened list of pages.
type Document struct {
	data     []byte
	table    *xref.Table
	cache    map[int]*Object
	nextNum  int
	registry *filters.Registry
	strategy recovery.Strategy
	log      observability.Logger
	handler  *security.StandardHandler
	password []byte
	fileID   []byte
	onChange func(*Object)

	// Major and Minor hold the format version from the header; new
	// documents default to 1.4.
	Major, Minor int

	rootRef object.Ref
	trailer *object.Dict

	// Pages is the flattened page list in document order.
	Pages []*Page
}

// Option configures loading and document behavior.
type Option func(*Document)

// WithLogger routes diagnostics about tolerated irregularities to log.
func WithLogger(log observability.Logger) Option {
	return func(d *Document) { d.log = log }
}

// WithStrategy overrides the default lenient recovery strategy.
func WithStrategy(s recovery.Strategy) Option {
	return func(d *Document) { d.strategy = s }
}

// WithPassword supplies the user password for encrypted files.
func WithPassword(password []byte) Option {
	return func(d *Document) { d.password = password }
}

// WithRegistry replaces the stream filter registry.
func WithRegistry(r *filters.Registry) Option {
	return func(d *Document) { d.registry = r }
}

// WithChangeHook registers fn to run whenever an object's stream payload is
// mutated.
func WithChangeHook(fn func(*Object)) Option {
	return func(d *Document) { d.onChange = fn }
}

// New starts an empty document with no pages.
func New(opts ...Option) *Document {
	d := &Document{
		cache:    make(map[int]*Object),
		nextNum:  1,
		registry: filters.NewRegistry(),
		log:      observability.NopLogger{},
		Major:    1,
		Minor:    4,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.strategy == nil {
		d.strategy = recovery.NewLenientStrategy(d.log)
	}
	return d
}

var versionRe = regexp.MustCompile(`%PDF-(\d)\.(\d)`)

// Load parses a complete file held in memory. Irregular files are repaired
// where possible under the default lenient strategy; pass a strict strategy
// to refuse them instead.
func Load(data []byte, opts ...Option) (*Document, error) {
	d := New(opts...)
	d.data = data

	if m := versionRe.FindSubmatch(data); m != nil {
		d.Major = int(m[1][0] - '0')
		d.Minor = int(m[2][0] - '0')
	} else if err := d.tolerate(0, object.Malformedf(0, "file has no version header")); err != nil {
		return nil, err
	}

	table, err := xref.Load(data, d.registry, d.strategy)
	if err != nil {
		return nil, err
	}
	d.table = table
	d.trailer = table.Trailer
	d.nextNum = table.MaxNum() + 1
	if size, ok := d.trailer.GetInt("Size"); ok && int(size) > d.nextNum {
		d.nextNum = int(size)
	}
	root, ok := d.trailer.GetRef("Root")
	if !ok {
		return nil, object.Malformedf(0, "trailer has no /Root")
	}
	d.rootRef = root

	if err := d.setupEncryption(); err != nil {
		return nil, err
	}
	if err := d.flattenPages(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Document) tolerate(offset int64, err error) error {
	loc := recovery.Location{ByteOffset: offset, Component: "document"}
	if d.strategy.OnError(err, loc) == recovery.ActionContinue {
		return nil
	}
	return err
}

// setupEncryption builds the security handler from the trailer's /Encrypt
// entry and the first file identifier string.
func (d *Document) setupEncryption() error {
	encVal, ok := d.trailer.Get("Encrypt")
	if !ok {
		return nil
	}
	var encDict *object.Dict
	switch v := encVal.(type) {
	case object.Reference:
		obj, err := d.GetObject(v.Ref.Num)
		if err != nil {
			return err
		}
		encDict = obj.Dict()
	case *object.Dict:
		encDict = v
	}
	if encDict == nil {
		return object.Malformedf(0, "trailer /Encrypt is not a dictionary")
	}

	if ids, ok := d.trailer.GetArray("ID"); ok && ids.Len() > 0 {
		if s, ok := ids.At(0).(object.String); ok {
			d.fileID = s.Bytes
		}
	}

	h, err := security.NewStandardHandler(encDict, d.fileID, d.password)
	if err != nil {
		return err
	}
	d.handler = h
	return nil
}

// GetObject resolves the object with the given number, caching the result.
// An object number the cross-reference data does not define is an error.
func (d *Document) GetObject(num int) (*Object, error) {
	if obj, ok := d.cache[num]; ok {
		return obj, nil
	}
	loc, ok := d.table.Get(num)
	if !ok {
		return nil, pkgerrors.Errorf("document: object %d is not defined", num)
	}
	var obj *Object
	var err error
	switch loc.Kind {
	case xref.InFile:
		obj, err = d.loadFromFile(num, loc)
	case xref.InStream:
		obj, err = d.loadFromStream(num, loc)
	}
	if err != nil {
		return nil, err
	}
	d.cache[num] = obj
	return obj, nil
}

func (d *Document) loadFromFile(num int, loc xref.Location) (*Object, error) {
	p := parser.New(d.data, d.strategy)
	raw, err := p.ReadObjectAt(loc.Offset, num)
	if err != nil {
		return nil, err
	}
	obj := &Object{doc: d, ref: raw.Ref, val: raw.Value}
	if !raw.HasStream {
		return obj, nil
	}
	obj.stream = raw.Stream
	obj.hasStream = true

	dict := obj.Dict()
	names, parms, err := filters.Chain(dict)
	if err != nil {
		return nil, err
	}
	obj.filters = names
	obj.parms = parms
	dict.Delete("Length")
	dict.Delete("Filter")
	dict.Delete("DecodeParms")

	// Cross-reference streams are written before encryption applies;
	// everything else carrying a payload is encrypted in a protected
	// file.
	if d.handler != nil && obj.Type() != "XRef" {
		obj.encrypted = true
	}
	return obj, nil
}

// loadFromStream pulls an object out of its compressed container.
func (d *Document) loadFromStream(num int, loc xref.Location) (*Object, error) {
	container, err := d.GetObject(loc.Container)
	if err != nil {
		return nil, err
	}
	if container.Type() != "ObjStm" {
		return nil, object.Malformedf(0, "object %d claims to live in object %d, which is not an object stream", num, loc.Container)
	}
	if err := container.Decompress(); err != nil {
		return nil, err
	}
	if len(container.OutstandingFilters()) > 0 {
		return nil, pkgerrors.Errorf("document: object stream %d uses unsupported filter /%s", loc.Container, string(container.OutstandingFilters()[0]))
	}
	dict := container.Dict()
	n, ok := dict.GetInt("N")
	if !ok {
		return nil, object.Malformedf(0, "object stream %d has no /N", loc.Container)
	}
	first, ok := dict.GetInt("First")
	if !ok {
		return nil, object.Malformedf(0, "object stream %d has no /First", loc.Container)
	}
	val, err := parser.ReadCompressed(container.Stream(), int(n), first, num, d.strategy)
	if err != nil {
		return nil, err
	}
	// Objects inside a stream always have generation zero and are covered
	// by the container's decryption.
	return &Object{doc: d, ref: object.Ref{Num: num}, val: val}, nil
}

// Resolve follows reference chains until a direct value remains. A missing
// target is an error; a chain deeper than the guard limit is treated as a
// loop.
func (d *Document) Resolve(v object.Object) (object.Object, error) {
	for depth := 0; depth < 32; depth++ {
		ref, ok := v.(object.Reference)
		if !ok {
			return v, nil
		}
		obj, err := d.GetObject(ref.Ref.Num)
		if err != nil {
			return nil, err
		}
		v = obj.Value()
	}
	return nil, pkgerrors.New("document: reference chain does not terminate")
}

// CreateObject allocates a fresh object with the next free number.
func (d *Document) CreateObject() *Object {
	obj := &Object{doc: d, ref: object.Ref{Num: d.nextNum}, val: object.Null{}}
	d.nextNum++
	d.cache[obj.ref.Num] = obj
	return obj
}

// AddObject allocates a fresh object holding val.
func (d *Document) AddObject(val object.Object) *Object {
	obj := d.CreateObject()
	obj.val = val
	return obj
}

// Objects loads and returns every defined object in number order, followed
// by objects created in memory.
func (d *Document) Objects() ([]*Object, error) {
	var out []*Object
	seen := make(map[int]bool)
	if d.table != nil {
		for _, num := range d.table.Nums() {
			obj, err := d.GetObject(num)
			if err != nil {
				if terr := d.tolerate(0, err); terr != nil {
					return nil, terr
				}
				continue
			}
			out = append(out, obj)
			seen[num] = true
		}
	}
	for num := 1; num < d.nextNum; num++ {
		if obj, ok := d.cache[num]; ok && !seen[num] {
			out = append(out, obj)
		}
	}
	return out, nil
}

// ObjectsOfType returns all objects whose dictionary /Type matches name.
func (d *Document) ObjectsOfType(name object.Name) ([]*Object, error) {
	all, err := d.Objects()
	if err != nil {
		return nil, err
	}
	var out []*Object
	for _, obj := range all {
		if obj.Type() == name {
			out = append(out, obj)
		}
	}
	return out, nil
}

// ObjectsOfSubtype returns all objects whose dictionary /Subtype matches
// name.
func (d *Document) ObjectsOfSubtype(name object.Name) ([]*Object, error) {
	all, err := d.Objects()
	if err != nil {
		return nil, err
	}
	var out []*Object
	for _, obj := range all {
		if obj.Subtype() == name {
			out = append(out, obj)
		}
	}
	return out, nil
}

// Images returns every object with /Subtype /Image.
func (d *Document) Images() ([]*Object, error) {
	return d.ObjectsOfSubtype("Image")
}

// Decompress decodes every stream payload in the document as far as the
// registered filters allow. Payloads that fail to decode are reported
// through the recovery strategy.
func (d *Document) Decompress() error {
	all, err := d.Objects()
	if err != nil {
		return err
	}
	for _, obj := range all {
		if !obj.HasStream() {
			continue
		}
		if err := obj.Decompress(); err != nil {
			if terr := d.tolerate(0, err); terr != nil {
				return terr
			}
		}
	}
	return nil
}

// FileID returns the first file identifier string, or nil.
func (d *Document) FileID() []byte { return bytes.Clone(d.fileID) }
