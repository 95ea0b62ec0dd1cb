// Package document ties the lower layers together: it loads a file through
// its cross-reference data, resolves objects lazily with a cache, decrypts
// and decodes stream payloads, flattens the page tree, and writes documents
// back out.
package document

import (
	pkgerrors "github.com/pkg/errors"

	"github.com/scribd/keynote/object"
)

// Object is one indirect object bound to its document. Stream-bearing
// objects track their outstanding filter chain and whether the payload is
// still encrypted; /Length, /Filter, and /DecodeParms are held here rather
// than in the dictionary and are rebuilt on write.
type Object struct {
	doc       *Document
	ref       object.Ref
	val       object.Object
	stream    []byte
	hasStream bool
	encrypted bool

	// Filter chain with a cursor instead of destructive removal, so the
	// original chain stays known for diagnostics and rewriting.
	filters    []object.Name
	parms      []*object.Dict
	nextFilter int
}

func (o *Object) Ref() object.Ref     { return o.ref }
func (o *Object) Value() object.Object { return o.val }

// Dict returns the object's dictionary value, or nil when the value is not
// a dictionary.
func (o *Object) Dict() *object.Dict {
	d, _ := o.val.(*object.Dict)
	return d
}

func (o *Object) HasStream() bool { return o.hasStream }

// Stream returns the payload in its current state: encoded until Decompress
// has run, decoded afterwards.
func (o *Object) Stream() []byte { return o.stream }

// SetStream replaces the payload with plain data, clearing any filter chain
// and encryption state.
func (o *Object) SetStream(data []byte) {
	o.stream = data
	o.hasStream = true
	o.encrypted = false
	o.filters = nil
	o.parms = nil
	o.nextFilter = 0
	o.changed()
}

// OutstandingFilters returns the filters that have not been applied yet.
func (o *Object) OutstandingFilters() []object.Name {
	return o.filters[o.nextFilter:]
}

// Type returns the dictionary's /Type name, or the empty name.
func (o *Object) Type() object.Name {
	if d := o.Dict(); d != nil {
		if t, ok := d.GetName("Type"); ok {
			return t
		}
	}
	return ""
}

// Subtype returns the dictionary's /Subtype name, or the empty name.
func (o *Object) Subtype() object.Name {
	if d := o.Dict(); d != nil {
		if t, ok := d.GetName("Subtype"); ok {
			return t
		}
	}
	return ""
}

// decrypt removes the encryption layer from the payload. It must run before
// any filter is applied.
func (o *Object) decrypt() {
	if !o.encrypted {
		return
	}
	if o.doc != nil && o.doc.handler != nil {
		o.stream = o.doc.handler.Crypt(o.ref, o.stream)
	}
	o.encrypted = false
}

// Decompress decrypts the payload if needed and then applies filters in
// order. An unregistered filter stops the chain quietly, leaving it and the
// filters behind it outstanding; a filter that fails to decode is an error.
func (o *Object) Decompress() error {
	if !o.hasStream {
		return nil
	}
	o.decrypt()
	for o.nextFilter < len(o.filters) {
		name := o.filters[o.nextFilter]
		dec := o.doc.registry.Lookup(name)
		if dec == nil {
			return nil
		}
		out, err := dec.Decode(o.stream, o.parms[o.nextFilter])
		if err != nil {
			return pkgerrors.Wrapf(err, "document: decode /%s of object %s", string(name), o.ref)
		}
		o.stream = out
		o.nextFilter++
		o.changed()
	}
	return nil
}

func (o *Object) changed() {
	if o.doc != nil && o.doc.onChange != nil {
		o.doc.onChange(o)
	}
}
