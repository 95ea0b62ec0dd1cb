// Package object defines the PDF value model: the identifier type and the
// closed set of value variants that appear inside PDF objects.
package object

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Ref identifies an indirect PDF object by object number and generation.
//
// Table lookups and caching key on the object number alone: two refs that
// differ only in generation address the same object. This matches how the
// engine treats single-revision files; documents that genuinely reuse object
// numbers across generations are handled on a newest-definition-wins basis.
type Ref struct {
	Num int
	Gen int
}

func (r Ref) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// IsZero reports whether the ref is unassigned.
func (r Ref) IsZero() bool { return r.Num == 0 && r.Gen == 0 }

// Kind discriminates the value variants.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInteger
	KindReal
	KindString
	KindName
	KindArray
	KindDict
	KindReference
)

// Object is the closed variant over PDF values. The concrete types below are
// the only implementations.
type Object interface {
	Kind() Kind
}

type Null struct{}

func (Null) Kind() Kind { return KindNull }

type Bool bool

func (Bool) Kind() Kind { return KindBool }

type Integer int64

func (Integer) Kind() Kind { return KindInteger }

type Real float64

func (Real) Kind() Kind { return KindReal }

// String is a PDF string. Bytes holds the decoded payload; Hex records
// whether the source used the hexadecimal form, so the writer can keep it.
type String struct {
	Bytes []byte
	Hex   bool
}

func (String) Kind() Kind { return KindString }

// Name is a PDF name with the leading slash already stripped. Construct
// names through MakeName so the prefix is normalized exactly once.
type Name string

func (Name) Kind() Kind { return KindName }

// MakeName normalizes a name token, dropping a single leading slash.
func MakeName(s string) Name {
	return Name(strings.TrimPrefix(s, "/"))
}

func (n Name) String() string { return "/" + string(n) }

// Reference is a use of an indirect object inside a value tree.
type Reference struct {
	Ref Ref
}

func (Reference) Kind() Kind { return KindReference }

// Array is an ordered sequence of values.
type Array struct {
	Items []Object
}

func (*Array) Kind() Kind { return KindArray }

func NewArray(items ...Object) *Array { return &Array{Items: items} }

func (a *Array) Len() int { return len(a.Items) }

func (a *Array) At(i int) Object {
	if i < 0 || i >= len(a.Items) {
		return Null{}
	}
	return a.Items[i]
}

func (a *Array) Append(items ...Object)  { a.Items = append(a.Items, items...) }
func (a *Array) Prepend(items ...Object) { a.Items = append(items, a.Items...) }

// Clone returns a shallow copy with its own item slice.
func (a *Array) Clone() *Array {
	items := make([]Object, len(a.Items))
	copy(items, a.Items)
	return &Array{Items: items}
}

// Dict maps names to values. Key order is not significant; the writer emits
// keys sorted for deterministic output.
type Dict struct {
	m map[Name]Object
}

func (*Dict) Kind() Kind { return KindDict }

func NewDict() *Dict { return &Dict{m: make(map[Name]Object)} }

func (d *Dict) Get(key Name) (Object, bool) {
	if d == nil || d.m == nil {
		return nil, false
	}
	v, ok := d.m[key]
	return v, ok
}

func (d *Dict) Set(key Name, v Object) {
	if d.m == nil {
		d.m = make(map[Name]Object)
	}
	d.m[key] = v
}

func (d *Dict) Delete(key Name) {
	if d != nil && d.m != nil {
		delete(d.m, key)
	}
}

func (d *Dict) Has(key Name) bool {
	_, ok := d.Get(key)
	return ok
}

func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.m)
}

// Keys returns the dictionary keys in sorted order.
func (d *Dict) Keys() []Name {
	if d == nil {
		return nil
	}
	keys := make([]Name, 0, len(d.m))
	for k := range d.m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Clone returns a copy sharing the values but not the map.
func (d *Dict) Clone() *Dict {
	out := NewDict()
	if d != nil {
		for k, v := range d.m {
			out.m[k] = v
		}
	}
	return out
}

// Typed accessors. Each returns the zero value and false when the key is
// absent or holds a different variant.

func (d *Dict) GetInt(key Name) (int64, bool) {
	if v, ok := d.Get(key); ok {
		if n, ok := v.(Integer); ok {
			return int64(n), true
		}
	}
	return 0, false
}

func (d *Dict) GetNumber(key Name) (float64, bool) {
	switch v, _ := d.Get(key); n := v.(type) {
	case Integer:
		return float64(n), true
	case Real:
		return float64(n), true
	}
	return 0, false
}

func (d *Dict) GetName(key Name) (Name, bool) {
	if v, ok := d.Get(key); ok {
		if n, ok := v.(Name); ok {
			return n, true
		}
	}
	return "", false
}

func (d *Dict) GetBool(key Name) (bool, bool) {
	if v, ok := d.Get(key); ok {
		if b, ok := v.(Bool); ok {
			return bool(b), true
		}
	}
	return false, false
}

func (d *Dict) GetString(key Name) ([]byte, bool) {
	if v, ok := d.Get(key); ok {
		if s, ok := v.(String); ok {
			return s.Bytes, true
		}
	}
	return nil, false
}

func (d *Dict) GetArray(key Name) (*Array, bool) {
	if v, ok := d.Get(key); ok {
		if a, ok := v.(*Array); ok {
			return a, true
		}
	}
	return nil, false
}

func (d *Dict) GetDict(key Name) (*Dict, bool) {
	if v, ok := d.Get(key); ok {
		if sub, ok := v.(*Dict); ok {
			return sub, true
		}
	}
	return nil, false
}

func (d *Dict) GetRef(key Name) (Ref, bool) {
	if v, ok := d.Get(key); ok {
		if r, ok := v.(Reference); ok {
			return r.Ref, true
		}
	}
	return Ref{}, false
}

// FormatReal renders a real number the way the writer emits it: shortest
// decimal form without an exponent.
func FormatReal(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	return s
}
