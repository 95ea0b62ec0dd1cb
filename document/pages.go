package document

import (
	"github.com/scribd/keynote/object"
	"github.com/scribd/keynote/observability"
)

// Page is one flattened page. Flattening strips /Parent and discards the
// intermediate tree nodes, so the ancestor dictionaries are captured here
// for inheritable attributes.
type Page struct {
	*Object
	ancestors []*object.Dict // root-first
}

// Rect is an axis-aligned rectangle with its lower-left and upper-right
// corners.
type Rect struct {
	LLX, LLY, URX, URY float64
}

func (r Rect) Width() float64  { return r.URX - r.LLX }
func (r Rect) Height() float64 { return r.URY - r.LLY }

// flattenPages walks the page tree into d.Pages, removing the tree nodes
// and the pages themselves from the table and cache. Pages exist only in
// d.Pages afterwards and are written back under fresh numbers.
func (d *Document) flattenPages() error {
	rootObj, err := d.GetObject(d.rootRef.Num)
	if err != nil {
		return err
	}
	rootDict := rootObj.Dict()
	if rootDict == nil {
		return object.Malformedf(0, "document catalog is not a dictionary")
	}
	pagesRef, ok := rootDict.GetRef("Pages")
	if !ok {
		return d.tolerate(0, object.Malformedf(0, "catalog has no /Pages"))
	}
	top, err := d.GetObject(pagesRef.Num)
	if err != nil {
		return err
	}
	return d.walkPageTree(top, nil, map[int]bool{})
}

func (d *Document) walkPageTree(node *Object, chain []*object.Dict, visited map[int]bool) error {
	if visited[node.ref.Num] {
		return d.tolerate(0, object.Malformedf(0, "page tree loops through object %d", node.ref.Num))
	}
	visited[node.ref.Num] = true
	dict := node.Dict()
	if dict == nil {
		return d.tolerate(0, object.Malformedf(0, "page tree node %s is not a dictionary", node.ref))
	}
	typ, _ := dict.GetName("Type")
	if typ == "Pages" || (typ != "Page" && dict.Has("Kids")) {
		kids, err := d.kidsArray(dict)
		if err != nil {
			return err
		}
		sub := append(append([]*object.Dict{}, chain...), dict)
		if kids != nil {
			for i := 0; i < kids.Len(); i++ {
				ref, ok := kids.At(i).(object.Reference)
				if !ok {
					if terr := d.tolerate(0, object.Malformedf(0, "page tree kid is not a reference")); terr != nil {
						return terr
					}
					continue
				}
				kid, err := d.GetObject(ref.Ref.Num)
				if err != nil {
					return err
				}
				if err := d.walkPageTree(kid, sub, visited); err != nil {
					return err
				}
			}
		}
		d.discard(node)
		return nil
	}

	dict.Delete("Parent")
	page := &Page{Object: node, ancestors: append([]*object.Dict{}, chain...)}
	d.Pages = append(d.Pages, page)
	d.discard(node)
	d.log.Debug("flattened page",
		observability.Int("num", node.ref.Num),
		observability.Int("index", len(d.Pages)-1))
	return nil
}

// kidsArray resolves a /Kids entry, accepting one level of indirection to
// an array object.
func (d *Document) kidsArray(dict *object.Dict) (*object.Array, error) {
	v, ok := dict.Get("Kids")
	if !ok {
		return nil, d.tolerate(0, object.Malformedf(0, "page tree node has no /Kids"))
	}
	if ref, ok := v.(object.Reference); ok {
		obj, err := d.GetObject(ref.Ref.Num)
		if err != nil {
			return nil, err
		}
		arr, ok := obj.Value().(*object.Array)
		if !ok {
			return nil, object.Malformedf(0, "page tree /Kids reference does not point at an array")
		}
		d.discard(obj)
		return arr, nil
	}
	arr, ok := v.(*object.Array)
	if !ok {
		return nil, object.Malformedf(0, "page tree /Kids is not an array")
	}
	return arr, nil
}

// discard removes an object from the table and cache so it is not written
// back out under its old number.
func (d *Document) discard(obj *Object) {
	if d.table != nil {
		d.table.Delete(obj.ref.Num)
	}
	delete(d.cache, obj.ref.Num)
}

var boxKeys = []object.Name{"MediaBox", "CropBox", "BleedBox", "ArtBox"}

// Bounds computes the page's effective rectangle: every box of every kind
// found on the page or on any of its former ancestors participates in the
// intersection, so a page cannot claim area outside what a container allows.
func (p *Page) Bounds() (Rect, error) {
	var out Rect
	found := false
	dicts := []*object.Dict{p.Dict()}
	for i := len(p.ancestors) - 1; i >= 0; i-- {
		dicts = append(dicts, p.ancestors[i])
	}
	for _, d := range dicts {
		if d == nil {
			continue
		}
		for _, key := range boxKeys {
			v, ok := d.Get(key)
			if !ok {
				continue
			}
			r, err := p.doc.rectFrom(v)
			if err != nil {
				return Rect{}, err
			}
			if !found {
				out = r
				found = true
				continue
			}
			if r.LLX > out.LLX {
				out.LLX = r.LLX
			}
			if r.LLY > out.LLY {
				out.LLY = r.LLY
			}
			if r.URX < out.URX {
				out.URX = r.URX
			}
			if r.URY < out.URY {
				out.URY = r.URY
			}
		}
	}
	if !found {
		return Rect{}, object.Malformedf(0, "page %s has no media box anywhere in its chain", p.ref)
	}
	return out, nil
}

// rectFrom converts a four-number array, possibly behind references, into a
// normalized Rect.
func (d *Document) rectFrom(v object.Object) (Rect, error) {
	v, err := d.Resolve(v)
	if err != nil {
		return Rect{}, err
	}
	arr, ok := v.(*object.Array)
	if !ok || arr.Len() != 4 {
		return Rect{}, object.Malformedf(0, "rectangle is not a four-element array")
	}
	var nums [4]float64
	for i := 0; i < 4; i++ {
		item, err := d.Resolve(arr.At(i))
		if err != nil {
			return Rect{}, err
		}
		switch n := item.(type) {
		case object.Integer:
			nums[i] = float64(n)
		case object.Real:
			nums[i] = float64(n)
		default:
			return Rect{}, object.Malformedf(0, "rectangle coordinate is not a number")
		}
	}
	r := Rect{LLX: nums[0], LLY: nums[1], URX: nums[2], URY: nums[3]}
	if r.LLX > r.URX {
		r.LLX, r.URX = r.URX, r.LLX
	}
	if r.LLY > r.URY {
		r.LLY, r.URY = r.URY, r.LLY
	}
	return r, nil
}

// contentArray normalizes the page's /Contents into a direct array of
// references, resolving one level of indirection. An indirect array is
// copied into the page dictionary before the first mutation so a shared
// array object is never modified in place.
func (p *Page) contentArray() (*object.Array, error) {
	dict := p.Dict()
	v, ok := dict.Get("Contents")
	if !ok {
		arr := object.NewArray()
		dict.Set("Contents", arr)
		return arr, nil
	}
	switch t := v.(type) {
	case *object.Array:
		return t, nil
	case object.Reference:
		target, err := p.doc.GetObject(t.Ref.Num)
		if err != nil {
			return nil, err
		}
		if arr, ok := target.Value().(*object.Array); ok {
			clone := arr.Clone()
			dict.Set("Contents", clone)
			return clone, nil
		}
		arr := object.NewArray(t)
		dict.Set("Contents", arr)
		return arr, nil
	default:
		return nil, object.Malformedf(0, "page /Contents is neither a reference nor an array")
	}
}

// newContentObject wraps data in a fresh uncompressed content stream.
func (d *Document) newContentObject(data []byte) *Object {
	obj := d.CreateObject()
	obj.val = object.NewDict()
	obj.SetStream(data)
	return obj
}

// PrependContent adds data as a content stream running before the page's
// existing content.
func (p *Page) PrependContent(data []byte) (*Object, error) {
	arr, err := p.contentArray()
	if err != nil {
		return nil, err
	}
	obj := p.doc.newContentObject(data)
	arr.Prepend(object.Reference{Ref: obj.ref})
	p.changed()
	return obj, nil
}

// AppendContent adds data as a content stream running after the page's
// existing content.
func (p *Page) AppendContent(data []byte) (*Object, error) {
	arr, err := p.contentArray()
	if err != nil {
		return nil, err
	}
	obj := p.doc.newContentObject(data)
	arr.Append(object.Reference{Ref: obj.ref})
	p.changed()
	return obj, nil
}

// AddPage appends a fresh page whose media box is the w by h rectangle with
// its lower-left corner at (x, y). The returned object is the page's empty
// content stream, ready for drawing operators.
func (d *Document) AddPage(w, h, x, y float64) *Object {
	content := d.newContentObject(nil)

	dict := object.NewDict()
	dict.Set("Type", object.MakeName("Page"))
	dict.Set("MediaBox", object.NewArray(
		object.Real(x), object.Real(y), object.Real(x+w), object.Real(y+h)))
	dict.Set("Contents", object.NewArray(object.Reference{Ref: content.ref}))

	pageObj := &Object{doc: d, ref: object.Ref{Num: d.nextNum}, val: dict}
	d.nextNum++
	d.Pages = append(d.Pages, &Page{Object: pageObj})
	return content
}
