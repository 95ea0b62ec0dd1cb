package document

import (
	"sort"

	"github.com/scribd/keynote/object"
	"github.com/scribd/keynote/writer"
)

// Write serializes the document as a single self-contained revision with a
// classic cross-reference table. The flattened pages are reattached to a
// fresh /Pages node under new object numbers; cross-reference and object
// streams from the source file are dropped since their contents are written
// as plain objects.
func (d *Document) Write() ([]byte, error) {
	objs, err := d.Objects()
	if err != nil {
		return nil, err
	}
	var emit []*Object
	for _, obj := range objs {
		if t := obj.Type(); t == "XRef" || t == "ObjStm" {
			continue
		}
		emit = append(emit, obj)
	}

	pagesNodeRef := object.Ref{Num: d.nextNum}
	d.nextNum++
	kids := object.NewArray()
	for _, page := range d.Pages {
		page.ref = object.Ref{Num: d.nextNum}
		d.nextNum++
		if dict := page.Dict(); dict != nil {
			dict.Set("Parent", object.Reference{Ref: pagesNodeRef})
		}
		kids.Append(object.Reference{Ref: page.ref})
		emit = append(emit, page.Object)
	}

	pagesDict := object.NewDict()
	pagesDict.Set("Type", object.MakeName("Pages"))
	pagesDict.Set("Kids", kids)
	pagesDict.Set("Count", object.Integer(int64(len(d.Pages))))
	emit = append(emit, &Object{doc: d, ref: pagesNodeRef, val: pagesDict})

	rootRef, rootObj, err := d.catalogFor(pagesNodeRef)
	if err != nil {
		return nil, err
	}
	if rootObj != nil {
		emit = append(emit, rootObj)
	}

	sort.Slice(emit, func(i, j int) bool { return emit[i].ref.Num < emit[j].ref.Num })

	f := writer.NewFile(d.Major, d.Minor)
	for _, obj := range emit {
		d.emitObject(f, obj)
	}
	return f.Finish(d.outputTrailer(rootRef)), nil
}

// catalogFor returns the document's catalog reference with its /Pages entry
// pointed at the new tree node, creating a catalog for documents built from
// scratch. The returned object is non-nil only when it is not already part
// of the emitted set.
func (d *Document) catalogFor(pagesNodeRef object.Ref) (object.Ref, *Object, error) {
	if !d.rootRef.IsZero() {
		rootObj, err := d.GetObject(d.rootRef.Num)
		if err != nil {
			return object.Ref{}, nil, err
		}
		if dict := rootObj.Dict(); dict != nil {
			dict.Set("Pages", object.Reference{Ref: pagesNodeRef})
		}
		return d.rootRef, nil, nil
	}
	dict := object.NewDict()
	dict.Set("Type", object.MakeName("Catalog"))
	dict.Set("Pages", object.Reference{Ref: pagesNodeRef})
	ref := object.Ref{Num: d.nextNum}
	d.nextNum++
	return ref, &Object{doc: d, ref: ref, val: dict}, nil
}

func (d *Document) emitObject(f *writer.File, obj *Object) {
	if !obj.hasStream {
		f.AddObject(obj.ref, obj.val, nil, false)
		return
	}
	payload := obj.stream
	if d.handler != nil && !obj.encrypted {
		payload = d.handler.Crypt(obj.ref, payload)
	}
	dict := object.NewDict()
	if src := obj.Dict(); src != nil {
		dict = src.Clone()
	}
	dict.Set("Length", object.Integer(int64(len(payload))))
	if rem := obj.OutstandingFilters(); len(rem) > 0 {
		if len(rem) == 1 {
			dict.Set("Filter", rem[0])
		} else {
			arr := object.NewArray()
			for _, n := range rem {
				arr.Append(n)
			}
			dict.Set("Filter", arr)
		}
		if parms := obj.parms[obj.nextFilter:]; anyParms(parms) {
			if len(parms) == 1 {
				dict.Set("DecodeParms", parms[0])
			} else {
				arr := object.NewArray()
				for _, p := range parms {
					if p == nil {
						arr.Append(object.Null{})
					} else {
						arr.Append(p)
					}
				}
				dict.Set("DecodeParms", arr)
			}
		}
	}
	f.AddObject(obj.ref, dict, payload, true)
}

func anyParms(parms []*object.Dict) bool {
	for _, p := range parms {
		if p != nil {
			return true
		}
	}
	return false
}

// outputTrailer builds the trailer for the rewritten file, carrying the
// identity, info, and encryption entries of the source forward.
func (d *Document) outputTrailer(rootRef object.Ref) *object.Dict {
	out := object.NewDict()
	out.Set("Root", object.Reference{Ref: rootRef})
	if d.trailer != nil {
		for _, key := range []object.Name{"Info", "Encrypt", "ID"} {
			if v, ok := d.trailer.Get(key); ok {
				out.Set(key, v)
			}
		}
	}
	return out
}
