package filters

import (
	"github.com/scribd/keynote/object"
)

// Chain normalizes a stream dictionary's /Filter and /DecodeParms entries
// into parallel slices. The single-name, single-dictionary, and array forms
// are all accepted; parameter slots without a dictionary are nil.
func Chain(d *object.Dict) ([]object.Name, []*object.Dict, error) {
	v, ok := d.Get("Filter")
	if !ok {
		return nil, nil, nil
	}
	var names []object.Name
	switch f := v.(type) {
	case object.Name:
		names = []object.Name{f}
	case *object.Array:
		for i := 0; i < f.Len(); i++ {
			n, ok := f.At(i).(object.Name)
			if !ok {
				return nil, nil, object.Malformedf(0, "stream /Filter array holds a non-name")
			}
			names = append(names, n)
		}
	case object.Null:
		return nil, nil, nil
	default:
		return nil, nil, object.Malformedf(0, "stream /Filter is neither a name nor an array")
	}

	parms := make([]*object.Dict, len(names))
	if pv, ok := d.Get("DecodeParms"); ok {
		switch p := pv.(type) {
		case *object.Dict:
			if len(names) > 0 {
				parms[0] = p
			}
		case *object.Array:
			for i := 0; i < p.Len() && i < len(names); i++ {
				if pd, ok := p.At(i).(*object.Dict); ok {
					parms[i] = pd
				}
			}
		}
	}
	return names, parms, nil
}
