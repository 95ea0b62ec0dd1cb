package parser

import (
	"github.com/scribd/keynote/object"
	"github.com/scribd/keynote/recovery"
)

// ReadCompressed extracts object wantNum from a decoded object stream
// payload. n is the container's /N entry and first its /First entry: the
// payload starts with n pairs of integers (object number, offset relative to
// first) followed by the packed object values.
func ReadCompressed(payload []byte, n int, first int64, wantNum int, strategy recovery.Strategy) (object.Object, error) {
	r := New(payload, strategy)
	var offset int64 = -1
	for i := 0; i < n; i++ {
		numTok, err := r.Token()
		if err != nil {
			return nil, object.Malformedf(r.s.Pos(), "object stream index truncated after %d of %d entries", i, n)
		}
		offTok, err := r.Token()
		if err != nil {
			return nil, object.Malformedf(r.s.Pos(), "object stream index truncated after %d of %d entries", i, n)
		}
		if !numTok.IsInt || !offTok.IsInt {
			return nil, object.Malformedf(numTok.Pos, "object stream index entry %d is not an integer pair", i)
		}
		if int(numTok.Int) == wantNum {
			offset = offTok.Int
			break
		}
	}
	if offset < 0 {
		return nil, object.Malformedf(0, "object %d not present in its object stream", wantNum)
	}
	if err := r.Seek(first + offset); err != nil {
		return nil, object.Malformedf(first+offset, "object stream offset for object %d is out of range", wantNum)
	}
	return r.ReadValue()
}
