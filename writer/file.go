package writer

import (
	"bytes"
	"fmt"

	"github.com/scribd/keynote/object"
)

// File accumulates a complete output file: header, object bodies, then a
// single-subsection classic cross-reference table covering object 0 through
// the highest number written, with gaps emitted as free entries.
type entry struct {
	offset int64
	gen    int
}

type File struct {
	buf     bytes.Buffer
	offsets map[int]entry
	maxNum  int
}

// NewFile starts a file with the version header and the conventional
// binary-marker comment.
func NewFile(major, minor int) *File {
	f := &File{offsets: make(map[int]entry)}
	fmt.Fprintf(&f.buf, "%%PDF-%d.%d\n", major, minor)
	f.buf.Write([]byte{'%', 0xE2, 0xE3, 0xCF, 0xD3, '\n'})
	return f
}

// AddObject emits one indirect object. The caller is responsible for the
// value already carrying a correct /Length when stream is non-nil.
func (f *File) AddObject(ref object.Ref, val object.Object, stream []byte, hasStream bool) {
	f.offsets[ref.Num] = entry{offset: int64(f.buf.Len()), gen: ref.Gen}
	if ref.Num > f.maxNum {
		f.maxNum = ref.Num
	}
	fmt.Fprintf(&f.buf, "%d %d obj\n", ref.Num, ref.Gen)
	WriteValue(&f.buf, val)
	if hasStream {
		f.buf.WriteString("\nstream\n")
		f.buf.Write(stream)
		f.buf.WriteString("\nendstream")
	}
	f.buf.WriteString("\nendobj\n")
}

// Finish appends the cross-reference table and trailer and returns the
// whole file. The trailer's /Size is set here; any /Prev entry is dropped
// since the output is a single self-contained revision.
func (f *File) Finish(trailer *object.Dict) []byte {
	xrefOff := int64(f.buf.Len())
	size := f.maxNum + 1
	fmt.Fprintf(&f.buf, "xref\n0 %d\n", size)
	for num := 0; num < size; num++ {
		e, ok := f.offsets[num]
		if !ok {
			f.buf.WriteString("0000000000 65535 f \n")
			continue
		}
		fmt.Fprintf(&f.buf, "%010d %05d n \n", e.offset, e.gen)
	}
	out := trailer.Clone()
	out.Set("Size", object.Integer(int64(size)))
	out.Delete("Prev")
	f.buf.WriteString("trailer\n")
	WriteValue(&f.buf, out)
	fmt.Fprintf(&f.buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOff)
	return f.buf.Bytes()
}
