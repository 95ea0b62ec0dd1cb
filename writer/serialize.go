// Package writer serializes objects back into file syntax and assembles
// complete files with a classic cross-reference table.
package writer

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/scribd/keynote/object"
)

// WriteValue appends the textual form of v to buf. Dictionary keys are
// emitted in sorted order so output is deterministic.
func WriteValue(buf *bytes.Buffer, v object.Object) {
	switch t := v.(type) {
	case nil, object.Null:
		buf.WriteString("null")
	case object.Bool:
		buf.WriteString(strconv.FormatBool(bool(t)))
	case object.Integer:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case object.Real:
		buf.WriteString(object.FormatReal(float64(t)))
	case object.String:
		writeString(buf, t)
	case object.Name:
		writeName(buf, t)
	case object.Reference:
		fmt.Fprintf(buf, "%d %d R", t.Ref.Num, t.Ref.Gen)
	case *object.Array:
		buf.WriteByte('[')
		for i := 0; i < t.Len(); i++ {
			if i > 0 {
				buf.WriteByte(' ')
			}
			WriteValue(buf, t.At(i))
		}
		buf.WriteByte(']')
	case *object.Dict:
		buf.WriteString("<<")
		for _, k := range t.Keys() {
			buf.WriteByte(' ')
			writeName(buf, k)
			buf.WriteByte(' ')
			val, _ := t.Get(k)
			WriteValue(buf, val)
		}
		buf.WriteString(" >>")
	default:
		// Unknown kinds degrade to null rather than corrupt the file.
		buf.WriteString("null")
	}
}

func writeString(buf *bytes.Buffer, s object.String) {
	if s.Hex {
		buf.WriteByte('<')
		const hexdigits = "0123456789ABCDEF"
		for _, b := range s.Bytes {
			buf.WriteByte(hexdigits[b>>4])
			buf.WriteByte(hexdigits[b&0x0F])
		}
		buf.WriteByte('>')
		return
	}
	buf.WriteByte('(')
	for _, b := range s.Bytes {
		switch b {
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '(', ')', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(b)
		default:
			buf.WriteByte(b)
		}
	}
	buf.WriteByte(')')
}

func writeName(buf *bytes.Buffer, n object.Name) {
	buf.WriteByte('/')
	for _, b := range []byte(n) {
		if b <= 0x20 || b >= 0x7F || bytes.IndexByte([]byte("()<>[]{}/%#"), b) >= 0 {
			fmt.Fprintf(buf, "#%02X", b)
			continue
		}
		buf.WriteByte(b)
	}
}
