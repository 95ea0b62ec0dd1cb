package document

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"strings"
	"testing"

	"github.com/scribd/keynote/object"
	"github.com/scribd/keynote/recovery"
)

// fileBuilder assembles test files while tracking object offsets.
type fileBuilder struct {
	buf     bytes.Buffer
	offsets map[int]int64
}

func newFileBuilder() *fileBuilder {
	b := &fileBuilder{offsets: make(map[int]int64)}
	b.buf.WriteString("%PDF-1.4\n")
	return b
}

func (b *fileBuilder) add(num int, body string) {
	b.offsets[num] = int64(b.buf.Len())
	fmt.Fprintf(&b.buf, "%d 0 obj\n%s\nendobj\n", num, body)
}

func (b *fileBuilder) addStream(num int, dict string, payload []byte) {
	b.offsets[num] = int64(b.buf.Len())
	fmt.Fprintf(&b.buf, "%d 0 obj\n%s\nstream\n", num, dict)
	b.buf.Write(payload)
	b.buf.WriteString("\nendstream\nendobj\n")
}

func (b *fileBuilder) finish(size int, trailerExtra string) []byte {
	xrefOff := b.buf.Len()
	fmt.Fprintf(&b.buf, "xref\n0 %d\n", size)
	b.buf.WriteString("0000000000 65535 f \n")
	for num := 1; num < size; num++ {
		off, ok := b.offsets[num]
		if !ok {
			b.buf.WriteString("0000000000 65535 f \n")
			continue
		}
		fmt.Fprintf(&b.buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b.buf, "trailer\n<< /Size %d /Root 1 0 R%s >>\nstartxref\n%d\n%%%%EOF\n",
		size, trailerExtra, xrefOff)
	return b.buf.Bytes()
}

func zlibCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatal(err)
	}
	zw.Close()
	return buf.Bytes()
}

// buildTreeFile builds a two-page file with a nested page tree and
// inheritable boxes.
func buildTreeFile() []byte {
	b := newFileBuilder()
	b.add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.add(2, "<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 /MediaBox [0 0 612 792] >>")
	b.add(3, "<< /Type /Page /Parent 2 0 R /Contents 6 0 R >>")
	b.add(4, "<< /Type /Pages /Parent 2 0 R /Kids [5 0 R] /Count 1 /MediaBox [0 0 400 400] >>")
	b.add(5, "<< /Type /Page /Parent 4 0 R /CropBox [10 10 500 390] >>")
	b.addStream(6, "<< /Length 5 >>", []byte("BT ET"))
	return b.finish(7, "")
}

func TestLoadFlattensPageTree(t *testing.T) {
	d, err := Load(buildTreeFile())
	if err != nil {
		t.Fatal(err)
	}
	if d.Major != 1 || d.Minor != 4 {
		t.Fatalf("version %d.%d", d.Major, d.Minor)
	}
	if len(d.Pages) != 2 {
		t.Fatalf("pages = %d", len(d.Pages))
	}
	for i, p := range d.Pages {
		if p.Dict().Has("Parent") {
			t.Fatalf("page %d still has /Parent", i)
		}
	}
	// Tree nodes and pages are gone from the resolvable set.
	objs, err := d.Objects()
	if err != nil {
		t.Fatal(err)
	}
	for _, obj := range objs {
		if t2 := obj.Type(); t2 == "Pages" || t2 == "Page" {
			t.Fatalf("object %s of type %s still resolvable", obj.Ref(), t2)
		}
	}
}

func TestBoundsInheritanceAndIntersection(t *testing.T) {
	d, err := Load(buildTreeFile())
	if err != nil {
		t.Fatal(err)
	}
	r, err := d.Pages[0].Bounds()
	if err != nil {
		t.Fatal(err)
	}
	if r != (Rect{0, 0, 612, 792}) {
		t.Fatalf("page 0 bounds %+v", r)
	}
	// Page 1 inherits the nearest MediaBox (400x400) and intersects its
	// own CropBox.
	r, err = d.Pages[1].Bounds()
	if err != nil {
		t.Fatal(err)
	}
	if r != (Rect{10, 10, 400, 390}) {
		t.Fatalf("page 1 bounds %+v", r)
	}
}

func TestBoundsClippedByAncestorBox(t *testing.T) {
	b := newFileBuilder()
	b.add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 612 500] >>")
	b.add(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 800 600] >>")
	d, err := Load(b.finish(4, ""))
	if err != nil {
		t.Fatal(err)
	}
	// The page's own box is larger than the container's; the container
	// still clips it.
	r, err := d.Pages[0].Bounds()
	if err != nil {
		t.Fatal(err)
	}
	if r != (Rect{0, 0, 612, 500}) {
		t.Fatalf("bounds %+v", r)
	}
}

func TestImagesMatchBySubtypeOnly(t *testing.T) {
	b := newFileBuilder()
	b.add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 100 100] >>")
	b.add(3, "<< /Type /Page /Parent 2 0 R >>")
	b.addStream(4, "<< /Type /XObject /Subtype /Image /Width 8 /Height 8 /Length 3 >>", []byte("abc"))
	b.addStream(5, "<< /Type /Thumbnail /Subtype /Image /Width 4 /Height 4 /Length 3 >>", []byte("def"))
	d, err := Load(b.finish(6, ""))
	if err != nil {
		t.Fatal(err)
	}
	images, err := d.Images()
	if err != nil {
		t.Fatal(err)
	}
	if len(images) != 2 {
		t.Fatalf("got %d images, want 2", len(images))
	}
}

func TestGetObjectCachesByNumber(t *testing.T) {
	d, err := Load(buildTreeFile())
	if err != nil {
		t.Fatal(err)
	}
	a, err := d.GetObject(6)
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.GetObject(6)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("repeated lookups must return the cached object")
	}
	if _, err := d.GetObject(99); err == nil {
		t.Fatal("undefined object number accepted")
	}
}

func TestResolveIgnoresGeneration(t *testing.T) {
	d, err := Load(buildTreeFile())
	if err != nil {
		t.Fatal(err)
	}
	// The stored object has generation 0; a reference naming generation 3
	// still resolves by number.
	v, err := d.Resolve(object.Reference{Ref: object.Ref{Num: 6, Gen: 3}})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := v.(*object.Dict); !ok {
		t.Fatalf("resolved to %T", v)
	}
}

func TestLoadObjectStream(t *testing.T) {
	b := newFileBuilder()

	// Objects 1..3 live packed inside object stream 6.
	bodies := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Contents 4 0 R /MediaBox [0 0 100 100] >>",
	}
	header := ""
	off := 0
	for i, body := range bodies {
		header += fmt.Sprintf("%d %d ", i+1, off)
		off += len(body) + 1
	}
	first := len(header)
	inner := header + strings.Join(bodies, " ")
	compressed := zlibCompress(t, []byte(inner))

	b.addStream(4, "<< /Length 5 >>", []byte("BT ET"))
	b.addStream(6, fmt.Sprintf("<< /Type /ObjStm /N 3 /First %d /Filter /FlateDecode /Length %d >>",
		first, len(compressed)), compressed)

	// Cross-reference stream: W [1 4 2].
	streamOff := int64(b.buf.Len())
	var rows bytes.Buffer
	writeRow := func(typ byte, f2 int64, f3 int64) {
		rows.WriteByte(typ)
		rows.Write([]byte{byte(f2 >> 24), byte(f2 >> 16), byte(f2 >> 8), byte(f2)})
		rows.Write([]byte{byte(f3 >> 8), byte(f3)})
	}
	writeRow(0, 0, 65535)
	writeRow(2, 6, 0)
	writeRow(2, 6, 1)
	writeRow(2, 6, 2)
	writeRow(1, b.offsets[4], 0)
	writeRow(1, streamOff, 0)
	writeRow(1, b.offsets[6], 0)
	xrefPayload := zlibCompress(t, rows.Bytes())
	fmt.Fprintf(&b.buf, "5 0 obj\n<< /Type /XRef /W [1 4 2] /Size 7 /Filter /FlateDecode /Length %d /Root 1 0 R >>\nstream\n",
		len(xrefPayload))
	b.buf.Write(xrefPayload)
	b.buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&b.buf, "startxref\n%d\n%%%%EOF\n", streamOff)

	d, err := Load(b.buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Pages) != 1 {
		t.Fatalf("pages = %d", len(d.Pages))
	}
	r, err := d.Pages[0].Bounds()
	if err != nil {
		t.Fatal(err)
	}
	if r.Width() != 100 || r.Height() != 100 {
		t.Fatalf("bounds %+v", r)
	}

	// The rewritten file must carry no object or cross-reference streams.
	out, err := d.Write()
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(out, []byte("/ObjStm")) || bytes.Contains(out, []byte("/XRef")) {
		t.Fatal("stream-based structures survived the rewrite")
	}
	d2, err := Load(out, WithStrategy(recovery.NewStrictStrategy()))
	if err != nil {
		t.Fatal(err)
	}
	if len(d2.Pages) != 1 {
		t.Fatalf("reloaded pages = %d", len(d2.Pages))
	}
}

func TestDecompressAndOutstandingFilters(t *testing.T) {
	b := newFileBuilder()
	b.add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.add(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 100 100] /Contents 4 0 R >>")
	content := zlibCompress(t, []byte("BT /F1 12 Tf ET"))
	b.addStream(4, fmt.Sprintf("<< /Length %d /Filter /FlateDecode >>", len(content)), content)
	mystery := []byte("opaque")
	b.addStream(5, fmt.Sprintf("<< /Length %d /Filter [/FancyDecode /FlateDecode] >>", len(mystery)), mystery)
	data := b.finish(6, "")

	d, err := Load(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Decompress(); err != nil {
		t.Fatal(err)
	}

	c, err := d.GetObject(4)
	if err != nil {
		t.Fatal(err)
	}
	if string(c.Stream()) != "BT /F1 12 Tf ET" {
		t.Fatalf("content = %q", c.Stream())
	}
	if len(c.OutstandingFilters()) != 0 {
		t.Fatalf("outstanding = %v", c.OutstandingFilters())
	}

	// The unknown filter stops the chain quietly; both it and the filter
	// behind it stay outstanding and the payload is untouched.
	m, err := d.GetObject(5)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.OutstandingFilters(); len(got) != 2 || got[0] != "FancyDecode" {
		t.Fatalf("outstanding = %v", got)
	}
	if !bytes.Equal(m.Stream(), mystery) {
		t.Fatalf("payload mutated: %q", m.Stream())
	}

	// The rewrite keeps the unapplied chain and drops the applied one.
	out, err := d.Write()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(out, []byte("/FancyDecode")) {
		t.Fatal("outstanding filter chain lost")
	}
	if bytes.Contains(out, []byte("4 0 obj\n<< /Filter")) {
		t.Fatal("consumed filter written back")
	}
}

func TestChangeHook(t *testing.T) {
	var changes int
	d, err := Load(buildTreeFile(), WithChangeHook(func(*Object) { changes++ }))
	if err != nil {
		t.Fatal(err)
	}
	before := changes
	if _, err := d.Pages[0].AppendContent([]byte("Q")); err != nil {
		t.Fatal(err)
	}
	if changes <= before {
		t.Fatal("change hook did not fire")
	}
}
