package object

import (
	"errors"
	"testing"
)

func TestMakeName(t *testing.T) {
	if MakeName("/Type") != "Type" {
		t.Fatal("slash not stripped")
	}
	if MakeName("Type") != "Type" {
		t.Fatal("bare name altered")
	}
	if Name("Type").String() != "/Type" {
		t.Fatal("String must restore the slash")
	}
}

func TestDictTypedAccessors(t *testing.T) {
	d := NewDict()
	d.Set("Int", Integer(7))
	d.Set("Real", Real(1.5))
	d.Set("Name", Name("X"))
	d.Set("Str", String{Bytes: []byte("s")})
	d.Set("Ref", Reference{Ref: Ref{Num: 3, Gen: 1}})

	if n, ok := d.GetInt("Int"); !ok || n != 7 {
		t.Fatalf("GetInt: %d %v", n, ok)
	}
	if _, ok := d.GetInt("Real"); ok {
		t.Fatal("GetInt accepted a real")
	}
	if f, ok := d.GetNumber("Int"); !ok || f != 7 {
		t.Fatalf("GetNumber over integer: %v", f)
	}
	if f, ok := d.GetNumber("Real"); !ok || f != 1.5 {
		t.Fatalf("GetNumber: %v", f)
	}
	if s, ok := d.GetString("Str"); !ok || string(s) != "s" {
		t.Fatalf("GetString: %q", s)
	}
	if r, ok := d.GetRef("Ref"); !ok || r.Num != 3 || r.Gen != 1 {
		t.Fatalf("GetRef: %+v", r)
	}
	if _, ok := d.GetName("Missing"); ok {
		t.Fatal("absent key reported present")
	}
}

func TestDictCloneIsIndependent(t *testing.T) {
	d := NewDict()
	d.Set("A", Integer(1))
	c := d.Clone()
	c.Set("B", Integer(2))
	c.Delete("A")
	if !d.Has("A") || d.Has("B") {
		t.Fatal("clone shares the underlying map")
	}
}

func TestArrayCloneAndEdit(t *testing.T) {
	a := NewArray(Integer(1), Integer(2))
	c := a.Clone()
	c.Prepend(Integer(0))
	c.Append(Integer(3))
	if a.Len() != 2 || c.Len() != 4 {
		t.Fatalf("lengths %d %d", a.Len(), c.Len())
	}
	if c.At(0) != Integer(0) || c.At(3) != Integer(3) {
		t.Fatalf("edited clone %v", c.Items)
	}
	if a.At(99).Kind() != KindNull {
		t.Fatal("out-of-range index must yield null")
	}
}

func TestMalformedError(t *testing.T) {
	err := Malformedf(42, "bad %s", "token")
	if err.Error() != "malformed pdf at byte 42: bad token" {
		t.Fatalf("message %q", err)
	}
	if !IsMalformed(err) {
		t.Fatal("IsMalformed on direct error")
	}
	wrapped := errors.Join(errors.New("outer"), err)
	if !IsMalformed(wrapped) {
		t.Fatal("IsMalformed through a chain")
	}
	if IsMalformed(errors.New("plain")) {
		t.Fatal("IsMalformed on unrelated error")
	}
}
