package object_test

import (
	"testing"

	"github.com/untoldecay/jude/internal/object"
)

func TestSetGetScalar(t *testing.T) {
	c := object.New(subType)
	if err := c.Set(2, int32(42)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := c.Get(2)
	if err != nil || v.(int32) != 42 {
		t.Fatalf("Get: got %v, %v", v, err)
	}
	if !c.Touched(2) || !c.Changed(2) {
		t.Fatalf("expected touched+changed")
	}
}

func TestSetSameValueDoesNotMarkChanged(t *testing.T) {
	c := object.New(subType)
	_ = c.Set(2, int32(5))
	object.ClearChanges(c)
	if c.Changed(2) {
		t.Fatalf("expected changed cleared")
	}
	if err := c.Set(2, int32(5)); err != nil {
		t.Fatal(err)
	}
	if c.Changed(2) {
		t.Fatalf("setting identical value should not mark changed")
	}
}

func TestSetOutOfRange(t *testing.T) {
	c := object.New(subType)
	if err := c.Set(2, int32(5000)); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

func TestStringTruncation(t *testing.T) {
	c := object.New(subType)
	truncated, err := c.SetString(1, "this string is definitely too long")
	if err != nil {
		t.Fatal(err)
	}
	if !truncated {
		t.Fatalf("expected truncation")
	}
	if !c.Changed(1) {
		t.Fatalf("truncation must mark changed")
	}
	v, _ := c.Get(1)
	if len(v.(string)) != 16 {
		t.Fatalf("expected truncated to 16 runes, got %q", v)
	}
}

func TestClearMarksDeletedSemantics(t *testing.T) {
	c := object.New(subType)
	_ = c.Set(2, int32(1))
	if err := c.Clear(2); err != nil {
		t.Fatal(err)
	}
	if c.Touched(2) {
		t.Fatalf("expected untouched after Clear")
	}
	if !c.Changed(2) {
		t.Fatalf("expected changed after Clear")
	}
}

func TestBitPropagationUpChain(t *testing.T) {
	root := object.New(rootType)
	sub, err := root.SubObject(4, true) // single_sub
	if err != nil {
		t.Fatal(err)
	}
	if err := sub.Set(2, int32(7)); err != nil {
		t.Fatal(err)
	}
	if !root.Changed(4) {
		t.Fatalf("expected root to report changed at child slot after sub mutation")
	}
	object.ClearChanges(root)
	if root.Changed(4) || sub.Changed(2) {
		t.Fatalf("expected no descendant to report changed after root ClearChanges")
	}
}

func TestArrayAppendInsertRemove(t *testing.T) {
	c := object.New(rootType)
	idx, err := c.ArrayAppend(5, "a")
	if err != nil || idx != 0 {
		t.Fatalf("append: %v %v", idx, err)
	}
	_, _ = c.ArrayAppend(5, "c")
	if err := c.ArrayInsert(5, 1, "b"); err != nil {
		t.Fatal(err)
	}
	elems, _ := c.ScalarElems(5)
	if len(elems) != 3 || elems[0] != "a" || elems[1] != "b" || elems[2] != "c" {
		t.Fatalf("unexpected order: %v", elems)
	}
	if err := c.ArrayRemoveAt(5, 1); err != nil {
		t.Fatal(err)
	}
	elems, _ = c.ScalarElems(5)
	if len(elems) != 2 || elems[1] != "c" {
		t.Fatalf("unexpected order after remove: %v", elems)
	}
}

func TestSubObjectArrayByID(t *testing.T) {
	c := object.New(rootType)
	s1, err := c.AddSubObject(3, 1)
	if err != nil {
		t.Fatal(err)
	}
	_ = s1.Set(2, int32(1))
	s2, err := c.AddSubObject(3, 25)
	if err != nil {
		t.Fatal(err)
	}
	_ = s2
	if _, err := c.AddSubObject(3, 1); err == nil {
		t.Fatalf("expected id collision error")
	}
	found, _, ok := c.FindSubObjectByID(3, 25)
	if !ok || found.ID() != 25 {
		t.Fatalf("expected to find id 25")
	}
	removed, err := c.RemoveSubObjectByID(3, 1)
	if err != nil || !removed {
		t.Fatalf("expected removal of id 1")
	}
	subs, _ := c.SubObjects(3)
	if len(subs) != 1 || subs[0].ID() != 25 {
		t.Fatalf("expected only id 25 remaining, got %v", subs)
	}
}

func TestDeleted(t *testing.T) {
	c := object.New(subType)
	c.SetID(5)
	if c.Deleted() {
		t.Fatalf("freshly touched id should not be deleted")
	}
	if err := c.Clear(0); err != nil {
		t.Fatal(err)
	}
	if !c.Deleted() {
		t.Fatalf("expected deleted after clearing id")
	}
}
