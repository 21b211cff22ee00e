package object_test

import (
	"testing"

	"github.com/untoldecay/jude/internal/object"
)

func TestCompareUntouchedLessThanTouched(t *testing.T) {
	a := object.New(subType)
	b := object.New(subType)
	_ = b.Set(2, int32(-500)) // even a very "small" raw value, touched sorts after untouched
	if object.Compare(a, b) >= 0 {
		t.Fatalf("expected untouched a < touched b")
	}
}

func TestCompareArrayCountBeforeElements(t *testing.T) {
	a := object.New(rootType)
	b := object.New(rootType)
	_, _ = a.ArrayAppend(5, "z") // one element, lexically "larger"
	_, _ = b.ArrayAppend(5, "a")
	_, _ = b.ArrayAppend(5, "a") // two elements
	if object.Compare(a, b) >= 0 {
		t.Fatalf("expected shorter array to sort first regardless of element content")
	}
}

func TestCompareEqual(t *testing.T) {
	a := object.New(subType)
	b := object.New(subType)
	_ = a.Set(2, int32(9))
	_ = b.Set(2, int32(9))
	if object.Compare(a, b) != 0 {
		t.Fatalf("expected equal cells to compare equal")
	}
}
