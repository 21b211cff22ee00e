package handle_test

import (
	"testing"

	"github.com/untoldecay/jude/internal/handle"
	"github.com/untoldecay/jude/internal/object"
	"github.com/untoldecay/jude/internal/schema"
)

var subType = (&schema.TypeDescriptor{
	Name: "Sub",
	Fields: []*schema.FieldDescriptor{
		{Label: "id", Kind: schema.KindInt64},
		{Label: "substuff2", Kind: schema.KindInt32},
	},
}).Build()

func TestEditCompleteFiresOnLastClose(t *testing.T) {
	fired := 0
	h := handle.New(object.New(subType), func(c *object.Cell) { fired++ })
	h2 := h.Share()
	h.Close()
	if fired != 0 {
		t.Fatalf("expected no fire until last share closed")
	}
	h2.Close()
	if fired != 1 {
		t.Fatalf("expected exactly one fire, got %d", fired)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	fired := 0
	h := handle.New(object.New(subType), func(c *object.Cell) { fired++ })
	h.Close()
	h.Close()
	if fired != 1 {
		t.Fatalf("expected exactly one fire despite double Close, got %d", fired)
	}
}

func TestCloneClearChanges(t *testing.T) {
	h := handle.New(object.New(subType), nil)
	_ = h.Set(1, int32(42))
	clone := h.Clone(true)
	if clone.Changed(1) {
		t.Fatalf("expected clone's changed bits cleared")
	}
	if !clone.Touched(1) {
		t.Fatalf("expected clone to retain touched data")
	}
}
