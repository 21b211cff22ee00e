package object

import "github.com/untoldecay/jude/internal/schema"

// FieldIterator walks the fields of a cell by label, tag, or dense index.
// It is the primitive the Visitor is built on.
type FieldIterator struct {
	cell *Cell
	pos  int
}

// Begin returns an iterator positioned at field 0.
func Begin(c *Cell) *FieldIterator {
	return &FieldIterator{cell: c, pos: 0}
}

// Reset repositions the iterator at field 0.
func (it *FieldIterator) Reset() { it.pos = 0 }

// Next advances the iterator, wrapping back to 0 after the last field.
// Returns the field now under the cursor.
func (it *FieldIterator) Next() *schema.FieldDescriptor {
	it.pos++
	if it.pos >= it.cell.typ.FieldCount() {
		it.pos = 0
	}
	return it.Field()
}

// GotoIndex repositions the iterator at a specific dense field index.
func (it *FieldIterator) GotoIndex(i int) bool {
	if i < 0 || i >= it.cell.typ.FieldCount() {
		return false
	}
	it.pos = i
	return true
}

// FindByLabel repositions the iterator at the field with the given label.
func (it *FieldIterator) FindByLabel(label string) bool {
	f, ok := it.cell.typ.FieldByLabel(label)
	if !ok {
		return false
	}
	it.pos = f.Index
	return true
}

// FindByTag repositions the iterator at the field with the given wire tag.
func (it *FieldIterator) FindByTag(tag int) bool {
	f, ok := it.cell.typ.FieldByTag(tag)
	if !ok {
		return false
	}
	it.pos = f.Index
	return true
}

// Index returns the iterator's current dense field index.
func (it *FieldIterator) Index() int { return it.pos }

// Field returns the descriptor currently under the cursor.
func (it *FieldIterator) Field() *schema.FieldDescriptor {
	return it.cell.typ.FieldByIndex(it.pos)
}

// Cell returns the owning cell.
func (it *FieldIterator) Cell() *Cell { return it.cell }

// IsArray reports whether the current field is repeated.
func (it *FieldIterator) IsArray() bool { return it.Field().IsArray() }

// IsSubResource reports whether the current field holds sub-object(s).
func (it *FieldIterator) IsSubResource() bool { return it.Field().IsSubResource() }

// IsString reports whether the current field is a string.
func (it *FieldIterator) IsString() bool { return it.Field().Kind == schema.KindString }

// Count returns the live element count at the cursor: 0 or 1 for a scalar
// field depending on its touched bit, or the array length for a repeated
// field.
func (it *FieldIterator) Count() (int, error) {
	f := it.Field()
	if f.IsArray() {
		return it.cell.ArrayLen(it.pos)
	}
	if it.cell.Touched(it.pos) {
		return 1, nil
	}
	return 0, nil
}

// Touched reports the touched bit at the cursor.
func (it *FieldIterator) Touched() bool { return it.cell.Touched(it.pos) }

// Changed reports the changed bit at the cursor.
func (it *FieldIterator) Changed() bool { return it.cell.Changed(it.pos) }
