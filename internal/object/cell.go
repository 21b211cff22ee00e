// Package object implements the typed-object cell: the in-memory
// representation of one object's field data plus its touched/changed
// bitmask, and the deep operations (compare, copy, overwrite, clear) that
// work across arbitrarily nested sub-objects.
package object

import (
	"fmt"
	"unicode/utf8"

	"github.com/untoldecay/jude/internal/bitmask"
	"github.com/untoldecay/jude/internal/schema"
)

// OverflowHandler is called whenever a string or bytes field is truncated
// to fit its declared capacity. It defaults to a no-op; callers (typically
// the logging ambient stack, see internal/dblog) may replace it.
var OverflowHandler = func(typeName, label string, maxLen int) {}

// Cell is one typed object: a type descriptor, a link back to the parent
// cell that owns it (nil for top-level objects), the child-slot field index
// within that parent, a numeric id, a touched/changed bitmask, and packed
// field storage.
//
// Field storage is a Go slice indexed densely by field index rather than a
// byte arena with computed offsets: this is the natural Go analogue of the
// "untyped storage arena" the source implementation uses (see
// DESIGN.md). All access still goes through this type and FieldIterator, so
// nothing outside this package touches the slice directly.
type Cell struct {
	typ    *schema.TypeDescriptor
	parent *Cell
	slot   int // field index in parent.typ that owns this cell; -1 if top-level
	arrIdx int // index within parent's array field, if the owning field is repeated; -1 otherwise

	id   int64
	mask bitmask.FieldMask

	values []any
}

// New allocates a zeroed cell of the given type. All bits are clear and the
// id is unassigned (0, untouched).
func New(typ *schema.TypeDescriptor) *Cell {
	return &Cell{
		typ:    typ,
		slot:   -1,
		arrIdx: -1,
		mask:   bitmask.New(typ.FieldCount()),
		values: make([]any, typ.FieldCount()),
	}
}

// Type returns the cell's type descriptor.
func (c *Cell) Type() *schema.TypeDescriptor { return c.typ }

// Parent returns the owning cell, or nil for a top-level object.
func (c *Cell) Parent() *Cell { return c.parent }

// ChildSlot returns the field index within the parent that owns this cell,
// or -1 if this cell is top-level.
func (c *Cell) ChildSlot() int { return c.slot }

// ID returns the cell's numeric id (0 if unassigned).
func (c *Cell) ID() int64 { return c.id }

// SetID assigns the id field directly, marking it touched and changed. Used
// by Collection.Post and by array-of-sub-object Add.
func (c *Cell) SetID(id int64) {
	c.id = id
	c.values[schema.IdField] = id
	c.touch(schema.IdField)
}

// Deleted reports the spec's deletion invariant: id untouched but changed.
// This is only meaningful for a cell that lives inside a collection or a
// sub-object array slot; a top-level resource's id is never cleared this
// way (see SPEC_FULL.md §3 / DESIGN.md).
func (c *Cell) Deleted() bool {
	return !c.mask.Touched(schema.IdField) && c.mask.Changed(schema.IdField)
}

// Mask exposes the raw bitmask for callers (notification dispatch, delta
// encoding) that need to inspect it directly rather than per-field.
func (c *Cell) Mask() bitmask.FieldMask { return c.mask }

// Touched reports whether field i is present.
func (c *Cell) Touched(i int) bool { return c.mask.Touched(i) }

// Changed reports whether field i changed since the last change-clear.
func (c *Cell) Changed(i int) bool { return c.mask.Changed(i) }

// touch marks field i touched+changed. Only changed propagates up the
// parent chain; touched is set on this cell alone (a parent's child-slot
// touched bit is set when the sub-object is created, not by later writes
// inside it).
func (c *Cell) touch(i int) {
	c.mask.SetTouched(i)
	c.markChanged(i)
}

// markChanged sets the changed bit for field i and propagates changed (but
// not touched) up through every ancestor at their respective child-slot
// index, per the spec.md invariant:
//
//	"If a child object has any changed field, every ancestor's entry for
//	 the child-slot index is changed."
func (c *Cell) markChanged(i int) {
	c.mask.SetChanged(i)
	p := c.parent
	slot := c.slot
	for p != nil {
		p.mask.SetChanged(slot)
		slot = p.slot
		p = p.parent
	}
}

// clearTouch clears field i's touched bit (changed remains set, marking the
// field as "present -> absent", i.e. a delete). Touched changes never
// propagate upward, whether set or cleared; only changed does.
func (c *Cell) clearTouch(i int) {
	c.mask.ClearTouched(i)
	c.markChanged(i)
}

// field returns the descriptor for index i, or an error if out of range.
func (c *Cell) field(i int) (*schema.FieldDescriptor, error) {
	f := c.typ.FieldByIndex(i)
	if f == nil {
		return nil, fmt.Errorf("object: field index %d out of range for type %s", i, c.typ.Name)
	}
	return f, nil
}

// Get returns the raw stored value for a scalar field (nil if untouched).
func (c *Cell) Get(i int) (any, error) {
	f, err := c.field(i)
	if err != nil {
		return nil, err
	}
	if f.IsArray() {
		return nil, fmt.Errorf("object: field %s is repeated, use array accessors", f.Label)
	}
	if !c.mask.Touched(i) {
		return nil, nil
	}
	return c.values[i], nil
}

// Set stores a scalar value into field i, validating numeric bounds where
// declared. Setting the same value when the field is already touched is
// still reported as "changed" only if the value actually differs (spec.md
// §4.2: "Setting the same bytes when touched is already true does not mark
// changed").
func (c *Cell) Set(i int, v any) error {
	f, err := c.field(i)
	if err != nil {
		return err
	}
	if f.IsArray() {
		return fmt.Errorf("object: field %s is repeated, use array accessors", f.Label)
	}
	if f.Kind == schema.KindObject {
		return fmt.Errorf("object: field %s is a sub-object, use SubObject accessors", f.Label)
	}
	if f.Kind.IsInteger() || f.Kind == schema.KindFloat {
		if fv, ok := toFloat(v); ok && !f.InRange(fv) {
			return fmt.Errorf("%s: value %v out of range [%v,%v]", f.Label, v, f.Min, f.Max)
		}
	}
	same := c.mask.Touched(i) && valuesEqual(c.values[i], v)
	c.values[i] = v
	c.mask.SetTouched(i)
	if !same {
		c.markChanged(i)
	}
	return nil
}

// SetString sets a string field, truncating (and reporting) if it exceeds
// the field's declared MaxLen. Truncation always marks the field changed,
// even if the truncated result equals the previous value, because the
// spec treats truncation itself as a real state transition.
func (c *Cell) SetString(i int, v string) (truncated bool, err error) {
	f, ferr := c.field(i)
	if ferr != nil {
		return false, ferr
	}
	if f.Kind != schema.KindString {
		return false, fmt.Errorf("object: field %s is not a string", f.Label)
	}
	if f.MaxLen > 0 && utf8.RuneCountInString(v) > f.MaxLen {
		v = truncateRunes(v, f.MaxLen)
		truncated = true
	}
	same := !truncated && c.mask.Touched(i) && valuesEqual(c.values[i], v)
	c.values[i] = v
	c.mask.SetTouched(i)
	if !same {
		c.markChanged(i)
	}
	if truncated {
		OverflowHandler(c.typ.Name, f.Label, f.MaxLen)
	}
	return truncated, nil
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// SetBytes sets a bytes field, truncating to the declared MaxLen if needed.
func (c *Cell) SetBytes(i int, v []byte) (truncated bool, err error) {
	f, ferr := c.field(i)
	if ferr != nil {
		return false, ferr
	}
	if f.Kind != schema.KindBytes {
		return false, fmt.Errorf("object: field %s is not bytes", f.Label)
	}
	if f.MaxLen > 0 && len(v) > f.MaxLen {
		cp := make([]byte, f.MaxLen)
		copy(cp, v)
		v = cp
		truncated = true
	}
	c.values[i] = v
	c.mask.SetTouched(i)
	c.markChanged(i)
	if truncated {
		OverflowHandler(c.typ.Name, f.Label, f.MaxLen)
	}
	return truncated, nil
}

// Clear removes field i (touched=false, changed=true): the "cleared delta"
// state a null in JSON produces.
func (c *Cell) Clear(i int) error {
	if _, err := c.field(i); err != nil {
		return err
	}
	c.values[i] = nil
	c.clearTouch(i)
	return nil
}

// SubObject returns the (non-repeated) sub-object cell for field i,
// creating and linking it on first touch if create is true.
func (c *Cell) SubObject(i int, create bool) (*Cell, error) {
	f, err := c.field(i)
	if err != nil {
		return nil, err
	}
	if f.Kind != schema.KindObject || f.IsArray() {
		return nil, fmt.Errorf("object: field %s is not a scalar sub-object", f.Label)
	}
	if c.values[i] == nil {
		if !create {
			return nil, nil
		}
		sub := New(f.SubType)
		sub.parent = c
		sub.slot = i
		sub.arrIdx = -1
		c.values[i] = sub
		c.mask.SetTouched(i)
		c.markChanged(i)
	}
	return c.values[i].(*Cell), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func valuesEqual(a, b any) bool {
	if bs1, ok := a.([]byte); ok {
		bs2, ok2 := b.([]byte)
		if !ok2 || len(bs1) != len(bs2) {
			return false
		}
		for i := range bs1 {
			if bs1[i] != bs2[i] {
				return false
			}
		}
		return true
	}
	return a == b
}
