package object

import (
	"fmt"

	"github.com/untoldecay/jude/internal/schema"
)

// arrayData is the repeated-field payload stored in Cell.values for any
// field with ArrayCapacity > 0. Elements are either scalar Go values or, for
// KindObject fields, *Cell.
type arrayData struct {
	elems []any
}

func (c *Cell) arrayField(i int) (*schema.FieldDescriptor, *arrayData, error) {
	f, err := c.field(i)
	if err != nil {
		return nil, nil, err
	}
	if !f.IsArray() {
		return nil, nil, fmt.Errorf("object: field %s is not repeated", f.Label)
	}
	ad, _ := c.values[i].(*arrayData)
	if ad == nil {
		ad = &arrayData{}
		c.values[i] = ad
	}
	return f, ad, nil
}

// ArrayLen returns the number of live elements in a repeated field.
func (c *Cell) ArrayLen(i int) (int, error) {
	_, ad, err := c.arrayField(i)
	if err != nil {
		return 0, err
	}
	return len(ad.elems), nil
}

// ArrayGet returns the element at idx of a repeated field.
func (c *Cell) ArrayGet(i, idx int) (any, error) {
	_, ad, err := c.arrayField(i)
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(ad.elems) {
		return nil, fmt.Errorf("object: array index %d out of range (len %d)", idx, len(ad.elems))
	}
	return ad.elems[idx], nil
}

// ArraySet overwrites the scalar element at idx, marking the field changed.
func (c *Cell) ArraySet(i, idx int, v any) error {
	f, ad, err := c.arrayField(i)
	if err != nil {
		return err
	}
	if f.Kind == schema.KindObject {
		return fmt.Errorf("object: field %s holds sub-objects, use AddSubObject/RemoveSubObject", f.Label)
	}
	if idx < 0 || idx >= len(ad.elems) {
		return fmt.Errorf("object: array index %d out of range (len %d)", idx, len(ad.elems))
	}
	same := valuesEqual(ad.elems[idx], v)
	ad.elems[idx] = v
	c.mask.SetTouched(i)
	if !same {
		c.markChanged(i)
	}
	return nil
}

// ArrayAppend appends a scalar value, enforcing ArrayCapacity, and returns
// its new index.
func (c *Cell) ArrayAppend(i int, v any) (int, error) {
	f, ad, err := c.arrayField(i)
	if err != nil {
		return 0, err
	}
	if f.Kind == schema.KindObject {
		return 0, fmt.Errorf("object: field %s holds sub-objects, use AddSubObject", f.Label)
	}
	if len(ad.elems) >= f.ArrayCapacity {
		return 0, fmt.Errorf("object: field %s is full (capacity %d)", f.Label, f.ArrayCapacity)
	}
	ad.elems = append(ad.elems, v)
	c.mask.SetTouched(i)
	c.markChanged(i)
	return len(ad.elems) - 1, nil
}

// ArrayInsert inserts a scalar value at idx, shifting later elements right.
func (c *Cell) ArrayInsert(i, idx int, v any) error {
	f, ad, err := c.arrayField(i)
	if err != nil {
		return err
	}
	if idx < 0 || idx > len(ad.elems) {
		return fmt.Errorf("object: insert index %d out of range (len %d)", idx, len(ad.elems))
	}
	if len(ad.elems) >= f.ArrayCapacity {
		return fmt.Errorf("object: field %s is full (capacity %d)", f.Label, f.ArrayCapacity)
	}
	ad.elems = append(ad.elems, nil)
	copy(ad.elems[idx+1:], ad.elems[idx:])
	ad.elems[idx] = v
	c.mask.SetTouched(i)
	c.markChanged(i)
	return nil
}

// ArrayRemoveAt removes the element at idx, preserving order.
func (c *Cell) ArrayRemoveAt(i, idx int) error {
	_, ad, err := c.arrayField(i)
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(ad.elems) {
		return fmt.Errorf("object: array index %d out of range (len %d)", idx, len(ad.elems))
	}
	ad.elems = append(ad.elems[:idx], ad.elems[idx+1:]...)
	c.mask.SetTouched(i)
	c.markChanged(i)
	if len(ad.elems) == 0 {
		c.mask.ClearTouched(i)
	}
	return nil
}

// ClearArray empties a repeated field entirely, producing the same
// untouched-but-changed delta state Clear produces for a scalar field. This
// is what a JSON `null` does to an array field during decode.
func (c *Cell) ClearArray(i int) error {
	_, ad, err := c.arrayField(i)
	if err != nil {
		return err
	}
	ad.elems = nil
	c.clearTouch(i)
	return nil
}

// AddSubObject appends a new sub-object cell to a repeated KindObject
// field, assigning it id. An id of 0 (idgen.AUTO) is replaced by one more
// than the highest id already in the array. An id collision within the
// array is an error, matching collection Post semantics at the nested level.
func (c *Cell) AddSubObject(i int, id int64) (*Cell, error) {
	f, ad, err := c.arrayField(i)
	if err != nil {
		return nil, err
	}
	if f.Kind != schema.KindObject {
		return nil, fmt.Errorf("object: field %s does not hold sub-objects", f.Label)
	}
	if len(ad.elems) >= f.ArrayCapacity {
		return nil, fmt.Errorf("object: field %s is full (capacity %d)", f.Label, f.ArrayCapacity)
	}
	if id == 0 {
		for _, e := range ad.elems {
			if e.(*Cell).id > id {
				id = e.(*Cell).id
			}
		}
		id++
	}
	for _, e := range ad.elems {
		if e.(*Cell).id == id {
			return nil, fmt.Errorf("object: id %d already exists in field %s", id, f.Label)
		}
	}
	sub := New(f.SubType)
	sub.parent = c
	sub.slot = i
	sub.arrIdx = len(ad.elems)
	sub.SetID(id)
	ad.elems = append(ad.elems, sub)
	c.mask.SetTouched(i)
	c.markChanged(i)
	return sub, nil
}

// FindSubObjectByID performs the `*id=value`-by-id linear scan the REST
// path browser uses for sub-object array navigation.
func (c *Cell) FindSubObjectByID(i int, id int64) (*Cell, int, bool) {
	_, ad, err := c.arrayField(i)
	if err != nil {
		return nil, -1, false
	}
	for idx, e := range ad.elems {
		cell := e.(*Cell)
		if cell.id == id {
			return cell, idx, true
		}
	}
	return nil, -1, false
}

// RemoveSubObjectByID removes the sub-object with the given id, reindexing
// remaining elements' arrIdx. Returns false if not found.
func (c *Cell) RemoveSubObjectByID(i int, id int64) (bool, error) {
	_, idx, ok := c.FindSubObjectByID(i, id)
	if !ok {
		return false, nil
	}
	return true, c.ArrayRemoveAt(i, idx)
}

// SubObjects returns the live elements of a repeated sub-object field, in
// array order. Returned cells alias internal storage; callers must not
// retain them past a structural mutation of the array.
func (c *Cell) SubObjects(i int) ([]*Cell, error) {
	f, ad, err := c.arrayField(i)
	if err != nil {
		return nil, err
	}
	if f.Kind != schema.KindObject {
		return nil, fmt.Errorf("object: field %s does not hold sub-objects", f.Label)
	}
	out := make([]*Cell, len(ad.elems))
	for i, e := range ad.elems {
		out[i] = e.(*Cell)
	}
	return out, nil
}

// ScalarElems returns the raw element slice of a scalar repeated field, in
// order. The returned slice aliases internal storage and must be treated as
// read-only by callers outside this package.
func (c *Cell) ScalarElems(i int) ([]any, error) {
	f, ad, err := c.arrayField(i)
	if err != nil {
		return nil, err
	}
	if f.Kind == schema.KindObject {
		return nil, fmt.Errorf("object: field %s holds sub-objects, use SubObjects", f.Label)
	}
	return ad.elems, nil
}
