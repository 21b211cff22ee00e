package object

import (
	"fmt"

	"github.com/untoldecay/jude/internal/schema"
)

// Overwrite replaces dst's entire state (id, every field, the whole
// bitmask) with a deep clone of src. It is the primitive transaction commit
// uses: clone the live cell under lock, let the caller mutate the clone
// freely, then Overwrite the live cell with the clone on commit. The
// bitmask is copied as-is: Overwrite has no option to clear changed bits
// as part of the copy; that is a separate ClearChanges call.
func Overwrite(dst, src *Cell) error {
	if dst.typ != src.typ {
		return fmt.Errorf("object: cannot overwrite %s with %s", dst.typ.Name, src.typ.Name)
	}
	dst.id = src.id
	dst.mask = src.mask.Clone()
	dst.values = make([]any, len(src.values))
	for i, f := range src.typ.Fields {
		switch {
		case src.values[i] == nil:
			dst.values[i] = nil
		case f.Kind == schema.KindObject && !f.IsArray():
			sub := src.values[i].(*Cell)
			clone := New(sub.typ)
			if err := Overwrite(clone, sub); err != nil {
				return err
			}
			clone.parent = dst
			clone.slot = i
			clone.arrIdx = -1
			dst.values[i] = clone
		case f.Kind == schema.KindObject && f.IsArray():
			ad := src.values[i].(*arrayData)
			nad := &arrayData{elems: make([]any, len(ad.elems))}
			for j, e := range ad.elems {
				sub := e.(*Cell)
				clone := New(sub.typ)
				if err := Overwrite(clone, sub); err != nil {
					return err
				}
				clone.parent = dst
				clone.slot = i
				clone.arrIdx = j
				nad.elems[j] = clone
			}
			dst.values[i] = nad
		case f.IsArray():
			ad := src.values[i].(*arrayData)
			nad := &arrayData{elems: append([]any(nil), ad.elems...)}
			dst.values[i] = nad
		default:
			dst.values[i] = src.values[i]
		}
	}
	return nil
}

// Clone returns a deep, independent copy of c, detached from any parent.
func Clone(c *Cell) *Cell {
	out := New(c.typ)
	_ = Overwrite(out, c)
	out.parent = nil
	out.slot = -1
	out.arrIdx = -1
	return out
}

// Copy applies src's state onto dst field by field and reports whether dst
// actually changed as a result. If deltasOnly is true, only src fields with
// the changed bit set are considered -- this is the JSON PATCH / delta
// merge primitive (spec.md §8 "delta merge law": Copy(dst, delta(base,
// target), true) reconstructs target from base).
//
// Per spec.md §4.2: a source field that is cleared (!touched && changed)
// clears the destination and marks it changed; deltasOnly additionally
// skips any source field whose changed bit is false.
func Copy(dst, src *Cell, deltasOnly bool) (bool, error) {
	if dst.typ != src.typ {
		return false, fmt.Errorf("object: cannot copy %s into %s", src.typ.Name, dst.typ.Name)
	}
	anyChange := false
	for i, f := range src.typ.Fields {
		if deltasOnly && !src.mask.Changed(i) {
			continue
		}
		if !src.mask.Touched(i) {
			if dst.mask.Touched(i) {
				_ = dst.Clear(i)
				anyChange = true
			} else if !dst.mask.Changed(i) && src.mask.Changed(i) {
				dst.mask.SetChanged(i)
				anyChange = true
			}
			continue
		}
		switch {
		case f.Kind == schema.KindObject && !f.IsArray():
			srcSub, _ := src.SubObject(i, false)
			if srcSub == nil {
				continue
			}
			dstSub, _ := dst.SubObject(i, true)
			changed, err := Copy(dstSub, srcSub, deltasOnly)
			if err != nil {
				return false, err
			}
			if changed {
				dst.mask.SetTouched(i)
				dst.markChanged(i)
				anyChange = true
			}
		case f.Kind == schema.KindObject && f.IsArray():
			changed, err := copyObjectArray(dst, src, i, deltasOnly)
			if err != nil {
				return false, err
			}
			anyChange = anyChange || changed
		case f.IsArray():
			srcElems, _ := src.ScalarElems(i)
			dstElems, _ := dst.values[i].(*arrayData)
			if dstElems == nil || !sameElems(dstElems.elems, srcElems) {
				dst.values[i] = &arrayData{elems: append([]any(nil), srcElems...)}
				dst.mask.SetTouched(i)
				dst.markChanged(i)
				anyChange = true
			}
		default:
			same := dst.mask.Touched(i) && valuesEqual(dst.values[i], src.values[i])
			if !same {
				dst.values[i] = src.values[i]
				dst.mask.SetTouched(i)
				dst.markChanged(i)
				anyChange = true
			}
		}
	}
	return anyChange, nil
}

func sameElems(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !valuesEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func copyObjectArray(dst, src *Cell, i int, deltasOnly bool) (bool, error) {
	srcSubs, err := src.SubObjects(i)
	if err != nil {
		return false, err
	}
	anyChange := false
	for _, s := range srcSubs {
		d, _, found := dst.FindSubObjectByID(i, s.id)
		if !found {
			d, err = dst.AddSubObject(i, s.id)
			if err != nil {
				return false, err
			}
			anyChange = true
		}
		changed, err := Copy(d, s, deltasOnly)
		if err != nil {
			return false, err
		}
		anyChange = anyChange || changed
	}
	return anyChange, nil
}

// ClearChanges recursively clears every changed bit in the cell tree,
// leaving touched bits alone.
func ClearChanges(c *Cell) {
	c.mask.ClearAllChanged()
	Visit(c, VisitAllElements, func(it *FieldIterator, enter *bool) {
		it.Cell().mask.ClearAllChanged()
	})
}

// ClearTouches recursively clears every touched bit (and, implicitly,
// marks every previously-touched field changed, since clearing is itself a
// transition).
func ClearTouches(c *Cell) {
	clearTouchesRec(c)
}

func clearTouchesRec(c *Cell) {
	for i := 0; i < c.typ.FieldCount(); i++ {
		if c.typ.FieldByIndex(i).IsSubResource() {
			f := c.typ.FieldByIndex(i)
			if f.IsArray() {
				subs, _ := c.SubObjects(i)
				for _, s := range subs {
					clearTouchesRec(s)
				}
			} else if sub, _ := c.SubObject(i, false); sub != nil {
				clearTouchesRec(sub)
			}
		}
		if c.mask.Touched(i) {
			c.clearTouch(i)
		}
	}
}

// ClearAll recursively clears every bit (touched and changed) without
// propagating changes upward.
func ClearAll(c *Cell) {
	c.mask.ClearAll()
	for i := 0; i < c.typ.FieldCount(); i++ {
		f := c.typ.FieldByIndex(i)
		if !f.IsSubResource() {
			continue
		}
		if f.IsArray() {
			if subs, err := c.SubObjects(i); err == nil {
				for _, s := range subs {
					ClearAll(s)
				}
			}
		} else if sub, _ := c.SubObject(i, false); sub != nil {
			ClearAll(sub)
		}
	}
}
