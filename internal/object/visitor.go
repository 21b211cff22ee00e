package object

// VisitFunc is called once per field in declaration order. enter defaults
// to true before the call; the callback may set *enter = false to skip
// descending into a sub-object field (e.g. to stop at one level of nesting,
// or to suppress a whole sub-tree).
type VisitFunc func(it *FieldIterator, enter *bool)

// Mode controls how repeated sub-object fields are walked.
type Mode int

const (
	// VisitAllElements descends into every element of a repeated
	// sub-object field.
	VisitAllElements Mode = iota
	// VisitFirstElementOnly descends into at most the first element,
	// treating the array as a single representative entity, for walks
	// where only the shape of one element is wanted, not every live
	// instance.
	VisitFirstElementOnly
)

// Visit performs a depth-first traversal of cell's fields, invoking fn for
// each field and recursing into sub-objects it is allowed to enter.
func Visit(cell *Cell, mode Mode, fn VisitFunc) {
	it := Begin(cell)
	for i := 0; i < cell.typ.FieldCount(); i++ {
		it.GotoIndex(i)
		enter := true
		fn(it, &enter)
		if !enter || !it.IsSubResource() {
			continue
		}
		if it.IsArray() {
			subs, err := cell.SubObjects(i)
			if err != nil {
				continue
			}
			limit := len(subs)
			if mode == VisitFirstElementOnly && limit > 1 {
				limit = 1
			}
			for j := 0; j < limit; j++ {
				Visit(subs[j], mode, fn)
			}
		} else {
			sub, _ := cell.SubObject(i, false)
			if sub != nil {
				Visit(sub, mode, fn)
			}
		}
	}
}
