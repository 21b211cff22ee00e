package object

import (
	"bytes"

	"github.com/untoldecay/jude/internal/schema"
)

// Compare performs a deep, order-sensitive comparison of two cells of the
// same type. It returns <0, 0, or >0 the way strings.Compare does.
//
// Per spec.md §4.2: an untouched field sorts before a touched field at the
// same index, regardless of the raw bytes underneath; array fields compare
// their count before their elements (a shorter array sorts first).
func Compare(a, b *Cell) int {
	if a.typ != b.typ {
		if a.typ.Name != b.typ.Name {
			return cmpString(a.typ.Name, b.typ.Name)
		}
	}
	n := a.typ.FieldCount()
	for i := 0; i < n; i++ {
		if c := compareField(a, b, i); c != 0 {
			return c
		}
	}
	return 0
}

func compareField(a, b *Cell, i int) int {
	at, bt := a.mask.Touched(i), b.mask.Touched(i)
	if at != bt {
		if !at {
			return -1
		}
		return 1
	}
	if !at {
		return 0 // both untouched: equal regardless of stale bytes
	}
	f := a.typ.FieldByIndex(i)
	if f.IsArray() {
		return compareArrayField(a, b, i)
	}
	if f.Kind == schema.KindObject {
		suba, _ := a.SubObject(i, false)
		subb, _ := b.SubObject(i, false)
		if suba == nil || subb == nil {
			return 0
		}
		return Compare(suba, subb)
	}
	return compareScalar(a.values[i], b.values[i])
}

func compareArrayField(a, b *Cell, i int) int {
	la, _ := a.ArrayLen(i)
	lb, _ := b.ArrayLen(i)
	if la != lb {
		if la < lb {
			return -1
		}
		return 1
	}
	f := a.typ.FieldByIndex(i)
	if f.Kind == schema.KindObject {
		subsA, _ := a.SubObjects(i)
		subsB, _ := b.SubObjects(i)
		for j := range subsA {
			if c := Compare(subsA[j], subsB[j]); c != 0 {
				return c
			}
		}
		return 0
	}
	ea, _ := a.ScalarElems(i)
	eb, _ := b.ScalarElems(i)
	for j := range ea {
		if c := compareScalar(ea[j], eb[j]); c != 0 {
			return c
		}
	}
	return 0
}

func compareScalar(a, b any) int {
	switch av := a.(type) {
	case string:
		return cmpString(av, b.(string))
	case []byte:
		return bytes.Compare(av, b.([]byte))
	case bool:
		bv := b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	default:
		fa, oka := toFloat(a)
		fb, okb := toFloat(b)
		if oka && okb {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
