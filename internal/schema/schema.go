// Package schema describes message types at runtime: the RTTI the rest of
// the database drives off of instead of a code generator. A TypeDescriptor
// is immutable once built and is shared by every Cell of that type.
package schema

import "fmt"

// Level is a user permission threshold. A caller may read or write a field
// iff their level is >= the field's required level; Root always passes.
type Level int

const (
	Public Level = iota
	Admin
	Root
)

func (l Level) String() string {
	switch l {
	case Public:
		return "Public"
	case Admin:
		return "Admin"
	case Root:
		return "Root"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Kind is the tagged-union discriminant for a field's storage type.
type Kind int

const (
	KindBool Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat
	KindString
	KindBytes
	KindEnum
	KindBitmask
	KindObject
)

func (k Kind) String() string {
	names := [...]string{"bool", "int8", "int16", "int32", "int64", "uint8", "uint16",
		"uint32", "uint64", "float", "string", "bytes", "enum", "bitmask", "object"}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// IsInteger reports whether the kind is one of the signed/unsigned integer kinds.
func (k Kind) IsInteger() bool {
	return k >= KindInt8 && k <= KindUint64
}

// IdField is the reserved field index every type descriptor carries for its id.
const IdField = 0

// MaxFields bounds how many fields a single type may declare; Build panics
// for a type that declares more.
const MaxFields = 256

// EnumMap maps symbolic enum names to their integer values. Two names may
// legally share a value (see demoschema's enum_type: "Answer" and "Truth"
// both mean 42); decode from either, encode the first name registered for
// a value.
type EnumMap struct {
	names  []string
	values []int64
}

// NewEnumMap builds an EnumMap from ordered (name, value) pairs.
func NewEnumMap(pairs ...struct {
	Name  string
	Value int64
}) *EnumMap {
	m := &EnumMap{}
	for _, p := range pairs {
		m.names = append(m.names, p.Name)
		m.values = append(m.values, p.Value)
	}
	return m
}

// ByName looks up a symbolic name, returning its value and whether it was found.
func (m *EnumMap) ByName(name string) (int64, bool) {
	for i, n := range m.names {
		if n == name {
			return m.values[i], true
		}
	}
	return 0, false
}

// ByValue reports whether a raw value is a member of the enum, and returns
// the first registered name for it (used for encoding).
func (m *EnumMap) ByValue(v int64) (string, bool) {
	for i, val := range m.values {
		if val == v {
			return m.names[i], true
		}
	}
	return "", false
}

// Names returns every registered enum name, in registration order.
func (m *EnumMap) Names() []string {
	return append([]string(nil), m.names...)
}

// BitmaskMap names the individual bits of a bitmask field.
type BitmaskMap struct {
	names  []string
	values []uint64
}

// NewBitmaskMap builds a BitmaskMap from ordered (name, bit-value) pairs.
// Values are expected to be single-bit (1<<k) but that isn't enforced here.
func NewBitmaskMap(pairs ...struct {
	Name  string
	Value uint64
}) *BitmaskMap {
	m := &BitmaskMap{}
	for _, p := range pairs {
		m.names = append(m.names, p.Name)
		m.values = append(m.values, p.Value)
	}
	return m
}

// ByName looks up a named bit's value.
func (m *BitmaskMap) ByName(name string) (uint64, bool) {
	for i, n := range m.names {
		if n == name {
			return m.values[i], true
		}
	}
	return 0, false
}

// Names returns every registered (name, value) pair, in registration order.
func (m *BitmaskMap) Names() []struct {
	Name  string
	Value uint64
} {
	out := make([]struct {
		Name  string
		Value uint64
	}, len(m.names))
	for i := range m.names {
		out[i] = struct {
			Name  string
			Value uint64
		}{m.names[i], m.values[i]}
	}
	return out
}

// FieldDescriptor describes one field of a type: its wire label, its kind,
// permissions, persistence/action flags, bounds, and kind-specific details.
type FieldDescriptor struct {
	Label       string
	Description string
	Tag         int // protobuf-compatible wire tag; out of scope to encode here, kept for parity
	Index       int
	Kind        Kind

	// ArrayCapacity > 0 marks this as a repeated field with at most that
	// many elements. 0 means a scalar field.
	ArrayCapacity int

	Persist      bool
	AlwaysNotify bool
	IsAction     bool // write-only (never Readable); writes leave touched set, as for any other field

	ReadLevel  Level
	WriteLevel Level

	Min, Max float64 // only meaningful for numeric kinds; Max < Min means "no bound"
	MaxLen   int     // capacity for KindString (runes) / KindBytes (bytes); 0 means unbounded

	// Exactly one of the following is populated, matching Kind.
	SubType   *TypeDescriptor // KindObject
	Enum      *EnumMap        // KindEnum
	Bitmask   *BitmaskMap     // KindBitmask
	Default   any             // scalar default value, nil if none
}

// HasBounds reports whether Min/Max were set to a real range.
func (f *FieldDescriptor) HasBounds() bool {
	return f.Max >= f.Min && (f.Min != 0 || f.Max != 0)
}

// InRange reports whether v satisfies the field's declared numeric bounds.
func (f *FieldDescriptor) InRange(v float64) bool {
	if !f.HasBounds() {
		return true
	}
	return v >= f.Min && v <= f.Max
}

// IsArray reports whether the field is repeated.
func (f *FieldDescriptor) IsArray() bool { return f.ArrayCapacity > 0 }

// IsSubResource reports whether the field (or its array elements) hold sub-objects.
func (f *FieldDescriptor) IsSubResource() bool { return f.Kind == KindObject }

// Readable reports whether level may read this field. Action fields are
// never readable (spec.md open question, decided: actions are write-only).
func (f *FieldDescriptor) Readable(level Level) bool {
	if f.IsAction {
		return false
	}
	return level == Root || level >= f.ReadLevel
}

// Writable reports whether level may write this field.
func (f *FieldDescriptor) Writable(level Level) bool {
	return level == Root || level >= f.WriteLevel
}

// TypeDescriptor is the RTTI for one message type: its ordered field list.
type TypeDescriptor struct {
	Name   string
	Fields []*FieldDescriptor

	byLabel map[string]*FieldDescriptor
	byTag   map[int]*FieldDescriptor
}

// Build finalizes the lookup tables after Fields has been populated. Every
// hand-written schema (see internal/demoschema) calls this once at init time.
func (t *TypeDescriptor) Build() *TypeDescriptor {
	t.byLabel = make(map[string]*FieldDescriptor, len(t.Fields))
	t.byTag = make(map[int]*FieldDescriptor, len(t.Fields))
	for i, f := range t.Fields {
		f.Index = i
		t.byLabel[f.Label] = f
		t.byTag[f.Tag] = f
	}
	if len(t.Fields) > MaxFields {
		panic(fmt.Sprintf("schema %s: %d fields exceeds MaxFields(%d)", t.Name, len(t.Fields), MaxFields))
	}
	return t
}

// FieldCount returns the number of fields, including id.
func (t *TypeDescriptor) FieldCount() int { return len(t.Fields) }

// FieldByLabel looks up a field descriptor by its JSON/REST label.
func (t *TypeDescriptor) FieldByLabel(label string) (*FieldDescriptor, bool) {
	f, ok := t.byLabel[label]
	return f, ok
}

// FieldByTag looks up a field descriptor by its binary wire tag.
func (t *TypeDescriptor) FieldByTag(tag int) (*FieldDescriptor, bool) {
	f, ok := t.byTag[tag]
	return f, ok
}

// FieldByIndex returns the field at a dense index, or nil if out of range.
func (t *TypeDescriptor) FieldByIndex(i int) *FieldDescriptor {
	if i < 0 || i >= len(t.Fields) {
		return nil
	}
	return t.Fields[i]
}

// IdDescriptor returns the reserved id field (index 0).
func (t *TypeDescriptor) IdDescriptor() *FieldDescriptor {
	return t.Fields[IdField]
}

// Registry is a name -> TypeDescriptor table for enumerating types by name.
// It is not consulted by the object/codec layers or by internal/schemaexport,
// which all hold direct *TypeDescriptor pointers.
type Registry struct {
	types map[string]*TypeDescriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*TypeDescriptor)}
}

// Register installs a type descriptor under its own Name. Re-registering
// the same name is a programmer error and panics, matching spec.md's
// Database.Install one-shot semantics.
func (r *Registry) Register(t *TypeDescriptor) {
	if _, exists := r.types[t.Name]; exists {
		panic(fmt.Sprintf("schema: type %q already registered", t.Name))
	}
	r.types[t.Name] = t
}

// Lookup returns a previously registered type descriptor by name.
func (r *Registry) Lookup(name string) (*TypeDescriptor, bool) {
	t, ok := r.types[name]
	return t, ok
}

// All returns every registered type descriptor, for export generators that
// need to walk the whole set (e.g. to emit $defs).
func (r *Registry) All() []*TypeDescriptor {
	out := make([]*TypeDescriptor, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	return out
}
