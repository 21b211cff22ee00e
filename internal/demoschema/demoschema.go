// Package demoschema is the hand-written schema a code generator would
// otherwise have produced (SPEC_FULL.md §12): the exact types spec.md's
// worked scenarios S1-S6 reference. It doubles as living documentation of
// how a consumer registers a new type against internal/schema and wires a
// resource/collection into an internal/database tree.
package demoschema

import "github.com/untoldecay/jude/internal/schema"

// Sub is the repeated sub-object type used by Root.submsg_type and by S1's
// standalone Sub collection.
var Sub = (&schema.TypeDescriptor{
	Name: "Sub",
	Fields: []*schema.FieldDescriptor{
		{Label: "id", Kind: schema.KindInt64},
		{Label: "substuff1", Kind: schema.KindString, MaxLen: 64},
		{Label: "substuff2", Kind: schema.KindInt32},
		{Label: "substuff3", Kind: schema.KindBool},
	},
}).Build()

// enumType backs Root.enum_type. "Answer" and "Truth" deliberately share
// the value 42, per S3: decode accepts either name, encode always produces
// the first-registered name for a value ("Answer").
var enumType = schema.NewEnumMap(
	struct {
		Name  string
		Value int64
	}{"Zero", 0},
	struct {
		Name  string
		Value int64
	}{"Answer", 42},
	struct {
		Name  string
		Value int64
	}{"Truth", 42},
)

// bitmaskType backs Root.bitmask_type.
var bitmaskType = schema.NewBitmaskMap(
	struct {
		Name  string
		Value uint64
	}{"Flag1", 1 << 0},
	struct {
		Name  string
		Value uint64
	}{"Flag2", 1 << 1},
	struct {
		Name  string
		Value uint64
	}{"Flag3", 1 << 2},
)

// Root is the demo resource/collection type: a string field, an enum, a
// bitmask, and a repeated Sub array, matching S2-S4's Root.
var Root = (&schema.TypeDescriptor{
	Name: "Root",
	Fields: []*schema.FieldDescriptor{
		{Label: "id", Kind: schema.KindInt64},
		{Label: "string_type", Kind: schema.KindString, MaxLen: 256},
		{Label: "enum_type", Kind: schema.KindEnum, Enum: enumType},
		{Label: "bitmask_type", Kind: schema.KindBitmask, Bitmask: bitmaskType},
		{Label: "submsg_type", Kind: schema.KindObject, SubType: Sub, ArrayCapacity: 64},
	},
}).Build()

// Target and Referrer are S5's foreign-key pair: Referrer.u64 is an
// id-reference field into Target.
var Target = (&schema.TypeDescriptor{
	Name: "Target",
	Fields: []*schema.FieldDescriptor{
		{Label: "id", Kind: schema.KindInt64},
	},
}).Build()

var Referrer = (&schema.TypeDescriptor{
	Name: "Referrer",
	Fields: []*schema.FieldDescriptor{
		{Label: "id", Kind: schema.KindInt64},
		{Label: "u64", Kind: schema.KindInt64},
	},
}).Build()
