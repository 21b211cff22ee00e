package object_test

import "github.com/untoldecay/jude/internal/schema"

// subType mirrors spec.md's S1/S4 "Sub" message: {id, substuff1, substuff2, substuff3}.
var subType = (&schema.TypeDescriptor{
	Name: "Sub",
	Fields: []*schema.FieldDescriptor{
		{Label: "id", Kind: schema.KindInt64},
		{Label: "substuff1", Kind: schema.KindString, MaxLen: 16},
		{Label: "substuff2", Kind: schema.KindInt32, Min: -1000, Max: 1000},
		{Label: "substuff3", Kind: schema.KindBool},
	},
}).Build()

var rootType = (&schema.TypeDescriptor{
	Name: "Root",
	Fields: []*schema.FieldDescriptor{
		{Label: "id", Kind: schema.KindInt64},
		{Label: "string_type", Kind: schema.KindString, MaxLen: 64},
		{Label: "enum_type", Kind: schema.KindEnum, Enum: schema.NewEnumMap(
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
		)},
		{Label: "submsg_type", Kind: schema.KindObject, ArrayCapacity: 8, SubType: subType},
		{Label: "single_sub", Kind: schema.KindObject, SubType: subType},
		{Label: "tags", Kind: schema.KindString, ArrayCapacity: 8},
	},
}).Build()
