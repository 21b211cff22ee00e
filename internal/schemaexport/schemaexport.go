// Package schemaexport renders a schema.TypeDescriptor (or a list of
// installed Entry values) as JSON-Schema or an OpenAPI 3 path-item fragment,
// filtered by an access level. These are pure functions: no object.Cell, no
// I/O.
//
// Grounded on spec.md §6's "Schema export" section; BeadsLog has no
// equivalent generator, so the shape here follows the spec's field list
// directly (type/properties/enum/maxLength/minimum/maximum/$ref/$defs) the
// way the teacher's own validation.template.go walks a field-descriptor
// table to build something else (a rendered template) from the same RTTI.
package schemaexport

import (
	"encoding/json"
	"fmt"

	"github.com/untoldecay/jude/internal/schema"
)

// JSONSchema renders t as a JSON-Schema object, with $defs for every
// sub-object type reachable from it, filtered so only fields level can read
// appear. The result is a plain map so callers can further post-process it
// before marshaling.
func JSONSchema(t *schema.TypeDescriptor, level schema.Level) map[string]any {
	defs := map[string]any{}
	root := typeSchema(t, level, defs)
	if len(defs) > 0 {
		root["$defs"] = defs
	}
	return root
}

// JSONSchemaBytes is a convenience wrapper that marshals JSONSchema's result.
func JSONSchemaBytes(t *schema.TypeDescriptor, level schema.Level) ([]byte, error) {
	return json.MarshalIndent(JSONSchema(t, level), "", "  ")
}

func typeSchema(t *schema.TypeDescriptor, level schema.Level, defs map[string]any) map[string]any {
	props := map[string]any{}
	var required []string
	for _, f := range t.Fields {
		if !f.Readable(level) {
			continue
		}
		props[f.Label] = fieldSchema(f, level, defs)
		if f.Index == schema.IdField {
			required = append(required, f.Label)
		}
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func fieldSchema(f *schema.FieldDescriptor, level schema.Level, defs map[string]any) map[string]any {
	var base map[string]any
	switch f.Kind {
	case schema.KindBool:
		base = map[string]any{"type": "boolean"}
	case schema.KindString:
		base = map[string]any{"type": "string"}
		if f.MaxLen > 0 {
			base["maxLength"] = f.MaxLen
		}
	case schema.KindBytes:
		base = map[string]any{"type": "string", "format": "byte"}
	case schema.KindFloat:
		base = map[string]any{"type": "number"}
		addBounds(base, f)
	case schema.KindEnum:
		var names []string
		for _, n := range f.Enum.Names() {
			names = append(names, n)
		}
		base = map[string]any{"type": []string{"string", "integer"}, "enum": names}
	case schema.KindBitmask:
		bits := map[string]any{}
		for _, b := range f.Bitmask.Names() {
			bits[b.Name] = map[string]any{"type": "boolean"}
		}
		base = map[string]any{
			"oneOf": []any{
				map[string]any{"type": "integer"},
				map[string]any{"type": "object", "properties": bits},
			},
		}
	case schema.KindObject:
		ref := "#/$defs/" + f.SubType.Name
		if _, ok := defs[f.SubType.Name]; !ok {
			defs[f.SubType.Name] = struct{}{} // reserve the name first, breaking recursive cycles
			defs[f.SubType.Name] = typeSchema(f.SubType, level, defs)
		}
		base = map[string]any{"$ref": ref}
	default:
		base = map[string]any{"type": "integer"}
		addBounds(base, f)
	}
	if f.Description != "" {
		base["description"] = f.Description
	}
	if f.IsArray() {
		return map[string]any{
			"type":     "array",
			"items":    base,
			"maxItems": f.ArrayCapacity,
		}
	}
	return base
}

func addBounds(m map[string]any, f *schema.FieldDescriptor) {
	if !f.HasBounds() {
		return
	}
	m["minimum"] = f.Min
	m["maximum"] = f.Max
}

// EnumNames is a small helper exposed for templates/tests that just need a
// type's enum member names without walking the full schema.
func EnumNames(e *schema.EnumMap) []string {
	var out []string
	for _, n := range e.Names() {
		out = append(out, n)
	}
	return out
}

// Entry describes one installed database path for OpenAPI generation:
// its mount path, root type, and whether it is a singleton resource or an
// id-keyed collection.
type Entry struct {
	Path         string
	Type         *schema.TypeDescriptor
	IsCollection bool
}

// OpenAPIPaths renders a "paths" fragment (map of path -> path-item) for
// every entry, suitable for merging into a larger OpenAPI 3 document.
func OpenAPIPaths(entries []Entry, level schema.Level) map[string]any {
	paths := map[string]any{}
	for _, e := range entries {
		schemaRef := map[string]any{"$ref": "#/components/schemas/" + e.Type.Name}
		getOp := map[string]any{
			"summary": fmt.Sprintf("Read %s", e.Path),
			"responses": map[string]any{
				"200": map[string]any{
					"description": "OK",
					"content": map[string]any{
						"application/json": map[string]any{"schema": schemaRef},
					},
				},
			},
		}
		item := map[string]any{"get": getOp}
		if e.IsCollection {
			item["post"] = map[string]any{
				"summary": fmt.Sprintf("Create an entry in %s", e.Path),
				"requestBody": map[string]any{
					"content": map[string]any{
						"application/json": map[string]any{"schema": schemaRef},
					},
				},
				"responses": map[string]any{
					"201": map[string]any{"description": "Created"},
				},
			}
		} else {
			item["patch"] = map[string]any{
				"summary": fmt.Sprintf("Update %s", e.Path),
				"responses": map[string]any{
					"200": map[string]any{"description": "OK"},
				},
			}
		}
		paths["/"+e.Path] = item
	}
	return paths
}

// ComponentsSchemas renders every type reachable from entries under
// OpenAPI's components.schemas, keyed by type name.
func ComponentsSchemas(entries []Entry, level schema.Level) map[string]any {
	out := map[string]any{}
	for _, e := range entries {
		rendered := JSONSchema(e.Type, level)
		if defs, ok := rendered["$defs"].(map[string]any); ok {
			for name, def := range defs {
				out[name] = def
			}
			delete(rendered, "$defs")
		}
		out[e.Type.Name] = rendered
	}
	return out
}
