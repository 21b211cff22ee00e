// Package restapi implements the REST path browser and verb handlers: the
// URL-token grammar from spec.md's REST path grammar section, dispatched
// over an object.Cell tree into a tagged browse result, plus the
// GET/POST/PATCH/PUT/DELETE handlers that operate on it.
//
// Grounded on BeadsLog's rpc.Request/rpc.Response envelope and its
// handleRequest operation-dispatch switch
// (internal/rpc/server_routing_validation_diagnostics.go): this module
// plays the same role (single entry point, translate an internal error
// kind into an external result code) but dispatches by REST verb + path
// instead of an Operation string, and the envelope is Result{Code, Body,
// Detail, ID} instead of rpc.Response{Success, Data, Error}.
package restapi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/untoldecay/jude/internal/object"
	"github.com/untoldecay/jude/internal/schema"
)

// Permission is the access check a Browse (or Handle) call applies at every
// field it crosses: read-check for navigation ahead of a GET, write-check
// ahead of a mutating verb. spec.md describes this as a single "target
// permission" parameter; this is that parameter.
type Permission int

const (
	PermNone Permission = iota
	PermRead
	PermWrite
)

// Kind tags what a Browse call landed on.
type Kind int

const (
	KindObject Kind = iota
	KindArray
	KindField
)

// Browsed is the tagged result of walking a path.
type Browsed struct {
	Kind Kind

	// Populated when Kind == KindObject.
	Cell *object.Cell

	// Populated when Kind == KindArray or KindField: the cell that owns the
	// field, and the field descriptor itself.
	Owner *object.Cell
	Field *schema.FieldDescriptor

	// Populated when Kind == KindField and Field.IsArray(): the element
	// index within the array. -1 for a non-array scalar field.
	Index int
}

// Browse walks path starting at root, consuming one token per hop, and
// returns the tagged result or an error Code. Leading/trailing/doubled
// slashes are ignored; an empty path means root.
func Browse(root *object.Cell, path string, permission Permission, level schema.Level) (Browsed, Code) {
	tokens := splitPath(path)

	state := Browsed{Kind: KindObject, Cell: root}
	for _, tok := range tokens {
		if len(tok) > 128 {
			return Browsed{}, BadRequest
		}
		if state.Kind == KindField {
			// A field is terminal; nothing more can follow it.
			return Browsed{}, BadRequest
		}
		next, code := step(state, tok, permission, level)
		if code != 0 {
			return Browsed{}, code
		}
		state = next
	}
	return state, 0
}

func step(state Browsed, tok string, permission Permission, level schema.Level) (Browsed, Code) {
	switch state.Kind {
	case KindObject:
		return stepObject(state.Cell, tok, permission, level)
	case KindArray:
		return stepArray(state.Owner, state.Field, tok)
	default:
		return Browsed{}, BadRequest
	}
}

func stepObject(cell *object.Cell, tok string, permission Permission, level schema.Level) (Browsed, Code) {
	if !isLabel(tok) {
		return Browsed{}, BadRequest
	}
	f, ok := cell.Type().FieldByLabel(tok)
	if !ok {
		return Browsed{}, NotFound
	}
	if code := checkPermission(f, permission, level); code != 0 {
		return Browsed{}, code
	}
	if f.IsArray() {
		return Browsed{Kind: KindArray, Owner: cell, Field: f}, 0
	}
	if f.Kind == schema.KindObject {
		sub, err := cell.SubObject(f.Index, false)
		if err != nil {
			return Browsed{}, BadRequest
		}
		if sub == nil {
			return Browsed{}, NotFound
		}
		return Browsed{Kind: KindObject, Cell: sub}, 0
	}
	return Browsed{Kind: KindField, Owner: cell, Field: f, Index: -1}, 0
}

func stepArray(owner *object.Cell, f *schema.FieldDescriptor, tok string) (Browsed, Code) {
	if strings.HasPrefix(tok, "*") {
		if f.Kind != schema.KindObject {
			return Browsed{}, BadRequest
		}
		eq := strings.IndexByte(tok, '=')
		if eq < 0 {
			return Browsed{}, BadRequest
		}
		key, value := tok[1:eq], tok[eq+1:]
		subs, err := owner.SubObjects(f.Index)
		if err != nil {
			return Browsed{}, BadRequest
		}
		for _, s := range subs {
			sf, ok := s.Type().FieldByLabel(key)
			if !ok {
				return Browsed{}, BadRequest
			}
			v, _ := s.Get(sf.Index)
			if fmt.Sprintf("%v", v) == value {
				return Browsed{Kind: KindObject, Cell: s}, 0
			}
		}
		return Browsed{}, NotFound
	}

	if !isIndex(tok) {
		return Browsed{}, BadRequest
	}
	n, _ := strconv.ParseInt(tok, 10, 64)

	if f.Kind == schema.KindObject {
		sub, _, ok := owner.FindSubObjectByID(f.Index, n)
		if !ok {
			return Browsed{}, NotFound
		}
		return Browsed{Kind: KindObject, Cell: sub}, 0
	}

	idx := int(n)
	length, err := owner.ArrayLen(f.Index)
	if err != nil {
		return Browsed{}, BadRequest
	}
	if idx < 0 || idx >= length {
		return Browsed{}, NotFound
	}
	return Browsed{Kind: KindField, Owner: owner, Field: f, Index: idx}, 0
}

func checkPermission(f *schema.FieldDescriptor, permission Permission, level schema.Level) Code {
	switch permission {
	case PermRead:
		if !f.Readable(level) {
			return Forbidden
		}
	case PermWrite:
		if !f.Writable(level) {
			return Forbidden
		}
	}
	return 0
}

func splitPath(path string) []string {
	raw := strings.Split(path, "/")
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func isLabel(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
