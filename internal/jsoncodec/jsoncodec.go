// Package jsoncodec implements schema-driven JSON encode/decode over
// object.Cell, with delta semantics (null clears a field), an access-level
// filter, and an extra-field injection hook.
//
// Decoding is built on github.com/tidwall/gjson (a single-pass, low-alloc
// JSON reader) instead of reflection-based encoding/json.Unmarshal, and
// encoding is built by assembling fragments with
// github.com/tidwall/sjson -- both already sit in the teacher's dependency
// graph (go.mod lists them as indirect, pulled in transitively) and are the
// natural fit for building/reading JSON value-by-value against a type
// descriptor instead of a Go struct.
package jsoncodec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/untoldecay/jude/internal/idgen"
	"github.com/untoldecay/jude/internal/object"
	"github.com/untoldecay/jude/internal/schema"
)

// UnknownFieldHandler is invoked for a JSON object key with no matching
// field label. Returning an error aborts the decode; returning nil ignores
// the field (spec.md §4.5's "silently skipped or routed to a handler").
type UnknownFieldHandler func(label string, value gjson.Result) error

// ExtraFieldFunc lets a caller inject additional untyped key/value pairs
// into an encoded object, e.g. a computed "_links" sibling.
type ExtraFieldFunc func() map[string]any

// Encode renders cell as a JSON object, honoring level's read permissions.
// Only touched fields are emitted unless withNulls is set, in which case
// changed-but-cleared fields are also emitted as null so the result can
// round-trip through Decode as a delta.
func Encode(cell *object.Cell, level schema.Level, withNulls bool, extra ExtraFieldFunc) (string, error) {
	out := "{}"
	typ := cell.Type()
	for _, f := range typ.Fields {
		if !f.Readable(level) {
			continue
		}
		touched := cell.Touched(f.Index)
		changed := cell.Changed(f.Index)
		if !touched && !changed {
			continue
		}
		if !touched {
			if !withNulls {
				continue
			}
			var err error
			out, err = sjson.SetRaw(out, f.Label, "null")
			if err != nil {
				return "", err
			}
			continue
		}
		frag, err := encodeFieldValue(cell, f, level, withNulls)
		if err != nil {
			return "", err
		}
		out, err = sjson.SetRaw(out, f.Label, frag)
		if err != nil {
			return "", err
		}
	}
	if extra != nil {
		for k, v := range extra() {
			raw, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			var err2 error
			out, err2 = sjson.SetRaw(out, k, string(raw))
			if err2 != nil {
				return "", err2
			}
		}
	}
	return out, nil
}

// EncodeFieldValue renders a single field (whole array, or a scalar/object
// field) of cell as a JSON fragment, for the restapi handlers' GET on an
// Array or a non-indexed Field browse result.
func EncodeFieldValue(cell *object.Cell, f *schema.FieldDescriptor, level schema.Level) (string, error) {
	if !cell.Touched(f.Index) && !f.IsArray() {
		return "null", nil
	}
	return encodeFieldValue(cell, f, level, false)
}

// EncodeArrayElement renders the idx'th element of a repeated field as a
// JSON fragment, for the restapi handlers' GET on an indexed Field browse
// result inside an array.
func EncodeArrayElement(cell *object.Cell, f *schema.FieldDescriptor, idx int, level schema.Level) (string, error) {
	if f.Kind == schema.KindObject {
		subs, err := cell.SubObjects(f.Index)
		if err != nil {
			return "", err
		}
		if idx < 0 || idx >= len(subs) {
			return "", fmt.Errorf("%s: array index %d out of range", f.Label, idx)
		}
		return Encode(subs[idx], level, false, nil)
	}
	elems, err := cell.ScalarElems(f.Index)
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(elems) {
		return "", fmt.Errorf("%s: array index %d out of range", f.Label, idx)
	}
	return encodeScalar(f, elems[idx])
}

func encodeFieldValue(cell *object.Cell, f *schema.FieldDescriptor, level schema.Level, withNulls bool) (string, error) {
	if f.IsArray() {
		return encodeArray(cell, f, level, withNulls)
	}
	if f.Kind == schema.KindObject {
		sub, err := cell.SubObject(f.Index, false)
		if err != nil {
			return "", err
		}
		if sub == nil {
			return "null", nil
		}
		return Encode(sub, level, withNulls, nil)
	}
	v, err := cell.Get(f.Index)
	if err != nil {
		return "", err
	}
	return encodeScalar(f, v)
}

func encodeArray(cell *object.Cell, f *schema.FieldDescriptor, level schema.Level, withNulls bool) (string, error) {
	if f.Kind == schema.KindObject {
		subs, err := cell.SubObjects(f.Index)
		if err != nil {
			return "", err
		}
		parts := make([]string, 0, len(subs))
		for _, s := range subs {
			frag, err := Encode(s, level, withNulls, nil)
			if err != nil {
				return "", err
			}
			parts = append(parts, frag)
		}
		return "[" + strings.Join(parts, ",") + "]", nil
	}
	elems, err := cell.ScalarElems(f.Index)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(elems))
	for _, v := range elems {
		frag, err := encodeScalar(f, v)
		if err != nil {
			return "", err
		}
		parts = append(parts, frag)
	}
	return "[" + strings.Join(parts, ",") + "]", nil
}

func encodeScalar(f *schema.FieldDescriptor, v any) (string, error) {
	switch f.Kind {
	case schema.KindBytes:
		b, _ := v.([]byte)
		raw, err := json.Marshal(base64.StdEncoding.EncodeToString(b))
		return string(raw), err
	case schema.KindEnum:
		iv := asInt64(v)
		if name, ok := f.Enum.ByValue(iv); ok {
			raw, err := json.Marshal(name)
			return string(raw), err
		}
		return fmt.Sprintf("%d", iv), nil
	case schema.KindBitmask:
		mv := asUint64(v)
		out := "{}"
		for _, bit := range f.Bitmask.Names() {
			set := mv&bit.Value != 0
			raw, err := json.Marshal(set)
			if err != nil {
				return "", err
			}
			var err2 error
			out, err2 = sjson.SetRaw(out, bit.Name, string(raw))
			if err2 != nil {
				return "", err2
			}
		}
		return out, nil
	default:
		raw, err := json.Marshal(v)
		return string(raw), err
	}
}

// DecodeScalarValue parses a single JSON scalar (not an object) against f's
// kind, for restapi's POST-to-array-field handler appending one element.
func DecodeScalarValue(f *schema.FieldDescriptor, body []byte) (any, error) {
	return decodeScalar(f, gjson.ParseBytes(body))
}

// IsNull reports whether body is the bare JSON literal null, for callers
// (restapi's PATCH/PUT on a single field cell) that need to branch between
// "clear this field" and "decode a scalar value" before DecodeScalarValue's
// kind-specific parsing ever gets a say.
func IsNull(body []byte) bool {
	return gjson.ParseBytes(body).Type == gjson.Null
}

// PeekID extracts the "id" field of a top-level JSON object body without a
// full schema-driven decode, for restapi's POST handler choosing between a
// caller-supplied id and an auto-generated one.
func PeekID(body []byte) (int64, bool) {
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return 0, false
	}
	idv := root.Get("id")
	if !idv.Exists() || idv.Type != gjson.Number {
		return 0, false
	}
	return idv.Int(), true
}

// Decode applies data onto cell with PATCH semantics: present fields are
// set, `null` clears, absent fields are left alone. level gates which
// fields may be written. unknown is consulted for JSON keys with no
// matching field label (may be nil to silently ignore them).
func Decode(cell *object.Cell, data []byte, level schema.Level, unknown UnknownFieldHandler) error {
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return fmt.Errorf("jsoncodec: expected a JSON object")
	}
	typ := cell.Type()
	var outerErr error
	root.ForEach(func(key, val gjson.Result) bool {
		label := key.String()
		f, ok := typ.FieldByLabel(label)
		if !ok {
			if unknown != nil {
				if err := unknown(label, val); err != nil {
					outerErr = err
					return false
				}
			}
			return true
		}
		if !f.Writable(level) {
			outerErr = fmt.Errorf("%s: forbidden", label)
			return false
		}
		if err := decodeFieldValue(cell, f, val, level, unknown); err != nil {
			outerErr = err
			return false
		}
		return true
	})
	return outerErr
}

// DecodePut applies data with PUT semantics: every touched bit except id is
// cleared first, so the body fully defines the resulting state, then it
// decodes exactly as Decode does.
func DecodePut(cell *object.Cell, data []byte, level schema.Level, unknown UnknownFieldHandler) error {
	for _, f := range cell.Type().Fields {
		if f.Index == schema.IdField {
			continue
		}
		if f.IsArray() {
			if cell.Touched(f.Index) {
				if err := cell.ClearArray(f.Index); err != nil {
					return err
				}
			}
			continue
		}
		if cell.Touched(f.Index) {
			if err := cell.Clear(f.Index); err != nil {
				return err
			}
		}
	}
	return Decode(cell, data, level, unknown)
}

func decodeFieldValue(cell *object.Cell, f *schema.FieldDescriptor, val gjson.Result, level schema.Level, unknown UnknownFieldHandler) error {
	if val.Type == gjson.Null {
		if f.IsArray() {
			return cell.ClearArray(f.Index)
		}
		return cell.Clear(f.Index)
	}
	if f.IsArray() {
		return decodeArray(cell, f, val, level, unknown)
	}
	if f.Kind == schema.KindObject {
		if !val.IsObject() {
			return fmt.Errorf("%s: expected a JSON object", f.Label)
		}
		sub, err := cell.SubObject(f.Index, true)
		if err != nil {
			return err
		}
		return Decode(sub, []byte(val.Raw), level, unknown)
	}
	if f.Kind == schema.KindBitmask {
		return decodeBitmask(cell, f, val)
	}
	v, err := decodeScalar(f, val)
	if err != nil {
		return err
	}
	if f.Kind == schema.KindString {
		_, err := cell.SetString(f.Index, v.(string))
		return err
	}
	if f.Kind == schema.KindBytes {
		_, err := cell.SetBytes(f.Index, v.([]byte))
		return err
	}
	return cell.Set(f.Index, v)
}

func decodeArray(cell *object.Cell, f *schema.FieldDescriptor, val gjson.Result, level schema.Level, unknown UnknownFieldHandler) error {
	if !val.IsArray() {
		return fmt.Errorf("%s: expected a JSON array", f.Label)
	}
	if err := cell.ClearArray(f.Index); err != nil {
		return err
	}
	for _, elem := range val.Array() {
		if f.Kind == schema.KindObject {
			if !elem.IsObject() {
				return fmt.Errorf("%s: expected array of JSON objects", f.Label)
			}
			id := idgen.AUTO
			if idVal := elem.Get("id"); idVal.Exists() {
				id = idVal.Int()
			}
			sub, err := cell.AddSubObject(f.Index, id)
			if err != nil {
				return err
			}
			if err := Decode(sub, []byte(elem.Raw), level, unknown); err != nil {
				return err
			}
			continue
		}
		v, err := decodeScalar(f, elem)
		if err != nil {
			return err
		}
		if _, err := cell.ArrayAppend(f.Index, v); err != nil {
			return err
		}
	}
	return nil
}

func decodeBitmask(cell *object.Cell, f *schema.FieldDescriptor, val gjson.Result) error {
	cur := uint64(0)
	if v, err := cell.Get(f.Index); err == nil {
		cur = asUint64(v)
	}
	switch {
	case val.Type == gjson.Number:
		return cell.Set(f.Index, val.Uint())
	case val.IsObject():
		val.ForEach(func(key, bv gjson.Result) bool {
			bit, ok := f.Bitmask.ByName(key.String())
			if !ok {
				return true // unknown bit name accepted for forward compatibility
			}
			if bv.Bool() {
				cur |= bit
			} else {
				cur &^= bit
			}
			return true
		})
		return cell.Set(f.Index, cur)
	default:
		return fmt.Errorf("%s: expected an integer or object for a bitmask field", f.Label)
	}
}

func decodeScalar(f *schema.FieldDescriptor, val gjson.Result) (any, error) {
	switch f.Kind {
	case schema.KindBool:
		if val.Type != gjson.True && val.Type != gjson.False {
			return nil, fmt.Errorf("%s: expected a boolean", f.Label)
		}
		return val.Bool(), nil
	case schema.KindString:
		if val.Type != gjson.String {
			return nil, fmt.Errorf("%s: expected a string", f.Label)
		}
		return val.String(), nil
	case schema.KindBytes:
		if val.Type != gjson.String {
			return nil, fmt.Errorf("%s: expected a base64 string", f.Label)
		}
		b, err := base64.StdEncoding.DecodeString(val.String())
		if err != nil {
			return nil, fmt.Errorf("%s: invalid base64: %w", f.Label, err)
		}
		return b, nil
	case schema.KindFloat:
		if val.Type != gjson.Number {
			return nil, fmt.Errorf("%s: expected a number", f.Label)
		}
		return val.Float(), nil
	case schema.KindEnum:
		switch val.Type {
		case gjson.String:
			v, ok := f.Enum.ByName(val.String())
			if !ok {
				return nil, fmt.Errorf("%s: unknown enum name %q", f.Label, val.String())
			}
			return v, nil
		case gjson.Number:
			v := val.Int()
			if _, ok := f.Enum.ByValue(v); !ok {
				return nil, fmt.Errorf("%s: %d is not a valid enum value", f.Label, v)
			}
			return v, nil
		default:
			return nil, fmt.Errorf("%s: expected an enum name or integer", f.Label)
		}
	default: // integer kinds
		if val.Type != gjson.Number {
			return nil, fmt.Errorf("%s: expected an integer", f.Label)
		}
		return castInt(f.Kind, val), nil
	}
}

func castInt(k schema.Kind, val gjson.Result) any {
	switch k {
	case schema.KindInt8:
		return int8(val.Int())
	case schema.KindInt16:
		return int16(val.Int())
	case schema.KindInt32:
		return int32(val.Int())
	case schema.KindInt64:
		return val.Int()
	case schema.KindUint8:
		return uint8(val.Uint())
	case schema.KindUint16:
		return uint16(val.Uint())
	case schema.KindUint32:
		return uint32(val.Uint())
	case schema.KindUint64:
		return val.Uint()
	default:
		return val.Int()
	}
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	default:
		return 0
	}
}

func asUint64(v any) uint64 {
	switch n := v.(type) {
	case uint8:
		return uint64(n)
	case uint16:
		return uint64(n)
	case uint32:
		return uint64(n)
	case uint64:
		return n
	case int64:
		return uint64(n)
	default:
		return 0
	}
}
