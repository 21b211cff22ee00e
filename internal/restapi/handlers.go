package restapi

import (
	"fmt"

	"github.com/untoldecay/jude/internal/idgen"
	"github.com/untoldecay/jude/internal/jsoncodec"
	"github.com/untoldecay/jude/internal/schema"
)

// Method is a REST verb.
type Method string

const (
	GET    Method = "GET"
	POST   Method = "POST"
	PATCH  Method = "PATCH"
	PUT    Method = "PUT"
	DELETE Method = "DELETE"
)

// Handle dispatches method against a Browse result, per the verb table in
// spec.md §4.7. It operates purely on the cell tree already reached by
// Browse; taking out the owning resource/collection's lock and running
// validate-then-publish on the surrounding transaction is the caller's
// (internal/database's) job -- Handle only decides what a verb means for a
// given browse target and applies it.
func Handle(method Method, b Browsed, body []byte, level schema.Level, unknown jsoncodec.UnknownFieldHandler) Result {
	switch method {
	case GET:
		return handleGet(b, level)
	case POST:
		return handlePost(b, body, level, unknown)
	case PATCH:
		return handlePatch(b, body, level, unknown)
	case PUT:
		return handlePut(b, body, level, unknown)
	case DELETE:
		return handleDelete(b)
	default:
		return errResult(BadRequest, fmt.Sprintf("unknown method %q", method))
	}
}

func handleGet(b Browsed, level schema.Level) Result {
	switch b.Kind {
	case KindObject:
		body, err := jsoncodec.Encode(b.Cell, level, false, nil)
		if err != nil {
			return errResult(InternalError, err.Error())
		}
		return Result{Code: OK, Body: body}
	case KindArray:
		body, err := jsoncodec.EncodeFieldValue(b.Owner, b.Field, level)
		if err != nil {
			return errResult(InternalError, err.Error())
		}
		return Result{Code: OK, Body: body}
	case KindField:
		var body string
		var err error
		if b.Field.IsArray() {
			body, err = jsoncodec.EncodeArrayElement(b.Owner, b.Field, b.Index, level)
		} else {
			if !b.Owner.Touched(b.Field.Index) {
				return errResult(NotFound, fmt.Sprintf("%s is not set", b.Field.Label))
			}
			body, err = jsoncodec.EncodeFieldValue(b.Owner, b.Field, level)
		}
		if err != nil {
			return errResult(NotFound, err.Error())
		}
		return Result{Code: OK, Body: body}
	}
	return errResult(InternalError, "unreachable browse kind")
}

func handlePost(b Browsed, body []byte, level schema.Level, unknown jsoncodec.UnknownFieldHandler) Result {
	switch b.Kind {
	case KindObject:
		// A bare object target has no natural append slot: per spec.md
		// §4.7, POST to a collection root (a distinct concept from a
		// Browse(...) of "/") is handled one layer up by
		// internal/database. A Browse landing squarely on an object means
		// the path named an existing sub-object, which POST cannot target.
		return errResult(MethodNotAllowed, "POST is not valid on an object; use PATCH or navigate into a field")
	case KindArray:
		if b.Field.Kind == schema.KindObject {
			id := idgen.AUTO
			if idv, ok := peekID(body); ok {
				id = idv
			}
			sub, err := b.Owner.AddSubObject(b.Field.Index, id)
			if err != nil {
				return errResult(Conflict, err.Error())
			}
			if len(body) > 0 {
				if err := jsoncodec.Decode(sub, body, level, unknown); err != nil {
					return errResult(BadRequest, err.Error())
				}
			}
			return Result{Code: Created, ID: sub.ID()}
		}
		v, err := jsoncodec.DecodeScalarValue(b.Field, body)
		if err != nil {
			return errResult(BadRequest, err.Error())
		}
		idx, err := b.Owner.ArrayAppend(b.Field.Index, v)
		if err != nil {
			return errResult(Conflict, err.Error())
		}
		return Result{Code: Created, ID: int64(idx)}
	case KindField:
		return errResult(MethodNotAllowed, "POST is not valid on a field")
	}
	return errResult(InternalError, "unreachable browse kind")
}

// handlePatch implements "PATCH any existing cell": against a whole
// object it's a full schema-driven delta decode; against a single field
// cell (scalar, or one element of an array) it's a direct set-or-clear of
// that one value -- spec.md §4.7's verb table makes no distinction between
// an object cell and a field cell for PATCH/PUT, so neither does this.
func handlePatch(b Browsed, body []byte, level schema.Level, unknown jsoncodec.UnknownFieldHandler) Result {
	switch b.Kind {
	case KindObject:
		if err := jsoncodec.Decode(b.Cell, body, level, unknown); err != nil {
			return errResult(BadRequest, err.Error())
		}
		return Result{Code: OK}
	case KindField:
		return patchField(b, body)
	case KindArray:
		return errResult(MethodNotAllowed, "PATCH on a whole array is not supported; navigate to an element")
	}
	return errResult(InternalError, "unreachable browse kind")
}

func handlePut(b Browsed, body []byte, level schema.Level, unknown jsoncodec.UnknownFieldHandler) Result {
	switch b.Kind {
	case KindObject:
		if err := jsoncodec.DecodePut(b.Cell, body, level, unknown); err != nil {
			return errResult(BadRequest, err.Error())
		}
		return Result{Code: OK}
	case KindField:
		// A single field cell has no substructure for PUT's "clear
		// everything touched first" step to act on beyond the field
		// itself, so PUT and PATCH coincide here.
		return patchField(b, body)
	case KindArray:
		return errResult(MethodNotAllowed, "PUT on a whole array is not supported; navigate to an element")
	}
	return errResult(InternalError, "unreachable browse kind")
}

func patchField(b Browsed, body []byte) Result {
	if jsoncodec.IsNull(body) {
		if b.Field.IsArray() {
			return errResult(BadRequest, "null is not valid for a single array element; DELETE it instead")
		}
		if err := b.Owner.Clear(b.Field.Index); err != nil {
			return errResult(NotFound, err.Error())
		}
		return Result{Code: OK}
	}
	v, err := jsoncodec.DecodeScalarValue(b.Field, body)
	if err != nil {
		return errResult(BadRequest, err.Error())
	}
	if b.Field.IsArray() {
		if err := b.Owner.ArraySet(b.Field.Index, b.Index, v); err != nil {
			return errResult(BadRequest, err.Error())
		}
		return Result{Code: OK}
	}
	if err := b.Owner.Set(b.Field.Index, v); err != nil {
		return errResult(BadRequest, err.Error())
	}
	return Result{Code: OK}
}

func handleDelete(b Browsed) Result {
	switch b.Kind {
	case KindObject:
		// A top-level resource/collection-entry object (Parent() == nil) has
		// no path-reachable "remove me" verb of its own -- that's
		// internal/database's collection-entry DELETE. A sub-object reached
		// inside a repeated field by id or by *key=value wildcard does have
		// one: remove it from its owning array by id.
		parent := b.Cell.Parent()
		if parent == nil {
			return errResult(MethodNotAllowed, "DELETE of a bare object is not supported here; delete its owning collection entry instead")
		}
		removed, err := parent.RemoveSubObjectByID(b.Cell.ChildSlot(), b.Cell.ID())
		if err != nil {
			return errResult(BadRequest, err.Error())
		}
		if !removed {
			return errResult(NotFound, "sub-object already removed")
		}
		return Result{Code: OK}
	case KindArray:
		return errResult(MethodNotAllowed, "DELETE of a whole array is not supported")
	case KindField:
		if b.Field.IsArray() {
			if err := b.Owner.ArrayRemoveAt(b.Field.Index, b.Index); err != nil {
				return errResult(NotFound, err.Error())
			}
			return Result{Code: NoContent}
		}
		if err := b.Owner.Clear(b.Field.Index); err != nil {
			return errResult(NotFound, err.Error())
		}
		return Result{Code: NoContent}
	}
	return errResult(InternalError, "unreachable browse kind")
}

func peekID(body []byte) (int64, bool) {
	if len(body) == 0 {
		return 0, false
	}
	return jsoncodec.PeekID(body)
}
