package restapi_test

import (
	"strings"
	"testing"

	"github.com/untoldecay/jude/internal/object"
	"github.com/untoldecay/jude/internal/restapi"
	"github.com/untoldecay/jude/internal/schema"
)

var subType = (&schema.TypeDescriptor{
	Name: "Sub",
	Fields: []*schema.FieldDescriptor{
		{Label: "id", Kind: schema.KindInt64},
		{Label: "substuff2", Kind: schema.KindInt32},
	},
}).Build()

var rootType = (&schema.TypeDescriptor{
	Name: "Root",
	Fields: []*schema.FieldDescriptor{
		{Label: "id", Kind: schema.KindInt64},
		{Label: "string_type", Kind: schema.KindString, MaxLen: 64},
		{Label: "submsg_type", Kind: schema.KindObject, ArrayCapacity: 8, SubType: subType},
		{Label: "tags", Kind: schema.KindString, ArrayCapacity: 8},
		{Label: "secret", Kind: schema.KindString, ReadLevel: schema.Admin, WriteLevel: schema.Admin},
	},
}).Build()

func TestBrowseEmptyPathIsRoot(t *testing.T) {
	c := object.New(rootType)
	b, code := restapi.Browse(c, "", restapi.PermRead, schema.Root)
	if code != 0 || b.Kind != restapi.KindObject || b.Cell != c {
		t.Fatalf("expected root object result, got kind=%v code=%v", b.Kind, code)
	}
}

func TestBrowseFieldLabel(t *testing.T) {
	c := object.New(rootType)
	_, _ = c.SetString(1, "hi")
	b, code := restapi.Browse(c, "/string_type", restapi.PermRead, schema.Root)
	if code != 0 || b.Kind != restapi.KindField || b.Field.Label != "string_type" {
		t.Fatalf("expected field result, got %v code=%v", b, code)
	}
}

func TestBrowseForbiddenField(t *testing.T) {
	c := object.New(rootType)
	_, code := restapi.Browse(c, "/secret", restapi.PermRead, schema.Public)
	if code != restapi.Forbidden {
		t.Fatalf("expected Forbidden, got %v", code)
	}
}

func TestBrowseUnknownLabelNotFound(t *testing.T) {
	c := object.New(rootType)
	_, code := restapi.Browse(c, "/nope", restapi.PermRead, schema.Root)
	if code != restapi.NotFound {
		t.Fatalf("expected NotFound, got %v", code)
	}
}

func TestBrowseArrayByIDAndWildcard(t *testing.T) {
	c := object.New(rootType)
	sub, _ := c.AddSubObject(2, 7)
	_ = sub.Set(1, int32(42))

	b, code := restapi.Browse(c, "/submsg_type/7", restapi.PermRead, schema.Root)
	if code != 0 || b.Kind != restapi.KindObject || b.Cell.ID() != 7 {
		t.Fatalf("expected object with id 7, got %v code=%v", b, code)
	}

	b2, code2 := restapi.Browse(c, "/submsg_type/*substuff2=42", restapi.PermRead, schema.Root)
	if code2 != 0 || b2.Cell.ID() != 7 {
		t.Fatalf("expected wildcard match on id 7, got %v code=%v", b2, code2)
	}
}

func TestGetObjectEncodesJSON(t *testing.T) {
	c := object.New(rootType)
	_, _ = c.SetString(1, "hi")
	b, _ := restapi.Browse(c, "", restapi.PermRead, schema.Root)
	res := restapi.Handle(restapi.GET, b, nil, schema.Root, nil)
	if res.Code != restapi.OK || !strings.Contains(res.Body, "hi") {
		t.Fatalf("expected OK with body containing value, got %+v", res)
	}
}

func TestPatchUpdatesField(t *testing.T) {
	c := object.New(rootType)
	b, _ := restapi.Browse(c, "", restapi.PermWrite, schema.Root)
	res := restapi.Handle(restapi.PATCH, b, []byte(`{"string_type":"patched"}`), schema.Root, nil)
	if res.Code != restapi.OK {
		t.Fatalf("expected OK, got %+v", res)
	}
	v, _ := c.Get(1)
	if v != "patched" {
		t.Fatalf("expected patched value, got %v", v)
	}
}

func TestPostAppendsArrayElement(t *testing.T) {
	c := object.New(rootType)
	b, code := restapi.Browse(c, "/tags", restapi.PermWrite, schema.Root)
	if code != 0 {
		t.Fatalf("browse: %v", code)
	}
	res := restapi.Handle(restapi.POST, b, []byte(`"red"`), schema.Root, nil)
	if res.Code != restapi.Created {
		t.Fatalf("expected Created, got %+v", res)
	}
	if n, _ := c.ArrayLen(3); n != 1 {
		t.Fatalf("expected 1 element, got %d", n)
	}
}

func TestPostSubObjectAssignsID(t *testing.T) {
	c := object.New(rootType)
	b, _ := restapi.Browse(c, "/submsg_type", restapi.PermWrite, schema.Root)
	res := restapi.Handle(restapi.POST, b, []byte(`{"id":5,"substuff2":9}`), schema.Root, nil)
	if res.Code != restapi.Created || res.ID != 5 {
		t.Fatalf("expected Created id=5, got %+v", res)
	}
}

func TestDeleteScalarFieldClears(t *testing.T) {
	c := object.New(rootType)
	_, _ = c.SetString(1, "present")
	b, _ := restapi.Browse(c, "/string_type", restapi.PermWrite, schema.Root)
	res := restapi.Handle(restapi.DELETE, b, nil, schema.Root, nil)
	if res.Code != restapi.NoContent {
		t.Fatalf("expected NoContent, got %+v", res)
	}
	if c.Touched(1) {
		t.Fatalf("expected field cleared")
	}
}

func TestDeleteArrayElementRemoves(t *testing.T) {
	c := object.New(rootType)
	_, _ = c.ArrayAppend(3, "a")
	_, _ = c.ArrayAppend(3, "b")
	b, _ := restapi.Browse(c, "/tags/0", restapi.PermWrite, schema.Root)
	res := restapi.Handle(restapi.DELETE, b, nil, schema.Root, nil)
	if res.Code != restapi.NoContent {
		t.Fatalf("expected NoContent, got %+v", res)
	}
	if n, _ := c.ArrayLen(3); n != 1 {
		t.Fatalf("expected 1 remaining, got %d", n)
	}
	v, _ := c.ArrayGet(3, 0)
	if v != "b" {
		t.Fatalf("expected 'b' to remain, got %v", v)
	}
}

func TestPatchBareScalarFieldSetsValue(t *testing.T) {
	c := object.New(rootType)
	b, code := restapi.Browse(c, "/string_type", restapi.PermWrite, schema.Root)
	if code != 0 {
		t.Fatalf("browse: %v", code)
	}
	res := restapi.Handle(restapi.PATCH, b, []byte(`"direct"`), schema.Root, nil)
	if res.Code != restapi.OK {
		t.Fatalf("expected OK, got %+v", res)
	}
	v, _ := c.Get(1)
	if v != "direct" {
		t.Fatalf("expected direct value, got %v", v)
	}
}

func TestPatchBareScalarFieldNullClears(t *testing.T) {
	c := object.New(rootType)
	_, _ = c.SetString(1, "present")
	b, _ := restapi.Browse(c, "/string_type", restapi.PermWrite, schema.Root)
	res := restapi.Handle(restapi.PATCH, b, []byte(`null`), schema.Root, nil)
	if res.Code != restapi.OK {
		t.Fatalf("expected OK, got %+v", res)
	}
	if c.Touched(1) {
		t.Fatalf("expected field cleared by null PATCH")
	}
}

func TestPutBareScalarFieldSetsValue(t *testing.T) {
	c := object.New(rootType)
	b, _ := restapi.Browse(c, "/string_type", restapi.PermWrite, schema.Root)
	res := restapi.Handle(restapi.PUT, b, []byte(`"direct"`), schema.Root, nil)
	if res.Code != restapi.OK {
		t.Fatalf("expected OK, got %+v", res)
	}
	v, _ := c.Get(1)
	if v != "direct" {
		t.Fatalf("expected direct value, got %v", v)
	}
}

func TestPatchArrayElementSetsValue(t *testing.T) {
	c := object.New(rootType)
	_, _ = c.ArrayAppend(3, "a")
	b, code := restapi.Browse(c, "/tags/0", restapi.PermWrite, schema.Root)
	if code != 0 {
		t.Fatalf("browse: %v", code)
	}
	res := restapi.Handle(restapi.PATCH, b, []byte(`"z"`), schema.Root, nil)
	if res.Code != restapi.OK {
		t.Fatalf("expected OK, got %+v", res)
	}
	v, _ := c.ArrayGet(3, 0)
	if v != "z" {
		t.Fatalf("expected 'z', got %v", v)
	}
}

func TestPatchArrayElementNullIsBadRequest(t *testing.T) {
	c := object.New(rootType)
	_, _ = c.ArrayAppend(3, "a")
	b, _ := restapi.Browse(c, "/tags/0", restapi.PermWrite, schema.Root)
	res := restapi.Handle(restapi.PATCH, b, []byte(`null`), schema.Root, nil)
	if res.Code != restapi.BadRequest {
		t.Fatalf("expected BadRequest, got %+v", res)
	}
}

func TestPatchWholeArrayIsMethodNotAllowed(t *testing.T) {
	c := object.New(rootType)
	b, _ := restapi.Browse(c, "/tags", restapi.PermWrite, schema.Root)
	res := restapi.Handle(restapi.PATCH, b, []byte(`["x"]`), schema.Root, nil)
	if res.Code != restapi.MethodNotAllowed {
		t.Fatalf("expected MethodNotAllowed, got %+v", res)
	}
}

func TestPostOnObjectIsMethodNotAllowed(t *testing.T) {
	c := object.New(rootType)
	b, _ := restapi.Browse(c, "", restapi.PermWrite, schema.Root)
	res := restapi.Handle(restapi.POST, b, nil, schema.Root, nil)
	if res.Code != restapi.MethodNotAllowed {
		t.Fatalf("expected MethodNotAllowed, got %+v", res)
	}
}
