package database_test

import (
	"strconv"
	"strings"
	"testing"

	"github.com/untoldecay/jude/internal/collection"
	"github.com/untoldecay/jude/internal/database"
	"github.com/untoldecay/jude/internal/idgen"
	"github.com/untoldecay/jude/internal/resource"
	"github.com/untoldecay/jude/internal/restapi"
	"github.com/untoldecay/jude/internal/schema"
)

var widgetType = (&schema.TypeDescriptor{
	Name: "Widget",
	Fields: []*schema.FieldDescriptor{
		{Label: "id", Kind: schema.KindInt64},
		{Label: "name", Kind: schema.KindString, MaxLen: 32},
	},
}).Build()

var settingsType = (&schema.TypeDescriptor{
	Name: "Settings",
	Fields: []*schema.FieldDescriptor{
		{Label: "id", Kind: schema.KindInt64},
		{Label: "retries", Kind: schema.KindInt32},
	},
}).Build()

func newTestDB(allowGlobal bool) (*database.Database, *collection.Collection, *resource.Resource) {
	db := database.New(allowGlobal)
	widgets := collection.New(widgetType, nil)
	settings := resource.New(settingsType)
	_ = db.InstallCollection("widgets", widgets)
	_ = db.InstallResource("settings", settings)
	return db, widgets, settings
}

func TestInstallRejectsDuplicateName(t *testing.T) {
	db := database.New(false)
	_ = db.InstallCollection("widgets", collection.New(widgetType, nil))
	if err := db.InstallResource("widgets", resource.New(settingsType)); err == nil {
		t.Fatalf("expected duplicate install to fail")
	}
}

func TestDispatchPostToCollectionRoot(t *testing.T) {
	db, widgets, _ := newTestDB(false)
	res := db.Dispatch(restapi.POST, "/widgets", []byte(`{"name":"bolt"}`), schema.Root, nil)
	if res.Code != restapi.Created {
		t.Fatalf("expected Created, got %+v", res)
	}
	if widgets.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", widgets.Len())
	}
}

func TestDispatchGetCollectionEntry(t *testing.T) {
	db, widgets, _ := newTestDB(false)
	tx, _ := widgets.Post(idgen.AUTO)
	_, _ = tx.Cell().SetString(1, "bolt")
	id, _ := tx.Commit()

	res := db.Dispatch(restapi.GET, "/widgets/"+strconv.FormatInt(id, 10), nil, schema.Root, nil)
	if res.Code != restapi.OK || !strings.Contains(res.Body, "bolt") {
		t.Fatalf("expected OK containing bolt, got %+v", res)
	}
}

func TestDispatchPatchResource(t *testing.T) {
	db, _, settings := newTestDB(false)
	res := db.Dispatch(restapi.PATCH, "/settings", []byte(`{"retries":3}`), schema.Root, nil)
	if res.Code != restapi.OK {
		t.Fatalf("expected OK, got %+v", res)
	}
	v, _ := settings.Read().Get(1)
	if v != int32(3) {
		t.Fatalf("expected retries=3, got %v", v)
	}
}

func TestDispatchDeleteCollectionEntry(t *testing.T) {
	db, widgets, _ := newTestDB(false)
	tx, _ := widgets.Post(idgen.AUTO)
	id, _ := tx.Commit()

	res := db.Dispatch(restapi.DELETE, "/widgets/"+strconv.FormatInt(id, 10), nil, schema.Root, nil)
	if res.Code != restapi.NoContent {
		t.Fatalf("expected NoContent, got %+v", res)
	}
	if widgets.Len() != 0 {
		t.Fatalf("expected entry removed")
	}
}

func TestDispatchUnknownNameIsNotFound(t *testing.T) {
	db, _, _ := newTestDB(false)
	res := db.Dispatch(restapi.GET, "/nope", nil, schema.Root, nil)
	if res.Code != restapi.NotFound {
		t.Fatalf("expected NotFound, got %+v", res)
	}
}

func TestRootMutationDisabledByDefault(t *testing.T) {
	db, _, _ := newTestDB(false)
	res := db.Dispatch(restapi.POST, "", []byte(`{}`), schema.Root, nil)
	if res.Code != restapi.Forbidden {
		t.Fatalf("expected Forbidden, got %+v", res)
	}
}

func TestRootGetExportsEveryEntry(t *testing.T) {
	db, widgets, settings := newTestDB(false)
	tx, _ := widgets.Post(idgen.AUTO)
	_, _ = tx.Cell().SetString(1, "bolt")
	_, _ = tx.Commit()

	stx := settings.TransactionLock()
	_ = stx.Cell().Set(1, int32(5))
	_ = stx.Commit()

	res := db.Dispatch(restapi.GET, "", nil, schema.Root, nil)
	if res.Code != restapi.OK {
		t.Fatalf("expected OK, got %+v", res)
	}
	if !strings.Contains(res.Body, `"widgets"`) || !strings.Contains(res.Body, `"settings"`) {
		t.Fatalf("expected both entries in export, got %s", res.Body)
	}
	if !strings.Contains(res.Body, "bolt") || !strings.Contains(res.Body, "5") {
		t.Fatalf("expected entry contents in export, got %s", res.Body)
	}
}

func TestSubDatabaseDispatchRecurses(t *testing.T) {
	outer := database.New(false)
	inner := database.New(false)
	widgets := collection.New(widgetType, nil)
	_ = inner.InstallCollection("widgets", widgets)
	_ = outer.InstallSubDatabase("inner", inner)

	res := outer.Dispatch(restapi.POST, "/inner/widgets", []byte(`{"name":"nested"}`), schema.Root, nil)
	if res.Code != restapi.Created {
		t.Fatalf("expected Created, got %+v", res)
	}
	if widgets.Len() != 1 {
		t.Fatalf("expected entry in nested collection")
	}
}

func TestDispatchDeleteCollectionRootNotAllowed(t *testing.T) {
	db, _, _ := newTestDB(false)
	res := db.Dispatch(restapi.DELETE, "/widgets", nil, schema.Root, nil)
	if res.Code != restapi.MethodNotAllowed {
		t.Fatalf("expected MethodNotAllowed, got %+v", res)
	}
}

