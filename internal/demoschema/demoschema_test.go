package demoschema_test

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/untoldecay/jude/internal/bitmask"
	"github.com/untoldecay/jude/internal/collection"
	"github.com/untoldecay/jude/internal/database"
	"github.com/untoldecay/jude/internal/demoschema"
	"github.com/untoldecay/jude/internal/idgen"
	"github.com/untoldecay/jude/internal/jsoncodec"
	"github.com/untoldecay/jude/internal/notify"
	"github.com/untoldecay/jude/internal/object"
	"github.com/untoldecay/jude/internal/relationships"
	"github.com/untoldecay/jude/internal/resource"
	"github.com/untoldecay/jude/internal/restapi"
	"github.com/untoldecay/jude/internal/schema"
)

// S1 — Post, patch, subscribe.
func TestS1PostPatchSubscribe(t *testing.T) {
	subs := collection.New(demoschema.Sub, nil)
	q := notify.New(16)

	calls := 0
	filter := bitmask.New(len(demoschema.Sub.Fields))
	filter.SetChanged(2) // substuff2
	subs.Subscribe(idgen.AUTO, filter, q, func(collection.Notification) { calls++ })

	db := database.New(false)
	if err := db.InstallCollection("subs", subs); err != nil {
		t.Fatalf("install: %v", err)
	}

	res := db.Dispatch(restapi.POST, "/subs", []byte(`{}`), schema.Root, nil)
	if res.Code != restapi.Created || res.ID != 1 {
		t.Fatalf("expected Created id=1, got %+v", res)
	}
	q.Process(50 * time.Millisecond)
	if calls != 0 {
		t.Fatalf("expected 0 callbacks on bare post, got %d", calls)
	}

	res = db.Dispatch(restapi.PATCH, "/subs/1", []byte(`{"substuff2":42}`), schema.Root, nil)
	if res.Code != restapi.OK {
		t.Fatalf("expected OK, got %+v", res)
	}
	q.Process(50 * time.Millisecond)
	if calls != 1 {
		t.Fatalf("expected 1 callback after first patch, got %d", calls)
	}

	res = db.Dispatch(restapi.PATCH, "/subs/1", []byte(`{"substuff2":42}`), schema.Root, nil)
	if res.Code != restapi.OK {
		t.Fatalf("expected OK, got %+v", res)
	}
	q.Process(50 * time.Millisecond)
	if calls != 1 {
		t.Fatalf("expected still 1 callback after repeat patch of same value, got %d", calls)
	}

	res = db.Dispatch(restapi.DELETE, "/subs/1", nil, schema.Root, nil)
	if res.Code != restapi.NoContent {
		t.Fatalf("expected NoContent, got %+v", res)
	}
	q.Process(50 * time.Millisecond)
	if calls != 1 {
		t.Fatalf("expected still 1 callback after delete (sub only watches substuff2), got %d", calls)
	}
}

// S2 — Null clears.
func TestS2NullClears(t *testing.T) {
	root := resource.New(demoschema.Root)
	tx := root.TransactionLock()
	_, _ = tx.Cell().SetString(1, "Hello")
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var patched *object.Cell
	all := bitmask.New(len(demoschema.Root.Fields))
	all.FillAll()
	root.Subscribe(all, notify.Immediate(), func(n resource.Notification) { patched = n.Cell })

	db := database.New(false)
	if err := db.InstallResource("root", root); err != nil {
		t.Fatalf("install: %v", err)
	}

	res := db.Dispatch(restapi.PATCH, "/root", []byte(`{"string_type":null}`), schema.Root, nil)
	if res.Code != restapi.OK {
		t.Fatalf("expected OK, got %+v", res)
	}

	res = db.Dispatch(restapi.GET, "/root/string_type", nil, schema.Root, nil)
	if res.Code != restapi.NotFound {
		t.Fatalf("expected NotFound for cleared field, got %+v", res)
	}

	// A commit clears the live cell's changed bits once it has published, so
	// the cleared-field marker is read from the PATCH commit's snapshot.
	if patched == nil {
		t.Fatalf("expected a notification for the PATCH commit")
	}
	cell := patched
	withNulls, err := jsoncodec.Encode(cell, schema.Root, true, nil)
	if err != nil {
		t.Fatalf("encode with nulls: %v", err)
	}
	if !strings.Contains(withNulls, `"string_type":null`) {
		t.Fatalf("expected null string_type in with-nulls encode, got %s", withNulls)
	}

	object.ClearChanges(cell)
	plain, err := jsoncodec.Encode(cell, schema.Root, false, nil)
	if err != nil {
		t.Fatalf("encode plain: %v", err)
	}
	if strings.Contains(plain, "string_type") {
		t.Fatalf("expected string_type omitted once changed markers are gone, got %s", plain)
	}
}

// S3 — Enum.
func TestS3Enum(t *testing.T) {
	root := resource.New(demoschema.Root)
	db := database.New(false)
	if err := db.InstallResource("root", root); err != nil {
		t.Fatalf("install: %v", err)
	}

	res := db.Dispatch(restapi.PATCH, "/root/enum_type", []byte(`"Truth"`), schema.Root, nil)
	if res.Code != restapi.OK {
		t.Fatalf("expected OK, got %+v", res)
	}
	v, _ := root.Read().Get(2)
	if v != int64(42) {
		t.Fatalf("expected 42, got %v", v)
	}

	res = db.Dispatch(restapi.PATCH, "/root/enum_type", []byte(`42`), schema.Root, nil)
	if res.Code != restapi.OK {
		t.Fatalf("expected OK, got %+v", res)
	}
	v, _ = root.Read().Get(2)
	if v != int64(42) {
		t.Fatalf("expected 42, got %v", v)
	}

	res = db.Dispatch(restapi.PATCH, "/root/enum_type", []byte(`"Invalid"`), schema.Root, nil)
	if res.Code != restapi.BadRequest {
		t.Fatalf("expected BadRequest, got %+v", res)
	}

	res = db.Dispatch(restapi.PATCH, "/root/enum_type", []byte(`-45`), schema.Root, nil)
	if res.Code != restapi.BadRequest {
		t.Fatalf("expected BadRequest for out-of-range int, got %+v", res)
	}
}

// S4 — Array insert/remove.
func TestS4ArrayInsertRemove(t *testing.T) {
	root := resource.New(demoschema.Root)
	db := database.New(false)
	if err := db.InstallResource("root", root); err != nil {
		t.Fatalf("install: %v", err)
	}

	res := db.Dispatch(restapi.POST, "/root/submsg_type", []byte(`{}`), schema.Root, nil)
	if res.Code != restapi.Created || res.ID != 1 {
		t.Fatalf("expected Created id=1, got %+v", res)
	}
	res = db.Dispatch(restapi.POST, "/root/submsg_type", []byte(`{}`), schema.Root, nil)
	if res.Code != restapi.Created || res.ID != 2 {
		t.Fatalf("expected Created id=2, got %+v", res)
	}
	res = db.Dispatch(restapi.POST, "/root/submsg_type", []byte(`{"id":25}`), schema.Root, nil)
	if res.Code != restapi.Created || res.ID != 25 {
		t.Fatalf("expected Created id=25, got %+v", res)
	}

	res = db.Dispatch(restapi.PATCH, "/root/submsg_type/25/substuff1", []byte(`"X"`), schema.Root, nil)
	if res.Code != restapi.OK {
		t.Fatalf("expected OK, got %+v", res)
	}

	// DELETE on a sub-object reached by id resolves to a bare object target
	// (not a field), so per spec.md §4.7's "any existing cell" table this
	// returns 200, not 204 like a field-level delete does.
	res = db.Dispatch(restapi.DELETE, "/root/submsg_type/1", nil, schema.Root, nil)
	if res.Code != restapi.OK {
		t.Fatalf("expected OK, got %+v", res)
	}

	subs, err := root.Read().SubObjects(4)
	if err != nil {
		t.Fatalf("sub objects: %v", err)
	}
	ids := map[int64]bool{}
	for _, s := range subs {
		ids[s.ID()] = true
	}
	if len(ids) != 2 || !ids[2] || !ids[25] {
		t.Fatalf("expected remaining ids {2,25}, got %v", ids)
	}
}

// S5 — Foreign key.
func TestS5ForeignKey(t *testing.T) {
	targets := collection.New(demoschema.Target, nil)
	referrers := collection.New(demoschema.Referrer, nil)
	q := notify.New(16)
	reg := relationships.NewRegistry(q)
	reg.EnforceReference(referrers, 1, targets, "T")
	reg.CascadeDelete(targets, referrers, 1, false)

	db := database.New(false)
	if err := db.InstallCollection("T", targets); err != nil {
		t.Fatalf("install T: %v", err)
	}
	if err := db.InstallCollection("R", referrers); err != nil {
		t.Fatalf("install R: %v", err)
	}

	res := db.Dispatch(restapi.POST, "/T", []byte(`{"id":100}`), schema.Root, nil)
	if res.Code != restapi.Created || res.ID != 100 {
		t.Fatalf("expected Created id=100, got %+v", res)
	}

	res = db.Dispatch(restapi.POST, "/R", []byte(`{"u64":100}`), schema.Root, nil)
	if res.Code != restapi.Created {
		t.Fatalf("expected Created, got %+v", res)
	}
	rid := res.ID

	res = db.Dispatch(restapi.PATCH, "/R/"+strconv.FormatInt(rid, 10), []byte(`{"u64":101}`), schema.Root, nil)
	if res.Code != restapi.BadRequest {
		t.Fatalf("expected BadRequest referring to missing id, got %+v", res)
	}
	if !strings.Contains(res.Detail, "refers to id 101") || !strings.Contains(res.Detail, `collection "T"`) {
		t.Fatalf("expected a precise dangling-reference detail, got %q", res.Detail)
	}

	res = db.Dispatch(restapi.POST, "/T", []byte(`{"id":101}`), schema.Root, nil)
	if res.Code != restapi.Created {
		t.Fatalf("expected Created, got %+v", res)
	}
	res = db.Dispatch(restapi.PATCH, "/R/"+strconv.FormatInt(rid, 10), []byte(`{"u64":101}`), schema.Root, nil)
	if res.Code != restapi.OK {
		t.Fatalf("expected OK once target 101 exists, got %+v", res)
	}

	res = db.Dispatch(restapi.DELETE, "/T/100", nil, schema.Root, nil)
	if res.Code != restapi.NoContent {
		t.Fatalf("expected NoContent, got %+v", res)
	}
	q.Process(50 * time.Millisecond)

	cell, ok := referrers.Get(rid)
	if !ok {
		t.Fatalf("expected referrer to still exist")
	}
	v, _ := cell.Get(1)
	if v != int64(101) {
		t.Fatalf("expected u64 unchanged at 101 (only target 100 was deleted), got %v", v)
	}
}

// S6 — Path search. Wildcard tokens are only legal inside a sub-object
// array (spec.md's REST path grammar), so this exercises Root.submsg_type
// rather than a bare collection root.
func TestS6PathSearch(t *testing.T) {
	root := resource.New(demoschema.Root)
	db := database.New(false)
	if err := db.InstallResource("root", root); err != nil {
		t.Fatalf("install: %v", err)
	}

	res := db.Dispatch(restapi.POST, "/root/submsg_type", []byte(`{"id":1,"substuff1":"Hello"}`), schema.Root, nil)
	if res.Code != restapi.Created {
		t.Fatalf("expected Created, got %+v", res)
	}
	res = db.Dispatch(restapi.POST, "/root/submsg_type", []byte(`{"id":2,"substuff1":"World"}`), schema.Root, nil)
	if res.Code != restapi.Created {
		t.Fatalf("expected Created, got %+v", res)
	}

	res = db.Dispatch(restapi.GET, "/root/submsg_type/*substuff1=Hello", nil, schema.Root, nil)
	if res.Code != restapi.OK || !strings.Contains(res.Body, `"id":1`) {
		t.Fatalf("expected body for id 1, got %+v", res)
	}

	res = db.Dispatch(restapi.DELETE, "/root/submsg_type/*substuff1=World", nil, schema.Root, nil)
	if res.Code != restapi.OK {
		t.Fatalf("expected OK, got %+v", res)
	}

	subs, err := root.Read().SubObjects(4)
	if err != nil {
		t.Fatalf("sub objects: %v", err)
	}
	if len(subs) != 1 || subs[0].ID() != 1 {
		t.Fatalf("expected only id 1 to remain, got %v", subs)
	}
}
