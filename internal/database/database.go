// Package database implements the named tree of resources, collections,
// and sub-databases described in spec.md §4.11: one-shot Install, flat
// per-level namespace, first-path-token dispatch down to
// internal/restapi's path browser and verb handlers, an "allow global"
// gate on root-level mutation, and recursive subtree JSON export.
//
// Grounded on BeadsLog's internal/rpc dispatch-by-Operation switch
// (internal/rpc/server_routing_validation_diagnostics.go) generalized from
// "one flat operation name" to "a tree of named entries peeled one path
// token at a time", and on internal/daemon's top-level registry-of-things
// shape for the Install-once semantics.
package database

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/untoldecay/jude/internal/bitmask"
	"github.com/untoldecay/jude/internal/collection"
	"github.com/untoldecay/jude/internal/dblog"
	"github.com/untoldecay/jude/internal/idgen"
	"github.com/untoldecay/jude/internal/jsoncodec"
	"github.com/untoldecay/jude/internal/notify"
	"github.com/untoldecay/jude/internal/resource"
	"github.com/untoldecay/jude/internal/restapi"
	"github.com/untoldecay/jude/internal/schema"
)

// entry is the tagged union of what a name can be installed as. Exactly one
// field is non-nil.
type entry struct {
	resource   *resource.Resource
	collection *collection.Collection
	subDB      *Database
}

// Database owns a flat name -> entry map at one level of the tree.
type Database struct {
	mu          sync.Mutex
	entries     map[string]*entry
	order       []string
	allowGlobal bool
}

// New returns an empty database. allowGlobal gates root-level (empty-path)
// mutating calls; per spec.md it defaults to off in every caller that
// doesn't explicitly ask for it.
func New(allowGlobal bool) *Database {
	return &Database{entries: make(map[string]*entry), allowGlobal: allowGlobal}
}

// InstallResource installs r under name. One-shot: installing the same
// name twice is a programmer error and returns an error rather than
// overwriting.
func (d *Database) InstallResource(name string, r *resource.Resource) error {
	return d.install(name, &entry{resource: r})
}

// InstallCollection installs c under name.
func (d *Database) InstallCollection(name string, c *collection.Collection) error {
	return d.install(name, &entry{collection: c})
}

// InstallSubDatabase installs sub as a nested database under name, giving
// the tree arbitrary depth.
func (d *Database) InstallSubDatabase(name string, sub *Database) error {
	return d.install(name, &entry{subDB: sub})
}

func (d *Database) install(name string, e *entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.entries[name]; exists {
		return fmt.Errorf("database: name %q already installed", name)
	}
	d.entries[name] = e
	d.order = append(d.order, name)
	return nil
}

// Dispatch routes a REST call into the tree: the first path token selects
// an installed entry, and the remainder is handed to that entry's own
// navigation (a sub-database recurses; a resource/collection hands it to
// internal/restapi after taking out the appropriate lock/transaction).
func (d *Database) Dispatch(method restapi.Method, path string, body []byte, level schema.Level, unknown jsoncodec.UnknownFieldHandler) restapi.Result {
	head, rest := splitFirst(path)
	if head == "" {
		if method == restapi.GET {
			return d.exportRoot(level)
		}
		if !d.allowGlobal {
			return errResult(restapi.Forbidden, "root-level mutation is disabled (allow-global is off)")
		}
		return errResult(restapi.MethodNotAllowed, "no entry named in path")
	}

	d.mu.Lock()
	e, ok := d.entries[head]
	d.mu.Unlock()
	if !ok {
		return errResult(restapi.NotFound, fmt.Sprintf("no entry named %q", head))
	}

	switch {
	case e.subDB != nil:
		return e.subDB.Dispatch(method, rest, body, level, unknown)
	case e.resource != nil:
		return dispatchResource(e.resource, method, rest, body, level, unknown)
	case e.collection != nil:
		return dispatchCollection(e.collection, method, rest, body, level, unknown)
	}
	return errResult(restapi.InternalError, "entry with no payload")
}

func dispatchResource(r *resource.Resource, method restapi.Method, path string, body []byte, level schema.Level, unknown jsoncodec.UnknownFieldHandler) restapi.Result {
	if method == restapi.GET {
		cell := r.Read()
		b, code := restapi.Browse(cell, path, restapi.PermRead, level)
		if code != 0 {
			return errResult(code, "")
		}
		return restapi.Handle(restapi.GET, b, nil, level, unknown)
	}

	tx := r.TransactionLock()
	b, code := restapi.Browse(tx.Cell(), path, restapi.PermWrite, level)
	if code != 0 {
		tx.Abort()
		return errResult(code, "")
	}
	res := restapi.Handle(method, b, body, level, unknown)
	if res.Code >= 400 {
		tx.Abort()
		return res
	}
	if err := tx.Commit(); err != nil {
		dblog.ValidatorRejected("database", path, err)
		return errResult(restapi.BadRequest, err.Error())
	}
	return res
}

func dispatchCollection(c *collection.Collection, method restapi.Method, path string, body []byte, level schema.Level, unknown jsoncodec.UnknownFieldHandler) restapi.Result {
	head, rest := splitFirst(path)

	if head == "" {
		return dispatchCollectionRoot(c, method, body, level, unknown)
	}

	id, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return errResult(restapi.BadRequest, fmt.Sprintf("invalid id %q", head))
	}

	if rest == "" && method == restapi.DELETE {
		if err := c.Delete(id); err != nil {
			dblog.ValidatorRejected("database", path, err)
			return errResult(restapi.BadRequest, err.Error())
		}
		return restapi.Result{Code: restapi.NoContent}
	}

	if method == restapi.GET {
		cell, ok := c.Get(id)
		if !ok {
			return errResult(restapi.NotFound, fmt.Sprintf("no entry with id %d", id))
		}
		b, code := restapi.Browse(cell, rest, restapi.PermRead, level)
		if code != 0 {
			return errResult(code, "")
		}
		return restapi.Handle(restapi.GET, b, nil, level, unknown)
	}

	tx, err := c.TransactionLock(id)
	if err != nil {
		return errResult(restapi.NotFound, err.Error())
	}
	b, code := restapi.Browse(tx.Cell(), rest, restapi.PermWrite, level)
	if code != 0 {
		tx.Abort()
		return errResult(code, "")
	}
	res := restapi.Handle(method, b, body, level, unknown)
	if res.Code >= 400 {
		tx.Abort()
		return res
	}
	if err := tx.Commit(); err != nil {
		dblog.ValidatorRejected("database", path, err)
		return errResult(restapi.BadRequest, err.Error())
	}
	return res
}

func dispatchCollectionRoot(c *collection.Collection, method restapi.Method, body []byte, level schema.Level, unknown jsoncodec.UnknownFieldHandler) restapi.Result {
	switch method {
	case restapi.GET:
		cells := c.AsVector()
		parts := make([]string, 0, len(cells))
		for _, cell := range cells {
			frag, err := jsoncodec.Encode(cell, level, false, nil)
			if err != nil {
				return errResult(restapi.InternalError, err.Error())
			}
			parts = append(parts, frag)
		}
		return restapi.Result{Code: restapi.OK, Body: "[" + strings.Join(parts, ",") + "]"}
	case restapi.POST:
		id := idgen.AUTO
		if idv, ok := jsoncodec.PeekID(body); ok {
			id = idv
		}
		tx, err := c.Post(id)
		if err != nil {
			return errResult(restapi.Conflict, err.Error())
		}
		if len(body) > 0 {
			if err := jsoncodec.Decode(tx.Cell(), body, level, unknown); err != nil {
				tx.Abort()
				return errResult(restapi.BadRequest, err.Error())
			}
		}
		newID, err := tx.Commit()
		if err != nil {
			return errResult(restapi.BadRequest, err.Error())
		}
		return restapi.Result{Code: restapi.Created, ID: newID}
	case restapi.DELETE:
		return errResult(restapi.MethodNotAllowed, "DELETE of a collection root is not allowed")
	default:
		return errResult(restapi.MethodNotAllowed, fmt.Sprintf("%s not allowed on a collection root", method))
	}
}

// exportRoot renders every installed entry (subject to read permissions on
// their fields) as one JSON object keyed by entry name.
func (d *Database) exportRoot(level schema.Level) restapi.Result {
	d.mu.Lock()
	names := append([]string(nil), d.order...)
	d.mu.Unlock()

	parts := make([]string, 0, len(names))
	for _, name := range names {
		d.mu.Lock()
		e := d.entries[name]
		d.mu.Unlock()

		var frag string
		switch {
		case e.subDB != nil:
			sub := e.subDB.exportRoot(level)
			if sub.Code != restapi.OK {
				return sub
			}
			frag = sub.Body
		case e.resource != nil:
			f, err := jsoncodec.Encode(e.resource.Read(), level, false, nil)
			if err != nil {
				return errResult(restapi.InternalError, err.Error())
			}
			frag = f
		case e.collection != nil:
			res := dispatchCollectionRoot(e.collection, restapi.GET, nil, level, nil)
			frag = res.Body
		}
		quoted, err := jsonQuote(name)
		if err != nil {
			return errResult(restapi.InternalError, err.Error())
		}
		parts = append(parts, quoted+":"+frag)
	}
	return restapi.Result{Code: restapi.OK, Body: "{" + strings.Join(parts, ",") + "}"}
}

// PathNotification is what SubscribeToAllPaths delivers: Path is the REST
// path of the changed resource or collection entry (e.g. "/issues/42"),
// Body is its JSON state at the time of commit (encoded with nulls, so a
// cleared field round-trips as null rather than disappearing), and Deleted
// marks a removed collection entry (Body is empty in that case).
type PathNotification struct {
	Path    string
	Body    string
	Deleted bool
}

// SubscribeToAllPaths walks every entry installed anywhere in the tree
// (recursing into sub-databases) and subscribes cb to each one, reporting
// its full REST path. This is spec.md §6's "persistence subscriber" hook:
// not part of the core dispatch path, but a way for an external consumer
// (internal/persist is the one shipped here) to mirror every committed
// change without knowing the tree's shape in advance.
func (d *Database) SubscribeToAllPaths(prefix string, q *notify.Queue, level schema.Level, cb func(PathNotification)) {
	d.mu.Lock()
	names := append([]string(nil), d.order...)
	entries := make(map[string]*entry, len(names))
	for _, name := range names {
		entries[name] = d.entries[name]
	}
	d.mu.Unlock()

	for _, name := range names {
		e := entries[name]
		path := prefix + "/" + name
		switch {
		case e.subDB != nil:
			e.subDB.SubscribeToAllPaths(path, q, level, cb)
		case e.resource != nil:
			r := e.resource
			filter := bitmask.New(r.Type().FieldCount())
			filter.FillAll()
			r.Subscribe(filter, q, func(n resource.Notification) {
				body, err := jsoncodec.Encode(n.Cell, level, true, nil)
				if err != nil {
					return
				}
				cb(PathNotification{Path: path, Body: body})
			})
		case e.collection != nil:
			c := e.collection
			filter := bitmask.New(c.Type().FieldCount())
			filter.FillAll()
			c.Subscribe(idgen.AUTO, filter, q, func(n collection.Notification) {
				entryPath := path + "/" + strconv.FormatInt(n.ID, 10)
				if n.Deleted {
					cb(PathNotification{Path: entryPath, Deleted: true})
					return
				}
				body, err := jsoncodec.Encode(n.Cell, level, true, nil)
				if err != nil {
					return
				}
				cb(PathNotification{Path: entryPath, Body: body})
			})
		}
	}
}

// Restore replays a persisted (path, body) pair recorded from a
// PathNotification: PUT if the target already exists, falling back to a
// POST against its owning collection (reconstructing the entry at its
// original id) if it was deleted or never seen by this process. It is the
// inverse of SubscribeToAllPaths, for a persistence subscriber's startup
// replay -- like SubscribeToAllPaths, a worked example rather than a core
// primitive.
func (d *Database) Restore(path string, body []byte) error {
	trimmed := strings.Trim(path, "/")
	res := d.Dispatch(restapi.PUT, trimmed, body, schema.Root, nil)
	if res.Code == restapi.OK {
		return nil
	}
	if res.Code != restapi.NotFound {
		return fmt.Errorf("database: restore %q: %s", path, res.Detail)
	}
	parent, _ := splitLast(trimmed)
	res = d.Dispatch(restapi.POST, parent, body, schema.Root, nil)
	if res.Code >= 400 {
		return fmt.Errorf("database: restore %q: %s", path, res.Detail)
	}
	return nil
}

func splitLast(path string) (parent, leaf string) {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[:i], path[i+1:]
	}
	return "", path
}

func splitFirst(path string) (head, rest string) {
	path = strings.Trim(path, "/")
	if path == "" {
		return "", ""
	}
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i], path[i+1:]
	}
	return path, ""
}

func errResult(code restapi.Code, detail string) restapi.Result {
	return restapi.Result{Code: code, Detail: detail}
}

func jsonQuote(s string) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
