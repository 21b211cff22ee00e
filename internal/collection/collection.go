// Package collection implements the id-keyed container: a map of object
// cells, ordered validators, id-scoped subscriptions, and the Post /
// TransactionLock / WriteLock / Delete verbs described in SPEC_FULL.md §5.
//
// Structurally this mirrors internal/resource (same validator-chain and
// notify.Queue wiring, regrounded again on object.Cell), generalized from
// "one cell" to "a map of cells keyed by id", the way BeadsLog's
// internal/storage layers a map-of-issues on top of a single-record store.
package collection

import (
	"fmt"
	"sort"
	"sync"

	"github.com/untoldecay/jude/internal/bitmask"
	"github.com/untoldecay/jude/internal/handle"
	"github.com/untoldecay/jude/internal/idgen"
	"github.com/untoldecay/jude/internal/notify"
	"github.com/untoldecay/jude/internal/object"
	"github.com/untoldecay/jude/internal/resource"
	"github.com/untoldecay/jude/internal/schema"
)

// Validator is the collection's per-entry validator signature, identical in
// shape to resource.Validator so the same chain combinator applies.
type Validator = resource.Validator

// Chain composes validators in order, stopping at the first error.
var Chain = resource.Chain

// Notification is delivered to matching subscribers after a commit (create
// or update) that changed at least one field of an entry, and after an
// entry's delete.
type Notification struct {
	ID         int64
	Cell       *object.Cell
	Deleted    bool
	ChangeMask bitmask.FieldMask
}

type subscription struct {
	id       int64
	idFilter int64 // idgen.AUTO (0) means "every id"
	mask     bitmask.FieldMask
	queue    *notify.Queue
	callback func(Notification)
}

// Collection holds every live entry of one type, keyed by id.
type Collection struct {
	mu         sync.Mutex
	typ        *schema.TypeDescriptor
	gen        idgen.Generator
	items      map[int64]*object.Cell
	validators []Validator
	subs       []*subscription
	nextSub    int64
}

// New allocates an empty collection of typ, drawing auto ids from gen. A nil
// gen defaults to a fresh Sequential generator.
func New(typ *schema.TypeDescriptor, gen idgen.Generator) *Collection {
	if gen == nil {
		gen = idgen.NewSequential(0)
	}
	return &Collection{typ: typ, gen: gen, items: make(map[int64]*object.Cell)}
}

// AddValidator appends a validator to the collection's chain, applied to
// every Post and TransactionLock commit and every Delete.
func (c *Collection) AddValidator(v Validator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validators = append(c.validators, v)
}

// Subscribe registers cb for entries matching idFilter (idgen.AUTO for
// every id) whose commit's change mask overlaps filter.
func (c *Collection) Subscribe(idFilter int64, filter bitmask.FieldMask, q *notify.Queue, cb func(Notification)) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	c.subs = append(c.subs, &subscription{id: c.nextSub, idFilter: idFilter, mask: filter, queue: q, callback: cb})
	return c.nextSub
}

// Unsubscribe removes a previously registered subscription.
func (c *Collection) Unsubscribe(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s.id == id {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

// PostTransaction is a scoped create: a fresh cell that only becomes a
// member of the collection on Commit.
type PostTransaction struct {
	col  *Collection
	id   int64
	cell *object.Cell
	done bool
}

// Post reserves an id (drawing from the collection's generator if id is
// idgen.AUTO) and returns a transaction for populating the new entry.
// Commit inserts it; Abort leaves the collection untouched. The
// collection's mutex stays held until one of the two is called.
func (c *Collection) Post(id int64) (*PostTransaction, error) {
	c.mu.Lock()
	actual := id
	if actual == idgen.AUTO {
		for {
			actual = c.gen.Next()
			if _, exists := c.items[actual]; !exists {
				break
			}
		}
	} else if _, exists := c.items[actual]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("collection: id %d already exists", actual)
	}
	cell := object.New(c.typ)
	cell.SetID(actual)
	return &PostTransaction{col: c, id: actual, cell: cell}, nil
}

// Cell exposes the new entry's working cell for editing.
func (t *PostTransaction) Cell() *object.Cell { return t.cell }

// ID returns the id this entry will be inserted under on Commit.
func (t *PostTransaction) ID() int64 { return t.id }

// Commit validates the new entry and, if it passes, inserts it into the
// collection and publishes a creation notification.
func (t *PostTransaction) Commit() (int64, error) {
	if t.done {
		return 0, fmt.Errorf("collection: post transaction already closed")
	}
	t.done = true
	defer t.col.mu.Unlock()

	for _, v := range t.col.validators {
		if err := v(t.cell, false); err != nil {
			return 0, err
		}
	}
	t.col.items[t.id] = t.cell
	t.col.publishLocked(t.id, false, t.cell)
	return t.id, nil
}

// Abort discards the new entry without inserting it.
func (t *PostTransaction) Abort() {
	if t.done {
		return
	}
	t.done = true
	t.col.mu.Unlock()
}

// Transaction is a scoped edit on a clone of an existing entry.
type Transaction struct {
	col   *Collection
	id    int64
	clone *object.Cell
	done  bool
}

// TransactionLock clones the entry at id under the collection's mutex.
func (c *Collection) TransactionLock(id int64) (*Transaction, error) {
	c.mu.Lock()
	live, ok := c.items[id]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("collection: no entry with id %d", id)
	}
	return &Transaction{col: c, id: id, clone: object.Clone(live)}, nil
}

// Cell exposes the transaction's working clone for editing.
func (t *Transaction) Cell() *object.Cell { return t.clone }

// Commit validates the working clone and, if it passes, overwrites the live
// entry and publishes an update notification.
func (t *Transaction) Commit() error {
	if t.done {
		return fmt.Errorf("collection: transaction already closed")
	}
	t.done = true
	defer t.col.mu.Unlock()

	for _, v := range t.col.validators {
		if err := v(t.clone, false); err != nil {
			return err
		}
	}
	live := t.col.items[t.id]
	if err := object.Overwrite(live, t.clone); err != nil {
		return err
	}
	t.col.publishLocked(t.id, false, live)
	return nil
}

// Abort discards the working clone without touching the live entry.
func (t *Transaction) Abort() {
	if t.done {
		return
	}
	t.done = true
	t.col.mu.Unlock()
}

// WriteLock acquires the collection's mutex and returns a handle directly
// onto the live entry at id, bypassing validation (the documented escape
// hatch -- see DESIGN.md for why Resource.WriteLock mirrors this instead of
// validating).
func (c *Collection) WriteLock(id int64) (*handle.Handle, error) {
	c.mu.Lock()
	live, ok := c.items[id]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("collection: no entry with id %d", id)
	}
	return handle.New(live, func(*object.Cell) {
		c.publishLocked(id, false, live)
		c.mu.Unlock()
	}), nil
}

// Delete runs the validator chain with isDeleted=true, and on success
// removes the entry and publishes a deletion notification.
func (c *Collection) Delete(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	live, ok := c.items[id]
	if !ok {
		return fmt.Errorf("collection: no entry with id %d", id)
	}
	for _, v := range c.validators {
		if err := v(live, true); err != nil {
			return err
		}
	}
	delete(c.items, id)
	_ = live.Clear(schema.IdField)
	c.publishLocked(id, true, live)
	return nil
}

// Get returns a read-only clone of the entry at id, or false if absent.
func (c *Collection) Get(id int64) (*object.Cell, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	live, ok := c.items[id]
	if !ok {
		return nil, false
	}
	return object.Clone(live), true
}

// Len reports the number of entries currently in the collection.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Type returns the schema type every entry in this collection is built from.
func (c *Collection) Type() *schema.TypeDescriptor { return c.typ }

// AsVector returns every entry as read-only clones in ascending id order.
func (c *Collection) AsVector() []*object.Cell {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.sortedIDsLocked()
	out := make([]*object.Cell, 0, len(ids))
	for _, id := range ids {
		out = append(out, object.Clone(c.items[id]))
	}
	return out
}

// FindIf returns the first entry (in ascending id order) for which pred
// returns true, or false if none match.
func (c *Collection) FindIf(pred func(id int64, cell *object.Cell) bool) (int64, *object.Cell, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.sortedIDsLocked() {
		clone := object.Clone(c.items[id])
		if pred(id, clone) {
			return id, clone, true
		}
	}
	return 0, nil, false
}

// RemoveIf deletes every entry for which pred returns true, running the
// delete validator chain for each and skipping (without error) any that
// fail validation. It returns the ids actually removed, in ascending order.
func (c *Collection) RemoveIf(pred func(id int64, cell *object.Cell) bool) []int64 {
	c.mu.Lock()
	var removed []int64
	for _, id := range c.sortedIDsLocked() {
		live := c.items[id]
		if !pred(id, object.Clone(live)) {
			continue
		}
		ok := true
		for _, v := range c.validators {
			if err := v(live, true); err != nil {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		delete(c.items, id)
		_ = live.Clear(schema.IdField)
		c.publishLocked(id, true, live)
		removed = append(removed, id)
	}
	c.mu.Unlock()
	return removed
}

func (c *Collection) sortedIDsLocked() []int64 {
	ids := make([]int64, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// publishLocked must be called with c.mu held.
func (c *Collection) publishLocked(id int64, deleted bool, cell *object.Cell) {
	changeMask := cell.Mask().Clone()
	if !deleted && !changeMask.IsAnyChanged() {
		return
	}
	snapshot := object.Clone(cell)
	if !deleted {
		object.ClearChanges(cell)
	}

	for _, s := range c.subs {
		if s.idFilter != idgen.AUTO && s.idFilter != id {
			continue
		}
		if !changeMask.OverlapsChanged(s.mask) {
			continue
		}
		s := s
		n := Notification{ID: id, Cell: snapshot, Deleted: deleted, ChangeMask: changeMask}
		s.queue.Send(func() { s.callback(n) })
	}
}
