// Package resource implements the singleton container: one object cell,
// an ordered validator chain, and a subscriber list delivered through
// internal/notify queues.
//
// The validator-chain shape (Validator func, Chain combinator) is carried
// over from BeadsLog's internal/validation/issue.go (IssueValidator,
// Chain, Exists, ...), regrounded on object.Cell instead of types.Issue.
package resource

import (
	"fmt"
	"sync"

	"github.com/untoldecay/jude/internal/bitmask"
	"github.com/untoldecay/jude/internal/handle"
	"github.com/untoldecay/jude/internal/notify"
	"github.com/untoldecay/jude/internal/object"
	"github.com/untoldecay/jude/internal/schema"
)

// Validator inspects a candidate cell before it becomes visible. isDeleted
// is true only when the validation is running as part of a delete (a
// Resource itself is never "deleted", but Collection reuses this same
// signature for its entries).
type Validator func(cell *object.Cell, isDeleted bool) error

// Chain composes validators in order; the first error stops the chain,
// matching BeadsLog's validation.Chain.
func Chain(vs ...Validator) Validator {
	return func(cell *object.Cell, isDeleted bool) error {
		for _, v := range vs {
			if err := v(cell, isDeleted); err != nil {
				return err
			}
		}
		return nil
	}
}

// Notification is delivered to a subscriber callback after a successful
// commit. Cell is an immutable snapshot taken at commit time (safe to read
// without holding any lock); ChangeMask records exactly which fields
// changed in this commit, which is also what subscriber filters are
// matched against.
type Notification struct {
	Cell       *object.Cell
	Deleted    bool
	ChangeMask bitmask.FieldMask
}

type subscription struct {
	id       int64
	mask     bitmask.FieldMask
	queue    *notify.Queue
	callback func(Notification)
}

// Resource holds one object cell plus its validators and subscribers.
type Resource struct {
	mu         sync.Mutex
	cell       *object.Cell
	validators []Validator
	subs       []*subscription
	nextSub    int64
}

// New allocates an empty resource of the given type.
func New(typ *schema.TypeDescriptor) *Resource {
	return &Resource{cell: object.New(typ)}
}

// AddValidator appends a validator to the resource's chain.
func (r *Resource) AddValidator(v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators = append(r.validators, v)
}

// Subscribe registers cb to be invoked (via q) whenever a commit's change
// mask overlaps filter. Pass a filter with FillAll()'d bits to receive
// every change. Returns a subscription id for Unsubscribe.
func (r *Resource) Subscribe(filter bitmask.FieldMask, q *notify.Queue, cb func(Notification)) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSub++
	r.subs = append(r.subs, &subscription{id: r.nextSub, mask: filter, queue: q, callback: cb})
	return r.nextSub
}

// Unsubscribe removes a previously registered subscription.
func (r *Resource) Unsubscribe(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s.id == id {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return
		}
	}
}

// WriteLock acquires the resource's mutex and returns a handle directly
// onto the live cell. This is the raw/trusted-caller path: validators are
// not run (see DESIGN.md -- resolves the "WriteLock vs validation" open
// question the same way Collection's documented WriteLock bypass does).
// Subscribers still fire, since the data genuinely changed.
func (r *Resource) WriteLock() *handle.Handle {
	r.mu.Lock()
	return handle.New(r.cell, func(*object.Cell) {
		r.publishLocked()
		r.mu.Unlock()
	})
}

// Transaction is a scoped edit on a cloned cell; it becomes visible only
// on Commit, and never partially. Go has no destructors, so -- unlike the
// source's "commits by default unless Abort() was called" -- callers here
// must call Commit or Abort explicitly; an unreferenced Transaction never
// changes the live cell, but it keeps the resource's mutex held, so every
// later lock or Read blocks (see DESIGN.md).
type Transaction struct {
	res   *Resource
	clone *object.Cell
	done  bool
}

// TransactionLock clones the live cell under the resource's mutex and
// returns a Transaction for editing it.
func (r *Resource) TransactionLock() *Transaction {
	r.mu.Lock()
	return &Transaction{res: r, clone: object.Clone(r.cell)}
}

// Cell exposes the transaction's working clone for direct editing, or for
// wrapping in a handle.Handle (with a no-op onComplete, since commit here
// is explicit).
func (t *Transaction) Cell() *object.Cell { return t.clone }

// Commit validates the working clone, and if it passes, atomically
// overwrites the live cell and publishes to subscribers. The resource's
// mutex is released in all cases.
func (t *Transaction) Commit() error {
	if t.done {
		return fmt.Errorf("resource: transaction already closed")
	}
	t.done = true
	defer t.res.mu.Unlock()

	for _, v := range t.res.validators {
		if err := v(t.clone, false); err != nil {
			return err
		}
	}
	if err := object.Overwrite(t.res.cell, t.clone); err != nil {
		return err
	}
	t.res.publishLocked()
	return nil
}

// Abort discards the working clone without touching the live cell.
func (t *Transaction) Abort() {
	if t.done {
		return
	}
	t.done = true
	t.res.mu.Unlock()
}

// publishLocked must be called with r.mu held. It snapshots the change
// mask, clears it on the live cell, and fans out to every subscriber whose
// filter overlaps it.
func (r *Resource) publishLocked() {
	if !r.cell.Mask().IsAnyChanged() {
		return
	}
	changeMask := r.cell.Mask().Clone()
	snapshot := object.Clone(r.cell)
	object.ClearChanges(r.cell)

	for _, s := range r.subs {
		if changeMask.OverlapsChanged(s.mask) {
			s := s
			n := Notification{Cell: snapshot, ChangeMask: changeMask}
			s.queue.Send(func() { s.callback(n) })
		}
	}
}

// Read returns a read-only clone of the current cell, for callers that
// just want a consistent snapshot without taking out a write lock.
func (r *Resource) Read() *object.Cell {
	r.mu.Lock()
	defer r.mu.Unlock()
	return object.Clone(r.cell)
}

// Type returns the schema type this resource's cell was built from.
func (r *Resource) Type() *schema.TypeDescriptor { return r.cell.Type() }
