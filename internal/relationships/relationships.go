// Package relationships implements the three post-commit rule kinds from
// SPEC_FULL.md §8: DeleteTogether, CascadeDelete, and EnforceReference,
// installed as subscriptions (or, for EnforceReference, a validator) on a
// shared Registry and torn down together when the registry is closed.
//
// Grounded on internal/resource and internal/collection's own
// validator-chain and subscription shape: a Registry doesn't reimplement
// either, it just wires rules onto the collections it's given using their
// existing AddValidator/Subscribe entry points, the same way BeadsLog's
// internal/validation composes independent checks into one chain rather
// than each caller hand-rolling its own.
package relationships

import (
	"fmt"
	"time"

	"github.com/untoldecay/jude/internal/bitmask"
	"github.com/untoldecay/jude/internal/collection"
	"github.com/untoldecay/jude/internal/idgen"
	"github.com/untoldecay/jude/internal/notify"
	"github.com/untoldecay/jude/internal/object"
)

// regSub remembers one installed subscription so Close can tear it down.
type regSub struct {
	col *collection.Collection
	id  int64
}

// Registry owns every rule's subscriptions and the queue they're
// delivered through. Rules always react via the queue, never inline: a
// delete notification fires while the deleting collection's mutex is still
// held by the caller that's about to release it (see
// internal/collection.publishLocked), and a rule that touched a different
// collection synchronously from there risks exactly the kind of re-entrant
// cross-collection locking spec.md §4.13 warns against ("subscribers must
// not synchronously acquire the same mutex that invoked them").
type Registry struct {
	queue *notify.Queue
	subs  []regSub
}

// NewRegistry returns a Registry delivering through queue. A nil queue
// allocates a fresh bounded notify.Queue; the caller is responsible for
// draining it (via Process) the same way any other subscriber queue is
// drained.
func NewRegistry(queue *notify.Queue) *Registry {
	if queue == nil {
		queue = notify.New(notify.DefaultCapacity)
	}
	return &Registry{queue: queue}
}

// Process drains up to maxWait worth of queued rule deliveries, returning
// the number invoked.
func (r *Registry) Process(maxWait time.Duration) int {
	return r.queue.Process(maxWait)
}

// Close unsubscribes every rule this registry installed. Rules installed
// via EnforceReference (a validator, not a subscription) are not affected
// -- a collection has no RemoveValidator, matching resource/collection's
// validator chain being permanent for the collection's lifetime.
func (r *Registry) Close() {
	subs := r.subs
	r.subs = nil
	for _, s := range subs {
		s.col.Unsubscribe(s.id)
	}
}

func (r *Registry) track(col *collection.Collection, id int64) {
	r.subs = append(r.subs, regSub{col: col, id: id})
}

func fullMask(col *collection.Collection) bitmask.FieldMask {
	m := bitmask.New(len(col.Type().Fields))
	m.FillAll()
	return m
}

// DeleteTogether ties a and b symmetrically: deleting an id from either
// deletes the same id from the other. Idempotent -- deleting an id already
// absent from the other side is a no-op, not an error.
func (r *Registry) DeleteTogether(a, b *collection.Collection) {
	idA := a.Subscribe(idgen.AUTO, fullMask(a), r.queue, func(n collection.Notification) {
		if n.Deleted {
			_ = b.Delete(n.ID)
		}
	})
	r.track(a, idA)

	idB := b.Subscribe(idgen.AUTO, fullMask(b), r.queue, func(n collection.Notification) {
		if n.Deleted {
			_ = a.Delete(n.ID)
		}
	})
	r.track(b, idB)
}

// CascadeDelete reacts to a deletion in target by finding every entry in
// referrer whose field at index field contains the deleted id. For a
// repeated field the matching element is removed; for a scalar field it's
// cleared. If required is true, the referring entry is deleted outright
// instead (matching spec.md §4.13's "if the field is declared required,
// delete the referring object instead").
func (r *Registry) CascadeDelete(target, referrer *collection.Collection, field int, required bool) {
	id := target.Subscribe(idgen.AUTO, fullMask(target), r.queue, func(n collection.Notification) {
		if !n.Deleted {
			return
		}
		if required {
			referrer.RemoveIf(func(_ int64, cell *object.Cell) bool {
				return fieldReferences(cell, field, n.ID)
			})
			return
		}
		for _, cell := range referrer.AsVector() {
			if !fieldReferences(cell, field, n.ID) {
				continue
			}
			tx, err := referrer.TransactionLock(cell.ID())
			if err != nil {
				continue
			}
			if err := clearReference(tx.Cell(), field, n.ID); err != nil {
				tx.Abort()
				continue
			}
			_ = tx.Commit()
		}
	})
	r.track(target, id)
}

// EnforceReference installs a validator on referrer requiring every id
// present in its field at index field to exist in target (looked up by
// targetName in error messages, since Collection itself carries no name --
// that's assigned where the collection is installed into a database). A
// scalar field is only checked while touched; an untouched reference field
// is simply absent, not a dangling reference.
func (r *Registry) EnforceReference(referrer *collection.Collection, field int, target *collection.Collection, targetName string) {
	referrer.AddValidator(func(cell *object.Cell, isDeleted bool) error {
		if isDeleted {
			return nil
		}
		f := cell.Type().FieldByIndex(field)
		if f == nil {
			return fmt.Errorf("relationships: field index %d not found", field)
		}
		if f.IsArray() {
			n, err := cell.ArrayLen(field)
			if err != nil {
				return err
			}
			for i := 0; i < n; i++ {
				v, err := cell.ArrayGet(field, i)
				if err != nil {
					return err
				}
				id, ok := v.(int64)
				if !ok {
					continue
				}
				if _, exists := target.Get(id); !exists {
					return fmt.Errorf("relationships: field %q[%d] refers to id %d which is not in collection %q", f.Label, i, id, targetName)
				}
			}
			return nil
		}
		if !cell.Touched(field) {
			return nil
		}
		v, err := cell.Get(field)
		if err != nil {
			return err
		}
		id, ok := v.(int64)
		if !ok {
			return nil
		}
		if _, exists := target.Get(id); !exists {
			return fmt.Errorf("relationships: field %q refers to id %d which is not in collection %q", f.Label, id, targetName)
		}
		return nil
	})
}

func fieldReferences(cell *object.Cell, field int, id int64) bool {
	f := cell.Type().FieldByIndex(field)
	if f == nil {
		return false
	}
	if f.IsArray() {
		n, err := cell.ArrayLen(field)
		if err != nil {
			return false
		}
		for i := 0; i < n; i++ {
			v, err := cell.ArrayGet(field, i)
			if err != nil {
				return false
			}
			if refID, ok := v.(int64); ok && refID == id {
				return true
			}
		}
		return false
	}
	v, err := cell.Get(field)
	if err != nil {
		return false
	}
	refID, ok := v.(int64)
	return ok && refID == id
}

func clearReference(cell *object.Cell, field int, id int64) error {
	f := cell.Type().FieldByIndex(field)
	if f.IsArray() {
		for {
			n, err := cell.ArrayLen(field)
			if err != nil {
				return err
			}
			removedOne := false
			for i := 0; i < n; i++ {
				v, err := cell.ArrayGet(field, i)
				if err != nil {
					return err
				}
				if refID, ok := v.(int64); ok && refID == id {
					if err := cell.ArrayRemoveAt(field, i); err != nil {
						return err
					}
					removedOne = true
					break
				}
			}
			if !removedOne {
				return nil
			}
		}
	}
	return cell.Clear(field)
}
