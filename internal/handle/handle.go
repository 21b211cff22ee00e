// Package handle implements the typed object wrapper: a cheap handle onto
// an object.Cell that fires an edit-complete callback once every share of
// it has been released.
//
// The source implementation is a reference-counted shared pointer whose
// destructor commits on last release. Go has no destructors, so this
// becomes an explicit Close() (see SPEC_FULL.md §4 / DESIGN.md): Share()
// takes out another reference the way copying the source's shared_ptr
// would, and Close() is the explicit analogue of that shared_ptr going out
// of scope.
package handle

import (
	"sync/atomic"

	"github.com/untoldecay/jude/internal/bitmask"
	"github.com/untoldecay/jude/internal/object"
)

// OnComplete is invoked exactly once, when the last outstanding share of a
// handle is closed. Resource and Collection WriteLock supply this to publish
// the change and release their mutex; it runs no validators.
type OnComplete func(cell *object.Cell)

// Handle is a shared handle onto a single object.Cell.
type Handle struct {
	cell       *object.Cell
	refs       *int32
	onComplete OnComplete
	closed     bool
}

// New wraps cell in a fresh handle with a reference count of 1.
func New(cell *object.Cell, onComplete OnComplete) *Handle {
	var n int32 = 1
	return &Handle{cell: cell, refs: &n, onComplete: onComplete}
}

// Share takes out another reference to the same underlying cell; the
// edit-complete callback fires only once every Handle sharing this cell
// (the original plus every Share()'d copy) has been Close()'d.
func (h *Handle) Share() *Handle {
	atomic.AddInt32(h.refs, 1)
	return &Handle{cell: h.cell, refs: h.refs, onComplete: h.onComplete}
}

// Close releases this handle's share. If it was the last outstanding
// share, the edit-complete callback fires synchronously on this goroutine.
// Close is idempotent; calling it twice on the same Handle value has no
// further effect.
func (h *Handle) Close() {
	if h.closed {
		return
	}
	h.closed = true
	if atomic.AddInt32(h.refs, -1) == 0 && h.onComplete != nil {
		h.onComplete(h.cell)
	}
}

// Cell exposes the underlying cell for the generic accessors and for
// passing to object/jsoncodec/restapi functions that take a *object.Cell
// directly.
func (h *Handle) Cell() *object.Cell { return h.cell }

// Get returns the raw value of a scalar field (nil if absent).
func (h *Handle) Get(field int) (any, error) { return h.cell.Get(field) }

// Set stores a scalar value into field, marking it touched and changed; the
// changed bit propagates up to ancestors, touched does not.
func (h *Handle) Set(field int, v any) error { return h.cell.Set(field, v) }

// Has reports whether field is present (touched).
func (h *Handle) Has(field int) bool { return h.cell.Touched(field) }

// Clear removes field, producing the cleared-but-changed delta state.
func (h *Handle) Clear(field int) error { return h.cell.Clear(field) }

// IsChanged reports whether any field changed since the last change-clear.
func (h *Handle) IsChanged() bool { return h.cell.Mask().IsAnyChanged() }

// GetChanges returns a copy of the cell's current touched/changed mask.
func (h *Handle) GetChanges() bitmask.FieldMask { return h.cell.Mask().Clone() }

// ClearChangeMarkers recursively clears every changed bit in the cell
// tree, leaving touched bits (the live data) untouched.
func (h *Handle) ClearChangeMarkers() { object.ClearChanges(h.cell) }

// Clone returns a new, independent object.Cell carrying the same data. If
// clearChanges is true, the clone's changed bits are cleared (touched bits
// survive), matching the typed wrapper's Clone(clear_changes?) from
// spec.md §4.8.
func (h *Handle) Clone(clearChanges bool) *object.Cell {
	clone := object.Clone(h.cell)
	if clearChanges {
		object.ClearChanges(clone)
	}
	return clone
}
