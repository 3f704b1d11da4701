// Package state persists cycle-carried node state for the duration of a run.
//
// The store maps (run, cycle, node) to the node's last-known carried state,
// an opaque structured value the node itself defines. A snapshot for a node
// that has not written yet resolves to an empty object, never a null value;
// nodes must be able to rely on that at iteration 0.
package state

import (
	"context"

	"github.com/zclconf/go-cty/cty"
)

// Key addresses one node's carried state within one run and cycle.
type Key struct {
	RunID   string
	CycleID string
	NodeID  string
}

// Empty is the canonical iteration-0 snapshot: a non-null empty object.
func Empty() cty.Value {
	return cty.EmptyObjectVal
}

// Store is the carried-state persistence interface. A given cycle group is
// accessed by exactly one execution path at a time, but independent groups
// may hit the store concurrently, so implementations must be safe for
// concurrent use across keys.
type Store interface {
	// Snapshot returns the last carried state written for the key, or an
	// empty object when nothing has been written.
	Snapshot(ctx context.Context, key Key) (cty.Value, error)

	// Save writes the carried state produced by the given iteration. It
	// must complete before the next iteration's snapshot is taken.
	Save(ctx context.Context, key Key, iteration int, state cty.Value) error

	// Discard removes all state belonging to a run. Called at run
	// completion; carried state never outlives its run.
	Discard(ctx context.Context, runID string) error
}
