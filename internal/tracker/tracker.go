// Package tracker implements the State Tracker: a thin coordinator that
// asks a step's handler for a snapshot and hands the blob to the durable
// log, guaranteeing the snapshot row is durable before Capture returns.
package tracker

import (
	"context"
	"fmt"

	"optiinfra/pkginstall/internal/model"
	"optiinfra/pkginstall/internal/registry"
	"optiinfra/pkginstall/internal/store"
	"optiinfra/pkginstall/internal/txnerrors"
)

// Tracker owns no state of its own; it only sequences handler.Snapshot
// followed by a durable write.
type Tracker struct {
	Store    *store.Store
	Registry *registry.Registry
}

// New builds a Tracker over the given store and handler registry.
func New(s *store.Store, r *registry.Registry) *Tracker {
	return &Tracker{Store: s, Registry: r}
}

// Capture snapshots step's pre-state via its registered handler and
// persists it before returning, satisfying invariant 1.
func (t *Tracker) Capture(ctx context.Context, step model.Step) error {
	handler, err := t.Registry.Get(step.Type)
	if err != nil {
		return &txnerrors.SnapshotError{StepOrder: step.Order, Cause: err}
	}

	data, err := handler.Snapshot(ctx, step.Data)
	if err != nil {
		return &txnerrors.SnapshotError{StepOrder: step.Order, Cause: err}
	}

	snap := model.Snapshot{TransactionID: step.TransactionID, Order: step.Order, Data: data}
	if err := t.Store.InsertSnapshot(ctx, snap); err != nil {
		return &txnerrors.SnapshotError{StepOrder: step.Order, Cause: fmt.Errorf("persist snapshot: %w", err)}
	}
	return nil
}
