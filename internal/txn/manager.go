// Package txn implements the Transaction Manager: the component that owns
// the transaction state machine, drives ordered step execution, triggers
// rollback on failure, and recovers non-terminal transactions after a
// crash.
//
// Adapted from the teacher's ExecutionOrchestrator.ExecutePlan/executeStep
// (internal/coordination/executor.go): the steps loop, critical-step
// failure triggering rollback, and per-step status bookkeeping carry over;
// the in-memory plan map is replaced by the durable log, and the
// hardcoded action switch is replaced by the handler registry.
package txn

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"optiinfra/pkginstall/internal/events"
	"optiinfra/pkginstall/internal/metrics"
	"optiinfra/pkginstall/internal/model"
	"optiinfra/pkginstall/internal/registry"
	"optiinfra/pkginstall/internal/rollback"
	"optiinfra/pkginstall/internal/store"
	"optiinfra/pkginstall/internal/tracker"
	"optiinfra/pkginstall/internal/txnerrors"
)

// StepInput is the caller-supplied shape of one step before it is
// persisted: a type tag plus its handler-specific data blob.
type StepInput struct {
	Type     model.StepType
	Data     []byte
	Rollback model.RollbackStrategy
}

// Manager sequences one transaction at a time on this instance, enforcing
// the single-writer interlock against the durable log.
type Manager struct {
	store    *store.Store
	registry *registry.Registry
	tracker  *tracker.Tracker
	rollback *rollback.Engine
	events   *events.Bus
	metrics  *metrics.Metrics

	mu      sync.Mutex
	current *int64 // the transaction this instance is currently driving
}

// New builds a Manager over the given store and handler registry. bus may
// be nil, in which case progress notifications are silently dropped.
func New(s *store.Store, r *registry.Registry, bus *events.Bus) *Manager {
	return &Manager{
		store:    s,
		registry: r,
		tracker:  tracker.New(s, r),
		rollback: rollback.New(s, r),
		events:   bus,
	}
}

// SetMetrics attaches a Metrics instance that the Manager, and the Rollback
// Engine and Store it drives, report to. Optional: a Manager with no
// Metrics attached records nothing.
func (m *Manager) SetMetrics(met *metrics.Metrics) {
	m.metrics = met
	m.rollback.Metrics = met
	m.store.SetMetrics(met)
}

// Begin creates a pending transaction, fingerprints the metadata, and
// transitions it to in_progress. Fails with BusyError if another
// transaction is already in_progress.
func (m *Manager) Begin(ctx context.Context, packageName string, metadata []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.store.CountInProgress(ctx)
	if err != nil {
		return 0, &txnerrors.StorageError{Op: "count in_progress", Cause: err}
	}
	if n > 0 {
		inProgress, _ := m.store.NonTerminalTransactions(ctx)
		var id int64
		for _, t := range inProgress {
			if t.Status == model.TransactionInProgress {
				id = t.ID
				break
			}
		}
		return 0, &txnerrors.BusyError{InProgressID: id}
	}

	fingerprint := fingerprintOf(metadata)
	id, err := m.store.InsertTransaction(ctx, packageName, fingerprint, metadata)
	if err != nil {
		return 0, &txnerrors.StorageError{Op: "insert transaction", Cause: err}
	}
	if err := m.store.UpdateTransactionStatus(ctx, id, model.TransactionInProgress); err != nil {
		return 0, &txnerrors.StorageError{Op: "mark in_progress", Cause: err}
	}

	m.current = &id
	if m.metrics != nil {
		m.metrics.SetActiveTransaction(true)
	}
	log.Printf("txn: begin %d (%s)", id, packageName)
	return id, nil
}

// Execute validates every step's shape against its handler before running
// any side effects, then runs apply in declared order, snapshotting each
// step immediately before its apply. On the first step failure it triggers
// rollback and returns the original cause: an apply failure wrapped as
// ApplyError, a snapshot failure as the tracker's SnapshotError.
func (m *Manager) Execute(ctx context.Context, transactionID int64, steps []StepInput) error {
	for i, in := range steps {
		handler, err := m.registry.Get(in.Type)
		if err != nil {
			return &txnerrors.ValidationError{Reason: fmt.Sprintf("step %d: no handler for type %q", i, in.Type), Cause: err}
		}
		if err := handler.Validate(in.Data); err != nil {
			return &txnerrors.ValidationError{Reason: fmt.Sprintf("step %d (%s) shape", i, in.Type), Cause: err}
		}
	}

	for i, in := range steps {
		handler, err := m.registry.Get(in.Type)
		if err != nil {
			return &txnerrors.ValidationError{Reason: fmt.Sprintf("step %d: no handler for type %q", i, in.Type), Cause: err}
		}

		step := model.Step{
			TransactionID: transactionID,
			Order:         i,
			Type:          in.Type,
			Data:          in.Data,
			Status:        model.StepPending,
			Rollback:      in.Rollback,
		}
		if err := m.store.InsertStep(ctx, step); err != nil {
			return &txnerrors.StorageError{Op: "insert step", Cause: err}
		}

		if err := m.tracker.Capture(ctx, step); err != nil {
			// No snapshot was written, so the step stays pending and the
			// rollback sweep covers only the steps before it.
			m.triggerRollback(ctx, transactionID)
			return err
		}

		if err := m.store.UpdateStepStatus(ctx, transactionID, i, model.StepRunning); err != nil {
			return &txnerrors.StorageError{Op: "mark step running", Cause: err}
		}

		applyStart := time.Now()
		applyErr := handler.Apply(ctx, in.Data)
		if m.metrics != nil {
			status := "succeeded"
			if applyErr != nil {
				status = "failed"
			}
			m.metrics.RecordStep(string(in.Type), status, time.Since(applyStart).Seconds())
		}
		if applyErr != nil {
			m.failStepAndRollback(ctx, transactionID, i)
			wrapped := &txnerrors.ApplyError{StepOrder: i, StepType: string(in.Type), Cause: applyErr}
			m.triggerRollback(ctx, transactionID)
			return wrapped
		}

		if err := m.store.UpdateStepStatus(ctx, transactionID, i, model.StepSucceeded); err != nil {
			return &txnerrors.StorageError{Op: "mark step succeeded", Cause: err}
		}
		m.publish(ctx, transactionID, &i, "succeeded", "")
	}

	return nil
}

// failStepAndRollback marks the currently-running step failed (best-effort
// bookkeeping) before the caller triggers the rollback sweep.
func (m *Manager) failStepAndRollback(ctx context.Context, transactionID int64, order int) {
	if err := m.store.UpdateStepStatus(ctx, transactionID, order, model.StepFailed); err != nil {
		log.Printf("txn: failed to mark step %d failed for transaction %d: %v", order, transactionID, err)
	}
	m.publish(ctx, transactionID, &order, "failed", "")
}

func (m *Manager) triggerRollback(ctx context.Context, transactionID int64) {
	if err := m.Rollback(ctx, transactionID); err != nil {
		log.Printf("txn: rollback of transaction %d reported an error: %v", transactionID, err)
	}
}

// Commit transitions in_progress to committed and deletes the now-unneeded
// snapshot rows.
func (m *Manager) Commit(ctx context.Context, transactionID int64) error {
	started := m.transactionStartedAt(ctx, transactionID)

	if err := m.store.UpdateTransactionStatus(ctx, transactionID, model.TransactionCommitted); err != nil {
		return &txnerrors.StorageError{Op: "mark committed", Cause: err}
	}
	if err := m.store.DeleteSnapshots(ctx, transactionID); err != nil {
		return &txnerrors.StorageError{Op: "delete snapshots on commit", Cause: err}
	}

	m.mu.Lock()
	if m.current != nil && *m.current == transactionID {
		m.current = nil
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordTransaction(string(model.TransactionCommitted), time.Since(started).Seconds())
		m.metrics.SetActiveTransaction(false)
	}

	log.Printf("txn: committed %d", transactionID)
	m.publish(ctx, transactionID, nil, string(model.TransactionCommitted), "")
	return nil
}

// transactionStartedAt returns the transaction's created_at, used to
// compute the begin-to-terminal duration metrics.Metrics reports. A lookup
// failure returns the zero time rather than failing the caller's verb.
func (m *Manager) transactionStartedAt(ctx context.Context, transactionID int64) time.Time {
	t, err := m.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return time.Time{}
	}
	return t.CreatedAt
}

// Rollback re-attempts compensation for transactionID from the durable log.
// It is idempotent: calling it again skips already-compensated steps.
func (m *Manager) Rollback(ctx context.Context, transactionID int64) error {
	started := m.transactionStartedAt(ctx, transactionID)

	if err := m.store.UpdateTransactionStatus(ctx, transactionID, model.TransactionRollingBack); err != nil {
		return &txnerrors.StorageError{Op: "mark rolling_back", Cause: err}
	}

	outcome, err := m.rollback.Run(ctx, transactionID)
	if err != nil {
		return err
	}

	final := model.TransactionRolledBack
	if !outcome.Clean {
		final = model.TransactionFailed
	}
	if err := m.store.UpdateTransactionStatus(ctx, transactionID, final); err != nil {
		return &txnerrors.StorageError{Op: "mark rollback outcome", Cause: err}
	}

	m.mu.Lock()
	if m.current != nil && *m.current == transactionID {
		m.current = nil
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordTransaction(string(final), time.Since(started).Seconds())
		m.metrics.SetActiveTransaction(false)
	}

	log.Printf("txn: rollback of %d finished, status=%s", transactionID, final)
	m.publish(ctx, transactionID, nil, string(final), "")
	return nil
}

// Status returns the transaction and its steps.
func (m *Manager) Status(ctx context.Context, transactionID int64) (model.TransactionView, error) {
	t, err := m.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return model.TransactionView{}, err
	}
	steps, err := m.store.GetSteps(ctx, transactionID)
	if err != nil {
		return model.TransactionView{}, &txnerrors.StorageError{Op: "get steps", Cause: err}
	}
	return model.TransactionView{Transaction: t, Steps: steps}, nil
}

// List returns the most recent transactions with their steps, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]model.TransactionView, error) {
	txns, err := m.store.ListTransactions(ctx, limit)
	if err != nil {
		return nil, &txnerrors.StorageError{Op: "list transactions", Cause: err}
	}

	views := make([]model.TransactionView, 0, len(txns))
	for _, t := range txns {
		steps, err := m.store.GetSteps(ctx, t.ID)
		if err != nil {
			return nil, &txnerrors.StorageError{Op: "get steps", Cause: err}
		}
		views = append(views, model.TransactionView{Transaction: t, Steps: steps})
	}
	return views, nil
}

// GC deletes every terminal transaction older than olderThanDays, returning
// the count removed.
func (m *Manager) GC(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
	n, err := m.store.GCOlderThan(ctx, cutoff)
	if err != nil {
		return 0, &txnerrors.StorageError{Op: "gc", Cause: err}
	}
	return n, nil
}

// Recover scans for non-terminal transactions left behind by a crash and
// restores each to a terminal state, per testable property 3. It should be
// called once at process startup before any new transaction begins.
//
// Per spec.md §4.1, a transaction caught `pending` with no steps recorded
// (the crash window between InsertTransaction and Begin's in_progress
// write) never had any side effect and is deleted outright rather than
// driven through rollback to a phantom rolled_back row. `in_progress` and
// `rolling_back` transactions are rolled back as usual.
func (m *Manager) Recover(ctx context.Context) error {
	open, err := m.store.NonTerminalTransactions(ctx)
	if err != nil {
		return &txnerrors.StorageError{Op: "list non-terminal transactions", Cause: err}
	}

	for _, t := range open {
		if t.Status == model.TransactionPending {
			steps, err := m.store.GetSteps(ctx, t.ID)
			if err != nil {
				log.Printf("txn: recovery: failed to load steps for pending transaction %d: %v", t.ID, err)
				continue
			}
			if len(steps) == 0 {
				log.Printf("txn: recovering transaction %d (was pending, no steps): deleting", t.ID)
				if err := m.store.DeleteTransactionTree(ctx, t.ID); err != nil {
					log.Printf("txn: recovery: failed to delete pending transaction %d: %v", t.ID, err)
				}
				continue
			}
		}

		log.Printf("txn: recovering transaction %d (was %s)", t.ID, t.Status)
		if err := m.Rollback(ctx, t.ID); err != nil {
			log.Printf("txn: recovery rollback of %d reported an error: %v", t.ID, err)
		}
	}
	return nil
}

func (m *Manager) publish(ctx context.Context, transactionID int64, stepOrder *int, status, message string) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ctx, events.Progress{
		TransactionID: transactionID,
		StepOrder:     stepOrder,
		Status:        status,
		Message:       message,
		At:            time.Now().UTC(),
	}); err != nil {
		log.Printf("txn: progress publish failed: %v", err)
	}
}

func fingerprintOf(metadata []byte) string {
	sum := sha256.Sum256(metadata)
	return hex.EncodeToString(sum[:])
}
