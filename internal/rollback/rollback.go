// Package rollback implements the Rollback Engine: given a transaction, it
// walks executed steps in strict reverse order and invokes each one's
// compensate, best-effort, tolerating and recording per-step failures
// rather than aborting the sweep.
//
// Adapted from the teacher's ExecutionOrchestrator.rollbackPlan/rollbackStep
// (reverse iteration over completed, reversible steps, continue-on-error),
// generalized from an in-memory execution plan to steps loaded from the
// durable log and dispatched through the handler registry instead of a
// switch on a hardcoded action name.
package rollback

import (
	"context"
	"log"

	"optiinfra/pkginstall/internal/metrics"
	"optiinfra/pkginstall/internal/model"
	"optiinfra/pkginstall/internal/registry"
	"optiinfra/pkginstall/internal/store"
	"optiinfra/pkginstall/internal/txnerrors"
)

// Engine drives compensation for one transaction at a time.
type Engine struct {
	Store    *store.Store
	Registry *registry.Registry
	Metrics  *metrics.Metrics
}

// New builds an Engine over the given store and handler registry.
func New(s *store.Store, r *registry.Registry) *Engine {
	return &Engine{Store: s, Registry: r}
}

// Outcome is the end state of a rollback sweep.
type Outcome struct {
	// Clean is true when every compensated step succeeded; false means at
	// least one step ended compensation_failed and operator intervention
	// is required.
	Clean bool
}

// Run loads every step of transactionID in {running, succeeded, failed,
// compensating, compensation_failed}, and compensates them in strictly reverse order, skipping steps already
// compensated (idempotence) and retrying compensation_failed/running ones.
func (e *Engine) Run(ctx context.Context, transactionID int64) (Outcome, error) {
	steps, err := e.Store.StepsInStatus(ctx, transactionID,
		model.StepRunning, model.StepSucceeded, model.StepFailed,
		model.StepCompensating, model.StepCompensationFailed,
	)
	if err != nil {
		return Outcome{}, &txnerrors.StorageError{Op: "load steps for rollback", Cause: err}
	}

	clean := true
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]

		if step.Rollback == model.RollbackNone {
			log.Printf("rollback: step %d (%s) declares no rollback strategy, skipping", step.Order, step.Type)
			continue
		}

		if err := e.compensateStep(ctx, step); err != nil {
			log.Printf("rollback: step %d (%s) compensation failed: %v", step.Order, step.Type, err)
			clean = false
			continue
		}
		log.Printf("rollback: step %d (%s) compensated", step.Order, step.Type)
	}

	outcome := Outcome{Clean: clean}
	if e.Metrics != nil {
		result := "clean"
		if !clean {
			result = "compensation_failed"
		}
		e.Metrics.RecordRollback(result)
	}
	return outcome, nil
}

func (e *Engine) compensateStep(ctx context.Context, step model.Step) error {
	if err := e.Store.UpdateStepStatus(ctx, step.TransactionID, step.Order, model.StepCompensating); err != nil {
		return &txnerrors.StorageError{Op: "mark step compensating", Cause: err}
	}

	handler, err := e.Registry.Get(step.Type)
	if err != nil {
		e.markFailed(ctx, step)
		return &txnerrors.CompensateError{StepOrder: step.Order, StepType: string(step.Type), Cause: err}
	}

	snap, err := e.Store.GetSnapshot(ctx, step.TransactionID, step.Order)
	if err != nil {
		e.markFailed(ctx, step)
		return &txnerrors.CompensateError{StepOrder: step.Order, StepType: string(step.Type), Cause: err}
	}

	if err := handler.Compensate(ctx, step.Data, snap.Data); err != nil {
		e.markFailed(ctx, step)
		return &txnerrors.CompensateError{StepOrder: step.Order, StepType: string(step.Type), Cause: err}
	}

	if err := e.Store.UpdateStepStatus(ctx, step.TransactionID, step.Order, model.StepCompensated); err != nil {
		return &txnerrors.StorageError{Op: "mark step compensated", Cause: err}
	}
	return nil
}

func (e *Engine) markFailed(ctx context.Context, step model.Step) {
	if err := e.Store.UpdateStepStatus(ctx, step.TransactionID, step.Order, model.StepCompensationFailed); err != nil {
		log.Printf("rollback: failed to record compensation_failed for step %d: %v", step.Order, err)
	}
	if e.Metrics != nil {
		e.Metrics.RecordCompensationFailure()
	}
}
