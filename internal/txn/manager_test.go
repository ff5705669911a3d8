package txn

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"optiinfra/pkginstall/internal/model"
	"optiinfra/pkginstall/internal/registry"
	"optiinfra/pkginstall/internal/store"
)

type scriptedHandler struct {
	applyErr      error
	compensateErr error
	applied       *[]string
	compensated   *[]string
	name          string
}

func (h scriptedHandler) Validate([]byte) error { return nil }
func (h scriptedHandler) Snapshot(context.Context, []byte) ([]byte, error) {
	return []byte("{}"), nil
}

func (h scriptedHandler) Apply(ctx context.Context, data []byte) error {
	if h.applied != nil {
		*h.applied = append(*h.applied, h.name)
	}
	return h.applyErr
}

func (h scriptedHandler) Compensate(ctx context.Context, data, snapshot []byte) error {
	if h.compensated != nil {
		*h.compensated = append(*h.compensated, h.name)
	}
	return h.compensateErr
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "pkginstall.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBeginExecuteCommitHappyPath(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	reg := registry.New()

	var applied []string
	reg.Register(model.StepAptPackage, scriptedHandler{name: "apt", applied: &applied})
	reg.Register(model.StepFileCopy, scriptedHandler{name: "file", applied: &applied})

	mgr := New(s, reg, nil)
	txnID, err := mgr.Begin(ctx, "nginx", []byte(`{"name":"nginx"}`))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	steps := []StepInput{
		{Type: model.StepAptPackage, Data: []byte("{}"), Rollback: model.RollbackAuto},
		{Type: model.StepFileCopy, Data: []byte("{}"), Rollback: model.RollbackAuto},
	}
	if err := mgr.Execute(ctx, txnID, steps); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := mgr.Commit(ctx, txnID); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	view, err := mgr.Status(ctx, txnID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.Transaction.Status != model.TransactionCommitted {
		t.Fatalf("expected committed, got %s", view.Transaction.Status)
	}
	for _, st := range view.Steps {
		if st.Status != model.StepSucceeded {
			t.Fatalf("expected step %d succeeded, got %s", st.Order, st.Status)
		}
	}
	if len(applied) != 2 {
		t.Fatalf("expected 2 applies, got %d", len(applied))
	}

	if _, err := s.GetSnapshot(ctx, txnID, 0); err == nil {
		t.Fatalf("expected snapshots deleted after commit")
	}
}

func TestExecuteFailureTriggersRollback(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	reg := registry.New()

	var applied, compensated []string
	reg.Register(model.StepAptPackage, scriptedHandler{name: "apt", applied: &applied, compensated: &compensated})
	reg.Register(model.StepFileCopy, scriptedHandler{
		name: "file", applied: &applied, compensated: &compensated,
		applyErr: fmt.Errorf("source file missing"),
	})

	mgr := New(s, reg, nil)
	txnID, err := mgr.Begin(ctx, "nginx", nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	steps := []StepInput{
		{Type: model.StepAptPackage, Data: []byte("{}"), Rollback: model.RollbackAuto},
		{Type: model.StepFileCopy, Data: []byte("{}"), Rollback: model.RollbackAuto},
	}
	err = mgr.Execute(ctx, txnID, steps)
	if err == nil {
		t.Fatalf("expected Execute to report the apply failure")
	}

	view, err := mgr.Status(ctx, txnID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.Transaction.Status != model.TransactionRolledBack {
		t.Fatalf("expected rolled_back, got %s", view.Transaction.Status)
	}
	if view.Steps[0].Status != model.StepCompensated {
		t.Fatalf("expected step 0 compensated, got %s", view.Steps[0].Status)
	}
	if view.Steps[1].Status != model.StepFailed {
		t.Fatalf("expected step 1 failed, got %s", view.Steps[1].Status)
	}
}

func TestBeginFailsWithBusyWhileAnotherInProgress(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	reg := registry.New()
	mgr := New(s, reg, nil)

	if _, err := mgr.Begin(ctx, "nginx", nil); err != nil {
		t.Fatalf("first Begin: %v", err)
	}
	if _, err := mgr.Begin(ctx, "redis", nil); err == nil {
		t.Fatalf("expected second Begin to fail with Busy")
	}
}

func TestRecoverRollsBackInProgressTransactions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	reg := registry.New()

	var compensated []string
	reg.Register(model.StepAptPackage, scriptedHandler{name: "apt", compensated: &compensated})

	mgr := New(s, reg, nil)
	txnID, err := mgr.Begin(ctx, "nginx", nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	step := model.Step{TransactionID: txnID, Order: 0, Type: model.StepAptPackage, Data: []byte("{}"), Status: model.StepRunning, Rollback: model.RollbackAuto}
	if err := s.InsertStep(ctx, step); err != nil {
		t.Fatalf("InsertStep: %v", err)
	}
	if err := s.InsertSnapshot(ctx, model.Snapshot{TransactionID: txnID, Order: 0, Data: []byte("{}")}); err != nil {
		t.Fatalf("InsertSnapshot: %v", err)
	}

	// Simulate a fresh process: a new Manager with no in-memory "current".
	recovered := New(s, reg, nil)
	if err := recovered.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	view, err := recovered.Status(ctx, txnID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.Transaction.Status != model.TransactionRolledBack {
		t.Fatalf("expected rolled_back after recovery, got %s", view.Transaction.Status)
	}
	if len(compensated) != 1 {
		t.Fatalf("expected compensate called once during recovery, got %d", len(compensated))
	}
}
