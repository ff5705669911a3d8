package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"optiinfra/pkginstall/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pkginstall.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndGetTransaction(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.InsertTransaction(ctx, "nginx", "fp1", []byte(`{"name":"nginx"}`))
	if err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}

	txn, err := s.GetTransaction(ctx, id)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if txn.PackageName != "nginx" || txn.Status != model.TransactionPending {
		t.Fatalf("unexpected transaction: %+v", txn)
	}
}

func TestUpdateTransactionStatusStampsCompletedAtOnTerminal(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, _ := s.InsertTransaction(ctx, "nginx", "fp1", nil)
	if err := s.UpdateTransactionStatus(ctx, id, model.TransactionInProgress); err != nil {
		t.Fatalf("update to in_progress: %v", err)
	}
	txn, _ := s.GetTransaction(ctx, id)
	if txn.CompletedAt != nil {
		t.Fatalf("completed_at should be nil for non-terminal status")
	}

	if err := s.UpdateTransactionStatus(ctx, id, model.TransactionCommitted); err != nil {
		t.Fatalf("update to committed: %v", err)
	}
	txn, _ = s.GetTransaction(ctx, id)
	if txn.CompletedAt == nil {
		t.Fatalf("completed_at should be set for terminal status")
	}
}

func TestCountInProgressEnforcesSingleWriter(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, _ := s.InsertTransaction(ctx, "nginx", "fp1", nil)
	n, err := s.CountInProgress(ctx)
	if err != nil {
		t.Fatalf("CountInProgress: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 in_progress before transition, got %d", n)
	}

	if err := s.UpdateTransactionStatus(ctx, id, model.TransactionInProgress); err != nil {
		t.Fatalf("update: %v", err)
	}
	n, err = s.CountInProgress(ctx)
	if err != nil {
		t.Fatalf("CountInProgress: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 in_progress, got %d", n)
	}
}

func TestStepAndSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	txnID, _ := s.InsertTransaction(ctx, "nginx", "fp1", nil)
	step := model.Step{
		TransactionID: txnID,
		Order:         0,
		Type:          model.StepAptPackage,
		Data:          []byte(`{"packages":["nginx"]}`),
		Status:        model.StepPending,
		Rollback:      model.RollbackAuto,
	}
	if err := s.InsertStep(ctx, step); err != nil {
		t.Fatalf("InsertStep: %v", err)
	}

	snap := model.Snapshot{TransactionID: txnID, Order: 0, Data: []byte(`{"installed":[]}`)}
	if err := s.InsertSnapshot(ctx, snap); err != nil {
		t.Fatalf("InsertSnapshot: %v", err)
	}

	if err := s.UpdateStepStatus(ctx, txnID, 0, model.StepRunning); err != nil {
		t.Fatalf("UpdateStepStatus: %v", err)
	}

	steps, err := s.GetSteps(ctx, txnID)
	if err != nil {
		t.Fatalf("GetSteps: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("unexpected steps: %+v", steps)
	}

	wantStep := step
	wantStep.Status = model.StepRunning
	if diff := cmp.Diff(wantStep, steps[0], cmpopts.IgnoreFields(model.Step{}, "ExecutedAt")); diff != "" {
		t.Fatalf("step round trip mismatch (-want +got):\n%s", diff)
	}

	got, err := s.GetSnapshot(ctx, txnID, 0)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if diff := cmp.Diff(snap, got, cmpopts.IgnoreFields(model.Snapshot{}, "CreatedAt")); diff != "" {
		t.Fatalf("snapshot round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteTransactionTreeIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	txnID, _ := s.InsertTransaction(ctx, "nginx", "fp1", nil)
	_ = s.InsertStep(ctx, model.Step{TransactionID: txnID, Order: 0, Type: model.StepAptPackage, Data: []byte("{}"), Status: model.StepSucceeded, Rollback: model.RollbackAuto})
	_ = s.InsertSnapshot(ctx, model.Snapshot{TransactionID: txnID, Order: 0, Data: []byte("{}")})

	if err := s.DeleteTransactionTree(ctx, txnID); err != nil {
		t.Fatalf("DeleteTransactionTree: %v", err)
	}

	if _, err := s.GetTransaction(ctx, txnID); err == nil {
		t.Fatalf("expected transaction to be gone")
	}
	steps, _ := s.GetSteps(ctx, txnID)
	if len(steps) != 0 {
		t.Fatalf("expected no steps after delete, got %d", len(steps))
	}
}

func TestGCOlderThanOnlyDeletesOldTerminalTransactions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	oldCommitted, _ := s.InsertTransaction(ctx, "old-committed", "fp1", nil)
	_ = s.UpdateTransactionStatus(ctx, oldCommitted, model.TransactionCommitted)
	backdate(t, s, oldCommitted, time.Now().Add(-45*24*time.Hour))

	oldInProgress, _ := s.InsertTransaction(ctx, "old-in-progress", "fp2", nil)
	_ = s.UpdateTransactionStatus(ctx, oldInProgress, model.TransactionInProgress)

	n, err := s.GCOlderThan(ctx, time.Now().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("GCOlderThan: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 transaction gc'd, got %d", n)
	}

	if _, err := s.GetTransaction(ctx, oldCommitted); err == nil {
		t.Fatalf("expected old committed transaction to be gone")
	}
	if _, err := s.GetTransaction(ctx, oldInProgress); err != nil {
		t.Fatalf("expected in_progress transaction to be retained: %v", err)
	}
}

func backdate(t *testing.T, s *Store, id int64, when time.Time) {
	t.Helper()
	if _, err := s.db.Exec(`UPDATE transactions SET completed_at = ? WHERE id = ?`, when, id); err != nil {
		t.Fatalf("backdate: %v", err)
	}
}

func TestNonTerminalTransactions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	pendingID, _ := s.InsertTransaction(ctx, "pending-pkg", "fp1", nil)
	committedID, _ := s.InsertTransaction(ctx, "committed-pkg", "fp2", nil)
	_ = s.UpdateTransactionStatus(ctx, committedID, model.TransactionCommitted)

	open, err := s.NonTerminalTransactions(ctx)
	if err != nil {
		t.Fatalf("NonTerminalTransactions: %v", err)
	}
	if len(open) != 1 || open[0].ID != pendingID {
		t.Fatalf("expected only pending transaction, got %+v", open)
	}
}
