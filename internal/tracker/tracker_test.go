package tracker

import (
	"context"
	"path/filepath"
	"testing"

	"optiinfra/pkginstall/internal/model"
	"optiinfra/pkginstall/internal/registry"
	"optiinfra/pkginstall/internal/store"
)

type fakeHandler struct {
	snapshot []byte
	err      error
}

func (f fakeHandler) Validate([]byte) error { return nil }
func (f fakeHandler) Snapshot(context.Context, []byte) ([]byte, error) {
	return f.snapshot, f.err
}
func (f fakeHandler) Apply(context.Context, []byte) error                 { return nil }
func (f fakeHandler) Compensate(context.Context, []byte, []byte) error { return nil }

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "pkginstall.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCapturePersistsSnapshot(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	reg := registry.New()
	reg.Register(model.StepAptPackage, fakeHandler{snapshot: []byte(`{"installed":{}}`)})

	txnID, err := s.InsertTransaction(ctx, "nginx", "fp", nil)
	if err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}
	step := model.Step{TransactionID: txnID, Order: 0, Type: model.StepAptPackage, Data: []byte("{}")}

	tr := New(s, reg)
	if err := tr.Capture(ctx, step); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	snap, err := s.GetSnapshot(ctx, txnID, 0)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if string(snap.Data) != `{"installed":{}}` {
		t.Fatalf("unexpected snapshot data: %s", snap.Data)
	}
}

func TestCaptureWrapsHandlerFailure(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	reg := registry.New()
	reg.Register(model.StepAptPackage, fakeHandler{err: errBoom})

	txnID, _ := s.InsertTransaction(ctx, "nginx", "fp", nil)
	step := model.Step{TransactionID: txnID, Order: 0, Type: model.StepAptPackage, Data: []byte("{}")}

	tr := New(s, reg)
	if err := tr.Capture(ctx, step); err == nil {
		t.Fatalf("expected error from failing handler")
	}
}

func TestCaptureUnknownStepTypeFails(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	reg := registry.New()

	txnID, _ := s.InsertTransaction(ctx, "nginx", "fp", nil)
	step := model.Step{TransactionID: txnID, Order: 0, Type: model.StepAptPackage, Data: []byte("{}")}

	tr := New(s, reg)
	if err := tr.Capture(ctx, step); err == nil {
		t.Fatalf("expected error for unregistered step type")
	}
}

var errBoom = boomErr{}

type boomErr struct{}

func (boomErr) Error() string { return "boom" }
