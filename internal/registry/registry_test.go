package registry

import (
	"context"
	"testing"

	"optiinfra/pkginstall/internal/model"
)

type fakeHandler struct {
	validateErr error
}

func (f *fakeHandler) Validate(data []byte) error { return f.validateErr }
func (f *fakeHandler) Snapshot(ctx context.Context, data []byte) ([]byte, error) {
	return []byte("snap"), nil
}
func (f *fakeHandler) Apply(ctx context.Context, data []byte) error { return nil }
func (f *fakeHandler) Compensate(ctx context.Context, data, snapshot []byte) error { return nil }

func TestRegisterAndGet(t *testing.T) {
	r := New()
	h := &fakeHandler{}
	r.Register(model.StepAptPackage, h)

	got, err := r.Get(model.StepAptPackage)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != h {
		t.Fatalf("Get returned a different handler instance")
	}
}

func TestGetUnknownType(t *testing.T) {
	r := New()
	if _, err := r.Get(model.StepType("nope")); err == nil {
		t.Fatal("expected error for unregistered step type")
	}
}

func TestTypes(t *testing.T) {
	r := New()
	r.Register(model.StepAptPackage, &fakeHandler{})
	r.Register(model.StepFileCopy, &fakeHandler{})

	types := r.Types()
	if len(types) != 2 {
		t.Fatalf("expected 2 registered types, got %d", len(types))
	}
}
