package handlers

import (
	"context"
	"encoding/json"
	"testing"
)

func TestCustomScriptApplyAndCompensate(t *testing.T) {
	h := CustomScriptHandler{}
	data, _ := json.Marshal(CustomScriptData{
		Command:        "true",
		RollbackScript: "true",
	})

	if err := h.Validate(data); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := h.Apply(context.Background(), data); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	snap, err := h.Snapshot(context.Background(), data)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := h.Compensate(context.Background(), data, snap); err != nil {
		t.Fatalf("Compensate: %v", err)
	}
}

func TestCustomScriptCompensateWithoutRollbackScriptFails(t *testing.T) {
	h := CustomScriptHandler{}
	data, _ := json.Marshal(CustomScriptData{Command: "true"})

	err := h.Compensate(context.Background(), data, []byte("{}"))
	if err == nil {
		t.Fatalf("expected error when no rollback_script is declared")
	}
}

func TestCustomScriptValidateRequiresCommand(t *testing.T) {
	h := CustomScriptHandler{}
	if err := h.Validate([]byte(`{}`)); err == nil {
		t.Fatalf("expected error for missing command")
	}
}
