package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"optiinfra/pkginstall/internal/subprocess"
)

// CustomScriptData is the step_data shape for a custom_script step. Per
// SPEC_FULL.md's resolution of the source's rollback-strategy ambiguity,
// this step type has no built-in compensator: the step must declare
// rollback "manual" and supply RollbackScript, or declare "none".
type CustomScriptData struct {
	Command        string   `json:"command"`
	Args           []string `json:"args"`
	RollbackScript string   `json:"rollback_script"`
	RollbackArgs   []string `json:"rollback_args"`
}

// CustomScriptHandler executes an operator-supplied script. It takes no
// automatic snapshot — compensate runs the paired rollback script.
type CustomScriptHandler struct {
	Runner subprocess.Runner
}

func (h CustomScriptHandler) Validate(data []byte) error {
	var d CustomScriptData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("custom_script: invalid step data: %w", err)
	}
	if d.Command == "" {
		return fmt.Errorf("custom_script: command is required")
	}
	return nil
}

// Snapshot is a no-op: there is no automatic pre-image for an arbitrary
// script's side effects. An empty blob satisfies invariant 1's pairing
// requirement without claiming any undo capability.
func (h CustomScriptHandler) Snapshot(ctx context.Context, data []byte) ([]byte, error) {
	return []byte("{}"), nil
}

func (h CustomScriptHandler) Apply(ctx context.Context, data []byte) error {
	var d CustomScriptData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("custom_script: decode step data: %w", err)
	}
	runID := uuid.New().String()
	log.Printf("custom_script: run %s (correlation %s)", d.Command, runID)
	if _, err := h.Runner.Run(ctx, d.Command, d.Args...); err != nil {
		return fmt.Errorf("custom_script: run %s (correlation %s): %w", d.Command, runID, err)
	}
	return nil
}

// Compensate runs the paired rollback script declared in step data. A step
// with rollback strategy "manual" but no RollbackScript is a configuration
// error that must surface as a CompensateError, not a silent success.
func (h CustomScriptHandler) Compensate(ctx context.Context, data, snapshot []byte) error {
	var d CustomScriptData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("custom_script: decode step data: %w", err)
	}
	if d.RollbackScript == "" {
		return fmt.Errorf("custom_script: no rollback_script declared, cannot compensate")
	}
	runID := uuid.New().String()
	log.Printf("custom_script: run rollback script %s (correlation %s)", d.RollbackScript, runID)
	if _, err := h.Runner.Run(ctx, d.RollbackScript, d.RollbackArgs...); err != nil {
		return fmt.Errorf("custom_script: run rollback script %s (correlation %s): %w", d.RollbackScript, runID, err)
	}
	return nil
}
