package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"optiinfra/pkginstall/internal/subprocess"
)

// AnsiblePlaybookData is the step_data shape for an ansible_playbook step.
// As with custom_script, there is no automatic compensator: the step must
// declare rollback "ansible" and supply RollbackPlaybook, or "none".
type AnsiblePlaybookData struct {
	Playbook         string            `json:"playbook"`
	Vars             map[string]string `json:"vars"`
	RollbackPlaybook string            `json:"rollback_playbook"`
	RollbackVars     map[string]string `json:"rollback_vars"`
}

// AnsiblePlaybookHandler runs a declared playbook via ansible-playbook.
type AnsiblePlaybookHandler struct {
	Runner subprocess.Runner
}

func (h AnsiblePlaybookHandler) Validate(data []byte) error {
	var d AnsiblePlaybookData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("ansible_playbook: invalid step data: %w", err)
	}
	if d.Playbook == "" {
		return fmt.Errorf("ansible_playbook: playbook is required")
	}
	return nil
}

// Snapshot is a no-op: playbooks declare their own rollback playbook rather
// than relying on captured host state.
func (h AnsiblePlaybookHandler) Snapshot(ctx context.Context, data []byte) ([]byte, error) {
	return []byte("{}"), nil
}

func (h AnsiblePlaybookHandler) Apply(ctx context.Context, data []byte) error {
	var d AnsiblePlaybookData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("ansible_playbook: decode step data: %w", err)
	}
	runID := uuid.New().String()
	log.Printf("ansible_playbook: run %s (correlation %s)", d.Playbook, runID)
	args := append([]string{d.Playbook}, varArgs(d.Vars)...)
	if _, err := h.Runner.Run(ctx, "ansible-playbook", args...); err != nil {
		return fmt.Errorf("ansible_playbook: run %s (correlation %s): %w", d.Playbook, runID, err)
	}
	return nil
}

func (h AnsiblePlaybookHandler) Compensate(ctx context.Context, data, snapshot []byte) error {
	var d AnsiblePlaybookData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("ansible_playbook: decode step data: %w", err)
	}
	if d.RollbackPlaybook == "" {
		return fmt.Errorf("ansible_playbook: no rollback_playbook declared, cannot compensate")
	}
	runID := uuid.New().String()
	log.Printf("ansible_playbook: run rollback playbook %s (correlation %s)", d.RollbackPlaybook, runID)
	args := append([]string{d.RollbackPlaybook}, varArgs(d.RollbackVars)...)
	if _, err := h.Runner.Run(ctx, "ansible-playbook", args...); err != nil {
		return fmt.Errorf("ansible_playbook: run rollback playbook %s (correlation %s): %w", d.RollbackPlaybook, runID, err)
	}
	return nil
}

func varArgs(vars map[string]string) []string {
	if len(vars) == 0 {
		return nil
	}
	data, err := json.Marshal(vars)
	if err != nil {
		return nil
	}
	return []string{"--extra-vars", string(data)}
}
