package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"optiinfra/pkginstall/internal/subprocess"
)

// SystemdAction is the verb a systemd_service step applies to its unit.
type SystemdAction string

const (
	SystemdEnable  SystemdAction = "enable"
	SystemdDisable SystemdAction = "disable"
	SystemdStart   SystemdAction = "start"
	SystemdStop    SystemdAction = "stop"
	SystemdRestart SystemdAction = "restart"
)

// SystemdServiceData is the step_data shape for a systemd_service step.
type SystemdServiceData struct {
	Unit   string        `json:"unit"`
	Action SystemdAction `json:"action"`
}

type systemdSnapshot struct {
	Enabled bool `json:"enabled"`
	Active  bool `json:"active"`
}

// SystemdServiceHandler drives unit state through systemctl.
type SystemdServiceHandler struct {
	Runner subprocess.Runner
}

func (h SystemdServiceHandler) Validate(data []byte) error {
	var d SystemdServiceData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("systemd_service: invalid step data: %w", err)
	}
	if d.Unit == "" {
		return fmt.Errorf("systemd_service: unit is required")
	}
	switch d.Action {
	case SystemdEnable, SystemdDisable, SystemdStart, SystemdStop, SystemdRestart:
	default:
		return fmt.Errorf("systemd_service: unknown action %q", d.Action)
	}
	return nil
}

func (h SystemdServiceHandler) Snapshot(ctx context.Context, data []byte) ([]byte, error) {
	var d SystemdServiceData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("systemd_service: decode step data: %w", err)
	}

	enabled, _ := h.isEnabled(ctx, d.Unit)
	active, _ := h.isActive(ctx, d.Unit)
	return json.Marshal(systemdSnapshot{Enabled: enabled, Active: active})
}

func (h SystemdServiceHandler) Apply(ctx context.Context, data []byte) error {
	var d SystemdServiceData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("systemd_service: decode step data: %w", err)
	}
	if _, err := h.Runner.Run(ctx, "systemctl", string(d.Action), d.Unit); err != nil {
		return fmt.Errorf("systemd_service: %s %s: %w", d.Action, d.Unit, err)
	}
	return nil
}

func (h SystemdServiceHandler) Compensate(ctx context.Context, data, snapshot []byte) error {
	var d SystemdServiceData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("systemd_service: decode step data: %w", err)
	}
	var snap systemdSnapshot
	if err := json.Unmarshal(snapshot, &snap); err != nil {
		return fmt.Errorf("systemd_service: decode snapshot: %w", err)
	}

	enableAction := SystemdDisable
	if snap.Enabled {
		enableAction = SystemdEnable
	}
	if _, err := h.Runner.Run(ctx, "systemctl", string(enableAction), d.Unit); err != nil {
		return fmt.Errorf("systemd_service: compensate %s %s: %w", enableAction, d.Unit, err)
	}

	activeAction := SystemdStop
	if snap.Active {
		activeAction = SystemdStart
	}
	if _, err := h.Runner.Run(ctx, "systemctl", string(activeAction), d.Unit); err != nil {
		return fmt.Errorf("systemd_service: compensate %s %s: %w", activeAction, d.Unit, err)
	}
	return nil
}

func (h SystemdServiceHandler) isEnabled(ctx context.Context, unit string) (bool, error) {
	res, err := h.Runner.Run(ctx, "systemctl", "is-enabled", unit)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(res.Stdout) == "enabled", nil
}

func (h SystemdServiceHandler) isActive(ctx context.Context, unit string) (bool, error) {
	res, err := h.Runner.Run(ctx, "systemctl", "is-active", unit)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(res.Stdout) == "active", nil
}
