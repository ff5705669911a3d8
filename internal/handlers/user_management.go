package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"optiinfra/pkginstall/internal/subprocess"
)

// UserAction selects the user_management verb.
type UserAction string

const (
	UserCreate UserAction = "create"
	UserModify UserAction = "modify"
	UserRemove UserAction = "remove"
)

// UserManagementData is the step_data shape for a user_management step.
type UserManagementData struct {
	Action   UserAction `json:"action"`
	Username string     `json:"username"`
	Home     string     `json:"home"`
	Shell    string     `json:"shell"`
	Groups   []string   `json:"groups"`
	System   bool       `json:"system"`
}

// userRecord is the pre-image of one account, or an absence marker.
type userRecord struct {
	Absent bool     `json:"absent"`
	UID    string   `json:"uid,omitempty"`
	Home   string   `json:"home,omitempty"`
	Shell  string   `json:"shell,omitempty"`
	Groups []string `json:"groups,omitempty"`
}

// UserManagementHandler drives account state through useradd/usermod/userdel.
type UserManagementHandler struct {
	Runner subprocess.Runner
}

func (h UserManagementHandler) Validate(data []byte) error {
	var d UserManagementData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("user_management: invalid step data: %w", err)
	}
	if d.Username == "" {
		return fmt.Errorf("user_management: username is required")
	}
	switch d.Action {
	case UserCreate, UserModify, UserRemove:
	default:
		return fmt.Errorf("user_management: unknown action %q", d.Action)
	}
	return nil
}

func (h UserManagementHandler) Snapshot(ctx context.Context, data []byte) ([]byte, error) {
	var d UserManagementData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("user_management: decode step data: %w", err)
	}
	rec, err := h.lookupUser(ctx, d.Username)
	if err != nil {
		return nil, fmt.Errorf("user_management: lookup %s: %w", d.Username, err)
	}
	return json.Marshal(rec)
}

func (h UserManagementHandler) Apply(ctx context.Context, data []byte) error {
	var d UserManagementData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("user_management: decode step data: %w", err)
	}

	switch d.Action {
	case UserCreate:
		args := []string{}
		if d.Home != "" {
			args = append(args, "-d", d.Home, "-m")
		}
		if d.Shell != "" {
			args = append(args, "-s", d.Shell)
		}
		if len(d.Groups) > 0 {
			args = append(args, "-G", strings.Join(d.Groups, ","))
		}
		if d.System {
			args = append(args, "--system")
		}
		args = append(args, d.Username)
		if _, err := h.Runner.Run(ctx, "useradd", args...); err != nil {
			return fmt.Errorf("user_management: create %s: %w", d.Username, err)
		}
	case UserModify:
		args := []string{}
		if d.Home != "" {
			args = append(args, "-d", d.Home, "-m")
		}
		if d.Shell != "" {
			args = append(args, "-s", d.Shell)
		}
		if len(d.Groups) > 0 {
			args = append(args, "-G", strings.Join(d.Groups, ","))
		}
		args = append(args, d.Username)
		if _, err := h.Runner.Run(ctx, "usermod", args...); err != nil {
			return fmt.Errorf("user_management: modify %s: %w", d.Username, err)
		}
	case UserRemove:
		if _, err := h.Runner.Run(ctx, "userdel", "-r", d.Username); err != nil {
			return fmt.Errorf("user_management: remove %s: %w", d.Username, err)
		}
	default:
		return fmt.Errorf("user_management: unknown action %q", d.Action)
	}
	return nil
}

func (h UserManagementHandler) Compensate(ctx context.Context, data, snapshot []byte) error {
	var d UserManagementData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("user_management: decode step data: %w", err)
	}
	var rec userRecord
	if err := json.Unmarshal(snapshot, &rec); err != nil {
		return fmt.Errorf("user_management: decode snapshot: %w", err)
	}

	if rec.Absent {
		if _, err := h.Runner.Run(ctx, "userdel", "-r", d.Username); err != nil {
			return fmt.Errorf("user_management: compensate remove %s: %w", d.Username, err)
		}
		return nil
	}

	if d.Action == UserRemove {
		// apply ran userdel -r: the account is gone, so restoring the
		// captured pre-image means recreating it, not usermod'ing a
		// record that no longer exists.
		args := []string{}
		if rec.UID != "" {
			args = append(args, "-u", rec.UID)
		}
		if rec.Home != "" {
			args = append(args, "-d", rec.Home, "-m")
		}
		if rec.Shell != "" {
			args = append(args, "-s", rec.Shell)
		}
		if len(rec.Groups) > 0 {
			args = append(args, "-G", strings.Join(rec.Groups, ","))
		}
		args = append(args, d.Username)
		if _, err := h.Runner.Run(ctx, "useradd", args...); err != nil {
			return fmt.Errorf("user_management: compensate recreate %s: %w", d.Username, err)
		}
		return nil
	}

	args := []string{}
	if rec.Home != "" {
		args = append(args, "-d", rec.Home, "-m")
	}
	if rec.Shell != "" {
		args = append(args, "-s", rec.Shell)
	}
	if len(rec.Groups) > 0 {
		args = append(args, "-G", strings.Join(rec.Groups, ","))
	}
	args = append(args, d.Username)
	if _, err := h.Runner.Run(ctx, "usermod", args...); err != nil {
		return fmt.Errorf("user_management: compensate restore %s: %w", d.Username, err)
	}
	return nil
}

func (h UserManagementHandler) lookupUser(ctx context.Context, username string) (userRecord, error) {
	res, err := h.Runner.Run(ctx, "getent", "passwd", username)
	if err != nil {
		return userRecord{Absent: true}, nil
	}
	fields := strings.Split(strings.TrimSpace(res.Stdout), ":")
	if len(fields) < 7 {
		return userRecord{Absent: true}, nil
	}

	rec := userRecord{UID: fields[2], Home: fields[5], Shell: fields[6]}
	groupsRes, err := h.Runner.Run(ctx, "id", "-Gn", username)
	if err == nil {
		rec.Groups = strings.Fields(strings.TrimSpace(groupsRes.Stdout))
	}
	return rec, nil
}
