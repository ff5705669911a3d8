// Package handlers implements the registry.Handler quadruple for each step
// type named in spec.md §4.3: apt_package, file_copy, systemd_service,
// user_management, custom_script, ansible_playbook.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"optiinfra/pkginstall/internal/subprocess"
)

// AptAction selects the apt-get verb an apt_package step performs.
type AptAction string

const (
	AptInstall AptAction = "install"
	AptRemove  AptAction = "remove"
	AptUpdate  AptAction = "update"
)

// AptPackageData is the step_data shape for an apt_package step.
type AptPackageData struct {
	Action       AptAction `json:"action"`
	Packages     []string  `json:"packages"`
	RefreshCache bool      `json:"refresh_cache"`
}

// aptSnapshot records which of the named packages were already installed
// and at what version, so compensate can restore exactly that set.
type aptSnapshot struct {
	Installed map[string]string `json:"installed"` // package -> version, absent keys mean "was not installed"
}

// AptPackageHandler drives package installs through apt-get / dpkg-query.
type AptPackageHandler struct {
	Runner subprocess.Runner
}

func (h AptPackageHandler) Validate(data []byte) error {
	var d AptPackageData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("apt_package: invalid step data: %w", err)
	}
	switch d.Action {
	case AptInstall, AptRemove, AptUpdate:
	default:
		return fmt.Errorf("apt_package: unknown action %q", d.Action)
	}
	if d.Action != AptUpdate && len(d.Packages) == 0 {
		return fmt.Errorf("apt_package: packages must be non-empty for action %q", d.Action)
	}
	return nil
}

func (h AptPackageHandler) Snapshot(ctx context.Context, data []byte) ([]byte, error) {
	var d AptPackageData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("apt_package: decode step data: %w", err)
	}

	snap := aptSnapshot{Installed: make(map[string]string)}
	for _, pkg := range d.Packages {
		version, installed, err := h.queryInstalledVersion(ctx, pkg)
		if err != nil {
			return nil, fmt.Errorf("apt_package: query %s: %w", pkg, err)
		}
		if installed {
			snap.Installed[pkg] = version
		}
	}
	return json.Marshal(snap)
}

func (h AptPackageHandler) Apply(ctx context.Context, data []byte) error {
	var d AptPackageData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("apt_package: decode step data: %w", err)
	}

	if d.RefreshCache {
		if _, err := h.Runner.Run(ctx, "apt-get", "update"); err != nil {
			return fmt.Errorf("apt_package: refresh cache: %w", err)
		}
	}

	switch d.Action {
	case AptUpdate:
		args := append([]string{"-y", "install", "--only-upgrade"}, d.Packages...)
		if _, err := h.Runner.Run(ctx, "apt-get", args...); err != nil {
			return fmt.Errorf("apt_package: upgrade: %w", err)
		}
	case AptInstall:
		args := append([]string{"-y", "install"}, d.Packages...)
		if _, err := h.Runner.Run(ctx, "apt-get", args...); err != nil {
			return fmt.Errorf("apt_package: install: %w", err)
		}
	case AptRemove:
		args := append([]string{"-y", "remove"}, d.Packages...)
		if _, err := h.Runner.Run(ctx, "apt-get", args...); err != nil {
			return fmt.Errorf("apt_package: remove: %w", err)
		}
	default:
		return fmt.Errorf("apt_package: unknown action %q", d.Action)
	}
	return nil
}

func (h AptPackageHandler) Compensate(ctx context.Context, data, snapshot []byte) error {
	var d AptPackageData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("apt_package: decode step data: %w", err)
	}
	var snap aptSnapshot
	if err := json.Unmarshal(snapshot, &snap); err != nil {
		return fmt.Errorf("apt_package: decode snapshot: %w", err)
	}

	var toInstall, toRemove []string
	for _, pkg := range d.Packages {
		if version, wasInstalled := snap.Installed[pkg]; wasInstalled {
			toInstall = append(toInstall, pinVersion(pkg, version))
		} else {
			toRemove = append(toRemove, pkg)
		}
	}
	sort.Strings(toInstall)
	sort.Strings(toRemove)

	if len(toRemove) > 0 {
		args := append([]string{"-y", "remove"}, toRemove...)
		if _, err := h.Runner.Run(ctx, "apt-get", args...); err != nil {
			return fmt.Errorf("apt_package: compensate remove: %w", err)
		}
	}
	if len(toInstall) > 0 {
		args := append([]string{"-y", "install"}, toInstall...)
		if _, err := h.Runner.Run(ctx, "apt-get", args...); err != nil {
			return fmt.Errorf("apt_package: compensate reinstall: %w", err)
		}
	}
	return nil
}

// queryInstalledVersion asks dpkg-query for the installed version of a
// package, reporting not-installed rather than erroring when absent.
func (h AptPackageHandler) queryInstalledVersion(ctx context.Context, pkg string) (version string, installed bool, err error) {
	res, runErr := h.Runner.Run(ctx, "dpkg-query", "-W", "-f=${Status} ${Version}", pkg)
	if runErr != nil {
		// dpkg-query exits non-zero for unknown packages; treat as absent.
		return "", false, nil
	}
	out := strings.TrimSpace(res.Stdout)
	if !strings.Contains(out, "install ok installed") {
		return "", false, nil
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", true, nil
	}
	return fields[len(fields)-1], true, nil
}

func pinVersion(pkg, version string) string {
	if version == "" {
		return pkg
	}
	var b bytes.Buffer
	b.WriteString(pkg)
	b.WriteByte('=')
	b.WriteString(version)
	return b.String()
}
