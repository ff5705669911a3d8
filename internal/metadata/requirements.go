package metadata

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"
)

// CheckRequirements verifies the document's Requirements block against the
// running host, per spec.md §6 ("checked before begin"). Any violation is
// returned as a single joined error so the operator sees every mismatch at
// once rather than one at a time across retries.
func CheckRequirements(req Requirements, dataDir string) error {
	var problems []string

	if len(req.Architectures) > 0 && !contains(req.Architectures, runtime.GOARCH) {
		problems = append(problems, fmt.Sprintf("host architecture %q not in required set %v", runtime.GOARCH, req.Architectures))
	}

	if req.MinMemoryMB > 0 {
		availMB, err := availableMemoryMB()
		if err != nil {
			problems = append(problems, fmt.Sprintf("could not determine available memory: %v", err))
		} else if availMB < req.MinMemoryMB {
			problems = append(problems, fmt.Sprintf("available memory %dMB below required %dMB", availMB, req.MinMemoryMB))
		}
	}

	if req.MinDiskSpaceMB > 0 {
		availMB, err := availableDiskMB(dataDir)
		if err != nil {
			problems = append(problems, fmt.Sprintf("could not determine available disk space: %v", err))
		} else if availMB < req.MinDiskSpaceMB {
			problems = append(problems, fmt.Sprintf("available disk space %dMB below required %dMB", availMB, req.MinDiskSpaceMB))
		}
	}

	if req.OSVersion != "" {
		version, err := osVersion()
		if err != nil {
			problems = append(problems, fmt.Sprintf("could not determine OS version: %v", err))
		} else if version != req.OSVersion {
			problems = append(problems, fmt.Sprintf("OS version %q does not match required %q", version, req.OSVersion))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("requirements not met: %s", strings.Join(problems, "; "))
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func availableDiskMB(path string) (int64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize) / (1024 * 1024), nil
}

func availableMemoryMB() (int64, error) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb / 1024, nil
	}
	return 0, fmt.Errorf("MemAvailable not found in /proc/meminfo")
}

func osVersion() (string, error) {
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "VERSION_ID=") {
			continue
		}
		return strings.Trim(strings.TrimPrefix(line, "VERSION_ID="), `"`), nil
	}
	return "", fmt.Errorf("VERSION_ID not found in /etc/os-release")
}
