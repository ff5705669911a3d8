package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// defaultInlineCap is the snapshot inlining threshold from SPEC_FULL.md's
// resolution of Open Question (c): below this, file bytes live directly in
// the snapshot blob; at or above it, the snapshot stores a content hash and
// the bytes are copied to a blob file under the data directory.
const defaultInlineCap = 8 * 1024 * 1024

// FileCopyData is the step_data shape for a file_copy step.
type FileCopyData struct {
	Src   string `json:"src"`
	Dest  string `json:"dest"`
	Owner string `json:"owner"`
	Group string `json:"group"`
	Mode  string `json:"mode"` // octal string, e.g. "0644"
}

// fileSnapshot is the pre-image of the destination path before apply: its
// prior content and mode. Owner and Group hold the step's declared values,
// not the destination's prior ownership.
type fileSnapshot struct {
	Absent    bool   `json:"absent"`
	Inline    []byte `json:"inline,omitempty"`
	BlobSHA256 string `json:"blob_sha256,omitempty"`
	Owner     string `json:"owner,omitempty"`
	Group     string `json:"group,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

// FileCopyHandler copies a source file to a destination with the declared
// mode, snapshotting the destination's prior content and mode for undo.
// The declared Owner and Group are not applied: Apply leaves the file owned
// by the running process, and Compensate does not restore ownership.
type FileCopyHandler struct {
	// BlobDir is the directory large pre-images are copied into, addressed
	// by content hash (<BlobDir>/<sha256>). Required when any snapshotted
	// file can exceed InlineCap.
	BlobDir string
	// InlineCap bounds inline snapshot size; 0 means defaultInlineCap.
	InlineCap int64
}

func (h FileCopyHandler) inlineCap() int64 {
	if h.InlineCap <= 0 {
		return defaultInlineCap
	}
	return h.InlineCap
}

func (h FileCopyHandler) Validate(data []byte) error {
	var d FileCopyData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("file_copy: invalid step data: %w", err)
	}
	if d.Src == "" || d.Dest == "" {
		return fmt.Errorf("file_copy: src and dest are required")
	}
	if d.Mode != "" {
		if _, err := strconv.ParseUint(d.Mode, 8, 32); err != nil {
			return fmt.Errorf("file_copy: mode %q is not valid octal: %w", d.Mode, err)
		}
	}
	return nil
}

func (h FileCopyHandler) Snapshot(ctx context.Context, data []byte) ([]byte, error) {
	var d FileCopyData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("file_copy: decode step data: %w", err)
	}

	info, err := os.Lstat(d.Dest)
	if os.IsNotExist(err) {
		return json.Marshal(fileSnapshot{Absent: true})
	}
	if err != nil {
		return nil, fmt.Errorf("file_copy: stat %s: %w", d.Dest, err)
	}

	contents, err := os.ReadFile(d.Dest)
	if err != nil {
		return nil, fmt.Errorf("file_copy: read %s: %w", d.Dest, err)
	}

	snap := fileSnapshot{
		Owner: d.Owner,
		Group: d.Group,
		Mode:  fmt.Sprintf("%04o", info.Mode().Perm()),
	}

	if int64(len(contents)) < h.inlineCap() {
		snap.Inline = contents
		return json.Marshal(snap)
	}

	sum := sha256.Sum256(contents)
	hash := hex.EncodeToString(sum[:])
	if err := h.writeBlob(hash, contents); err != nil {
		return nil, fmt.Errorf("file_copy: store blob for %s: %w", d.Dest, err)
	}
	snap.BlobSHA256 = hash
	return json.Marshal(snap)
}

func (h FileCopyHandler) Apply(ctx context.Context, data []byte) error {
	var d FileCopyData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("file_copy: decode step data: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(d.Dest), 0o755); err != nil {
		return fmt.Errorf("file_copy: create parent dirs for %s: %w", d.Dest, err)
	}

	src, err := os.Open(d.Src)
	if err != nil {
		return fmt.Errorf("file_copy: open src %s: %w", d.Src, err)
	}
	defer src.Close()

	mode := os.FileMode(0o644)
	if d.Mode != "" {
		parsed, _ := strconv.ParseUint(d.Mode, 8, 32)
		mode = os.FileMode(parsed)
	}

	dest, err := os.OpenFile(d.Dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("file_copy: open dest %s: %w", d.Dest, err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		return fmt.Errorf("file_copy: copy %s -> %s: %w", d.Src, d.Dest, err)
	}
	return os.Chmod(d.Dest, mode)
}

func (h FileCopyHandler) Compensate(ctx context.Context, data, snapshot []byte) error {
	var d FileCopyData
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("file_copy: decode step data: %w", err)
	}
	var snap fileSnapshot
	if err := json.Unmarshal(snapshot, &snap); err != nil {
		return fmt.Errorf("file_copy: decode snapshot: %w", err)
	}

	if snap.Absent {
		if err := os.Remove(d.Dest); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("file_copy: compensate remove %s: %w", d.Dest, err)
		}
		return nil
	}

	contents := snap.Inline
	if snap.BlobSHA256 != "" {
		blob, err := h.readBlob(snap.BlobSHA256)
		if err != nil {
			return fmt.Errorf("file_copy: read blob for %s: %w", d.Dest, err)
		}
		contents = blob
	}

	mode := os.FileMode(0o644)
	if snap.Mode != "" {
		parsed, _ := strconv.ParseUint(snap.Mode, 8, 32)
		mode = os.FileMode(parsed)
	}

	if err := os.MkdirAll(filepath.Dir(d.Dest), 0o755); err != nil {
		return fmt.Errorf("file_copy: compensate create parent dirs for %s: %w", d.Dest, err)
	}
	if err := os.WriteFile(d.Dest, contents, mode); err != nil {
		return fmt.Errorf("file_copy: compensate restore %s: %w", d.Dest, err)
	}
	if err := os.Chmod(d.Dest, mode); err != nil {
		return fmt.Errorf("file_copy: compensate restore mode of %s: %w", d.Dest, err)
	}
	return nil
}

func (h FileCopyHandler) writeBlob(hash string, contents []byte) error {
	if h.BlobDir == "" {
		return fmt.Errorf("no blob directory configured for file larger than inline cap")
	}
	if err := os.MkdirAll(h.BlobDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(h.BlobDir, hash)
	if _, err := os.Stat(path); err == nil {
		return nil // content-addressed: already stored
	}
	return os.WriteFile(path, contents, 0o600)
}

func (h FileCopyHandler) readBlob(hash string) ([]byte, error) {
	if h.BlobDir == "" {
		return nil, fmt.Errorf("no blob directory configured")
	}
	return os.ReadFile(filepath.Join(h.BlobDir, hash))
}
