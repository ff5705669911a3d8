package handlers

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestFileCopyApplyAndCompensateWhenDestWasAbsent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dest := filepath.Join(dir, "sub", "dest.txt")
	if err := os.WriteFile(src, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	h := FileCopyHandler{BlobDir: filepath.Join(dir, "blobs")}
	data, _ := json.Marshal(FileCopyData{Src: src, Dest: dest, Mode: "0640"})

	snap, err := h.Snapshot(context.Background(), data)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if err := h.Apply(context.Background(), data); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil || string(got) != "hello" {
		t.Fatalf("dest content = %q, %v", got, err)
	}

	if err := h.Compensate(context.Background(), data, snap); err != nil {
		t.Fatalf("Compensate: %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("expected dest removed after compensate, err=%v", err)
	}
}

func TestFileCopyCompensateRestoresPriorContent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dest := filepath.Join(dir, "dest.txt")
	if err := os.WriteFile(src, []byte("new content"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	if err := os.WriteFile(dest, []byte("original content"), 0o644); err != nil {
		t.Fatalf("write dest: %v", err)
	}

	h := FileCopyHandler{BlobDir: filepath.Join(dir, "blobs")}
	data, _ := json.Marshal(FileCopyData{Src: src, Dest: dest})

	snap, err := h.Snapshot(context.Background(), data)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := h.Apply(context.Background(), data); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := h.Compensate(context.Background(), data, snap); err != nil {
		t.Fatalf("Compensate: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil || string(got) != "original content" {
		t.Fatalf("dest content after compensate = %q, %v", got, err)
	}
}

func TestFileCopyValidateRejectsMissingFields(t *testing.T) {
	h := FileCopyHandler{}
	if err := h.Validate([]byte(`{"dest":"/tmp/x"}`)); err == nil {
		t.Fatalf("expected error for missing src")
	}
	if err := h.Validate([]byte(`{"src":"/tmp/a","dest":"/tmp/b","mode":"nope"}`)); err == nil {
		t.Fatalf("expected error for invalid mode")
	}
}

func TestFileCopySnapshotAboveInlineCapUsesBlob(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "big.bin")
	big := make([]byte, 64)
	if err := os.WriteFile(dest, big, 0o644); err != nil {
		t.Fatalf("write dest: %v", err)
	}

	h := FileCopyHandler{BlobDir: filepath.Join(dir, "blobs"), InlineCap: 8}
	data, _ := json.Marshal(FileCopyData{Src: dest, Dest: dest})

	raw, err := h.Snapshot(context.Background(), data)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	var snap fileSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.BlobSHA256 == "" {
		t.Fatalf("expected blob-addressed snapshot above inline cap")
	}
	if _, err := os.Stat(filepath.Join(h.BlobDir, snap.BlobSHA256)); err != nil {
		t.Fatalf("expected blob file written: %v", err)
	}
}
