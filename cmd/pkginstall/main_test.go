package main

import (
	"path/filepath"
	"testing"
)

func TestRootCommandRegistersEveryVerb(t *testing.T) {
	root := newRootCmd()

	want := []string{"install", "rollback", "list", "status", "cleanup", "validate", "create-template", "serve"}
	got := map[string]bool{}
	for _, c := range root.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("expected root command to register %q", name)
		}
	}
}

func TestCreateTemplateThenValidateRoundTrip(t *testing.T) {
	root := newRootCmd()
	dataDir := t.TempDir()
	out := filepath.Join(t.TempDir(), "nginx.yaml")

	root.SetArgs([]string{"create-template", "nginx", "1.0.0", "--out", out})
	if err := root.Execute(); err != nil {
		t.Fatalf("create-template: %v", err)
	}

	root2 := newRootCmd()
	root2.SetArgs([]string{"--data-dir", dataDir, "validate", out})
	if err := root2.Execute(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
