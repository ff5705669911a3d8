package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.DataDir == "" {
		t.Fatalf("expected a non-empty default data dir")
	}
	if cfg.BlobDir == "" {
		t.Fatalf("expected blob dir to derive from data dir when unset")
	}
}

func TestLoadHonorsEnvOverride(t *testing.T) {
	os.Setenv("PKGINSTALL_LOG_LEVEL", "debug")
	defer os.Unsetenv("PKGINSTALL_LOG_LEVEL")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected env override to win, got %s", cfg.LogLevel)
	}
}
