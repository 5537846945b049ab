package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Client.IdleTimeout != 60*time.Second {
		t.Errorf("expected idle timeout 60s, got %s", cfg.Client.IdleTimeout)
	}
	if cfg.Client.RetryLimit != 2 {
		t.Errorf("expected retry limit 2, got %d", cfg.Client.RetryLimit)
	}
	if cfg.Client.RetryDelay != 500*time.Millisecond {
		t.Errorf("expected retry delay 500ms, got %s", cfg.Client.RetryDelay)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Engineering.ShowNerdStats {
		t.Error("expected ShowNerdStats to be false by default")
	}
}

func TestLoadConfig_WithoutFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("expected no error loading without a config file, got %v", err)
	}
	if cfg.Client.RetryLimit != 2 {
		t.Errorf("expected default retry limit to survive, got %d", cfg.Client.RetryLimit)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	os.Setenv("THOR_LOGGING_LEVEL", "debug")
	defer os.Unsetenv("THOR_LOGGING_LEVEL")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected env override 'debug', got %s", cfg.Logging.Level)
	}
}
