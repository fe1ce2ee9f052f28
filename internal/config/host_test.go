package config

import (
	"os"
	"testing"
)

func TestLoadHostConfigDefaults(t *testing.T) {
	cfg, err := LoadHostConfig("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Default log level mismatch: got %s, want info", cfg.LogLevel)
	}

	if len(cfg.ExtensionPaths) != 1 || cfg.ExtensionPaths[0] != "./extensions" {
		t.Errorf("Default extension paths mismatch: got %v, want [./extensions]", cfg.ExtensionPaths)
	}

	if cfg.Wasm.MemoryPages != 512 {
		t.Errorf("Default memory pages mismatch: got %d, want 512", cfg.Wasm.MemoryPages)
	}

	if cfg.HTTP.TimeoutSeconds != 0 {
		t.Errorf("Default HTTP timeout mismatch: got %d, want 0", cfg.HTTP.TimeoutSeconds)
	}
}

func TestLoadHostConfigFromFile(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "config*.json")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	configContent := `{
  "log_level": "debug",
  "settings_dir": "/tmp/source-settings",
  "wasm": {"memory_pages": 1024}
}`
	if _, err := tmpfile.Write([]byte(configContent)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadHostConfig(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("Log level mismatch: got %s, want debug", cfg.LogLevel)
	}

	if cfg.SettingsDir != "/tmp/source-settings" {
		t.Errorf("Settings dir mismatch: got %s, want /tmp/source-settings", cfg.SettingsDir)
	}

	if cfg.Wasm.MemoryPages != 1024 {
		t.Errorf("Memory pages mismatch: got %d, want 1024", cfg.Wasm.MemoryPages)
	}
}

func TestLoadHostConfigMissingFile(t *testing.T) {
	if _, err := LoadHostConfig("/nonexistent/config.json"); err == nil {
		t.Fatal("Expected error for missing config file")
	}
}
