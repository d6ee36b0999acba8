// pkg/config/config_test.go
package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vmkern.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad_MergesDefaults(t *testing.T) {
	path := writeConfig(t, `{"frames": 6, "swap_path": "/tmp/vm.swap", "log_level": "debug"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	def := Default()
	if cfg.Frames != 6 || cfg.SwapPath != "/tmp/vm.swap" || cfg.LogLevel != "debug" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.PageSize != def.PageSize || cfg.StackPages != def.StackPages {
		t.Errorf("defaults not kept: %+v", cfg)
	}

	opts := cfg.VMOptions(nil, nil)
	if opts.Frames != 6 || opts.SwapPath != "/tmp/vm.swap" || opts.Observer != nil || opts.MaxPages != def.MaxPages {
		t.Errorf("VMOptions mismatch: %+v", opts)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		invalid bool
	}{
		{"syntax", `{"frames": `, false},
		{"unknown key", `{"frame": 4}`, false},
		{"page size", `{"page_size": 1000}`, true},
		{"negative frames", `{"frames": -2}`, true},
		{"stack", `{"stack_pages": -1}`, true},
		{"max pages", `{"max_pages": -1}`, true},
		{"level", `{"log_level": "chatty"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected an error")
			}
			if errors.Is(err, ErrInvalidConfig) != tt.invalid {
				t.Errorf("ErrInvalidConfig match = %v, want %v (%v)", !tt.invalid, tt.invalid, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
