package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/YarShev/omniscidb/internal/server"
)

func TestDefaultSettings_Validate(t *testing.T) {
	if err := Validate(DefaultSettings()); err != nil {
		t.Fatalf("Validate(DefaultSettings) unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	s := DefaultSettings()
	s.IdleSessionMins = 0
	s.MaxSessionMins = -1
	s.NumGPUs = -2
	s.StartGPU = -1

	err := Validate(s)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "config validation failed") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_Precedence_DefaultsUserFileEnvFlags(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	// User config: 3
	userPath := filepath.Join(home, ".omniscidb", "config.toml")
	if err := WriteValue(userPath, "idle_session_mins", 3); err != nil {
		t.Fatalf("WriteValue user: %v", err)
	}

	// Explicit config file: 4
	explicitPath := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteValue(explicitPath, "idle_session_mins", 4); err != nil {
		t.Fatalf("WriteValue explicit: %v", err)
	}

	// Env: 5
	t.Setenv("OMNISCI_IDLE_SESSION_MINS", "5")

	// Flags: 6
	s, err := Load(LoadOptions{
		ConfigFile: explicitPath,
		FlagOverrides: map[string]any{
			"idle_session_mins": 6,
		},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.IdleSessionMins != 6 {
		t.Fatalf("idle_session_mins=%d want 6", s.IdleSessionMins)
	}
}

func TestLoad_UserConfigOnly(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	userPath := filepath.Join(home, ".omniscidb", "config.toml")
	if err := WriteValue(userPath, "read_only", true); err != nil {
		t.Fatalf("WriteValue: %v", err)
	}

	s, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s.ReadOnly {
		t.Fatalf("read_only not picked up from user config")
	}
}

func TestLoad_InvalidEnvValueErrors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OMNISCI_IDLE_SESSION_MINS", "not-an-int")
	if _, err := Load(LoadOptions{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMergeConfigFile(t *testing.T) {
	v := newBaseViper()

	// Empty path is a no-op.
	if err := mergeConfigFile(v, ""); err != nil {
		t.Fatalf("mergeConfigFile(empty): %v", err)
	}

	// Missing file is a no-op.
	if err := mergeConfigFile(v, filepath.Join(t.TempDir(), "missing.toml")); err != nil {
		t.Fatalf("mergeConfigFile(missing): %v", err)
	}

	// Directory path is an error.
	if err := mergeConfigFile(v, t.TempDir()); err == nil {
		t.Fatalf("expected error for directory path")
	}

	// Invalid TOML is an error.
	bad := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(bad, []byte("not = [valid"), 0o644); err != nil {
		t.Fatalf("writing bad toml: %v", err)
	}
	if err := mergeConfigFile(v, bad); err == nil {
		t.Fatalf("expected error for invalid toml")
	}
}

func TestWriteValue_MergesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := WriteValue(path, "read_only", true); err != nil {
		t.Fatalf("WriteValue: %v", err)
	}
	if err := WriteValue(path, "idle_session_mins", 7); err != nil {
		t.Fatalf("WriteValue second key: %v", err)
	}

	t.Setenv("HOME", t.TempDir())
	s, err := Load(LoadOptions{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s.ReadOnly || s.IdleSessionMins != 7 {
		t.Fatalf("merged values lost: read_only=%v idle=%d", s.ReadOnly, s.IdleSessionMins)
	}
}

func TestBuild(t *testing.T) {
	s := DefaultSettings()
	s.StoragePath = "/var/lib/omniscidb"
	s.ReadOnly = true
	s.IdleSessionMins = 2

	cfg, err := Build(s)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cfg.StoragePath != "/var/lib/omniscidb" {
		t.Errorf("storage path = %q", cfg.StoragePath)
	}
	if !cfg.ReadOnly {
		t.Errorf("read_only lost in Build")
	}
	if cfg.IdleSessionDuration != 2*time.Minute {
		t.Errorf("idle duration = %v, want 2m", cfg.IdleSessionDuration)
	}
}

func TestBuild_WithClusterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.json")
	data := `[
		{"host": "leaf1", "port": 16274, "role": "leaf"},
		{"host": "leaf2", "port": 16274, "role": "dbleaf"},
		{"host": "dict1", "port": 10301, "role": "string"}
	]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("writing cluster file: %v", err)
	}

	s := DefaultSettings()
	s.ClusterFile = path
	cfg, err := Build(s)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(cfg.LeafServers) != 2 {
		t.Fatalf("leaf servers = %d, want 2", len(cfg.LeafServers))
	}
	if len(cfg.StringLeafServers) != 1 {
		t.Fatalf("string leaf servers = %d, want 1", len(cfg.StringLeafServers))
	}
	want := server.LeafHostInfo{Host: "leaf1", Port: 16274}
	if cfg.LeafServers[0] != want {
		t.Errorf("first leaf = %+v, want %+v", cfg.LeafServers[0], want)
	}
}
