// Package config loads server settings from defaults, TOML config files,
// OMNISCI_* environment variables, and flag overrides, in that order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/YarShev/omniscidb/internal/server"
)

// Settings is the on-disk shape of the server configuration. Durations are
// minutes in the file; Build converts them.
type Settings struct {
	ListenAddr                  string `mapstructure:"listen_addr"`
	StoragePath                 string `mapstructure:"storage_path"`
	CPUOnly                     bool   `mapstructure:"cpu_only"`
	AllowMultifrag              bool   `mapstructure:"allow_multifrag"`
	ReadOnly                    bool   `mapstructure:"read_only"`
	AllowLoopJoins              bool   `mapstructure:"allow_loop_joins"`
	EnableRendering             bool   `mapstructure:"enable_rendering"`
	RenderMemBytes              uint64 `mapstructure:"render_mem_bytes"`
	MaxConcurrentRenderSessions uint64 `mapstructure:"max_concurrent_render_sessions"`
	NumGPUs                     int    `mapstructure:"num_gpus"`
	StartGPU                    int    `mapstructure:"start_gpu"`
	ReservedGPUMem              uint64 `mapstructure:"reserved_gpu_mem"`
	NumReaderThreads            uint64 `mapstructure:"num_reader_threads"`
	LegacySyntax                bool   `mapstructure:"legacy_syntax"`
	IdleSessionMins             int    `mapstructure:"idle_session_mins"`
	MaxSessionMins              int    `mapstructure:"max_session_mins"`
	EnableRuntimeUDF            bool   `mapstructure:"enable_runtime_udf"`
	ClusterFile                 string `mapstructure:"cluster_file"`
}

// DefaultSettings mirrors server.DefaultConfig in file form.
func DefaultSettings() Settings {
	base := server.DefaultConfig()
	return Settings{
		ListenAddr:                  "localhost:6274",
		CPUOnly:                     base.CPUOnly,
		AllowMultifrag:              base.AllowMultifrag,
		ReadOnly:                    base.ReadOnly,
		AllowLoopJoins:              base.AllowLoopJoins,
		EnableRendering:             base.EnableRendering,
		RenderMemBytes:              base.RenderMemBytes,
		MaxConcurrentRenderSessions: base.MaxConcurrentRenderSessions,
		NumGPUs:                     base.NumGPUs,
		StartGPU:                    base.StartGPU,
		ReservedGPUMem:              base.ReservedGPUMem,
		NumReaderThreads:            base.NumReaderThreads,
		LegacySyntax:                base.LegacySyntax,
		IdleSessionMins:             int(base.IdleSessionDuration / time.Minute),
		MaxSessionMins:              int(base.MaxSessionDuration / time.Minute),
		EnableRuntimeUDF:            base.EnableRuntimeUDF,
	}
}

// LoadOptions controls where Load looks for configuration.
type LoadOptions struct {
	// ConfigFile is an explicit config file path; merged after the user
	// config when set.
	ConfigFile string
	// FlagOverrides take precedence over everything else. Keys use the
	// file key names (e.g. "read_only").
	FlagOverrides map[string]any
}

// envKeys lists the settings that may be overridden via OMNISCI_<KEY>.
var envKeys = []string{
	"listen_addr", "storage_path", "cpu_only", "allow_multifrag", "read_only",
	"allow_loop_joins", "enable_rendering", "render_mem_bytes",
	"max_concurrent_render_sessions", "num_gpus", "start_gpu",
	"reserved_gpu_mem", "num_reader_threads", "legacy_syntax",
	"idle_session_mins", "max_session_mins", "enable_runtime_udf",
	"cluster_file",
}

// Load builds Settings with precedence: defaults < user config
// (~/.omniscidb/config.toml) < explicit config file < environment < flags.
func Load(opts LoadOptions) (Settings, error) {
	v := newBaseViper()

	userPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		userPath = filepath.Join(home, ".omniscidb", "config.toml")
	}
	if err := mergeConfigFile(v, userPath); err != nil {
		return Settings{}, err
	}
	if err := mergeConfigFile(v, opts.ConfigFile); err != nil {
		return Settings{}, err
	}

	for _, key := range envKeys {
		env := "OMNISCI_" + strings.ToUpper(key)
		if err := v.BindEnv(key, env); err != nil {
			return Settings{}, fmt.Errorf("binding env %s: %w", env, err)
		}
	}

	for key, val := range opts.FlagOverrides {
		v.Set(key, val)
	}

	var s Settings
	if err := v.UnmarshalExact(&s); err != nil {
		return Settings{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := Validate(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// newBaseViper returns a viper instance seeded with defaults.
func newBaseViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")

	defaults := DefaultSettings()
	v.SetDefault("listen_addr", defaults.ListenAddr)
	v.SetDefault("storage_path", defaults.StoragePath)
	v.SetDefault("cpu_only", defaults.CPUOnly)
	v.SetDefault("allow_multifrag", defaults.AllowMultifrag)
	v.SetDefault("read_only", defaults.ReadOnly)
	v.SetDefault("allow_loop_joins", defaults.AllowLoopJoins)
	v.SetDefault("enable_rendering", defaults.EnableRendering)
	v.SetDefault("render_mem_bytes", defaults.RenderMemBytes)
	v.SetDefault("max_concurrent_render_sessions", defaults.MaxConcurrentRenderSessions)
	v.SetDefault("num_gpus", defaults.NumGPUs)
	v.SetDefault("start_gpu", defaults.StartGPU)
	v.SetDefault("reserved_gpu_mem", defaults.ReservedGPUMem)
	v.SetDefault("num_reader_threads", defaults.NumReaderThreads)
	v.SetDefault("legacy_syntax", defaults.LegacySyntax)
	v.SetDefault("idle_session_mins", defaults.IdleSessionMins)
	v.SetDefault("max_session_mins", defaults.MaxSessionMins)
	v.SetDefault("enable_runtime_udf", defaults.EnableRuntimeUDF)
	v.SetDefault("cluster_file", defaults.ClusterFile)
	return v
}

// mergeConfigFile merges a TOML file into v. Empty paths and missing files
// are no-ops; unreadable or invalid files are errors.
func mergeConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}

	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func Validate(s Settings) error {
	var problems []string
	if s.IdleSessionMins <= 0 {
		problems = append(problems, "idle_session_mins must be positive")
	}
	if s.MaxSessionMins <= 0 {
		problems = append(problems, "max_session_mins must be positive")
	}
	if s.NumGPUs < -1 {
		problems = append(problems, "num_gpus must be -1 or greater")
	}
	if s.StartGPU < 0 {
		problems = append(problems, "start_gpu must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Build converts Settings into the server's construction Config, attaching
// any cluster topology loaded from ClusterFile.
func Build(s Settings) (server.Config, error) {
	cfg := server.DefaultConfig()
	cfg.StoragePath = s.StoragePath
	cfg.CPUOnly = s.CPUOnly
	cfg.AllowMultifrag = s.AllowMultifrag
	cfg.ReadOnly = s.ReadOnly
	cfg.AllowLoopJoins = s.AllowLoopJoins
	cfg.EnableRendering = s.EnableRendering
	cfg.RenderMemBytes = s.RenderMemBytes
	cfg.MaxConcurrentRenderSessions = s.MaxConcurrentRenderSessions
	cfg.NumGPUs = s.NumGPUs
	cfg.StartGPU = s.StartGPU
	cfg.ReservedGPUMem = s.ReservedGPUMem
	cfg.NumReaderThreads = s.NumReaderThreads
	cfg.LegacySyntax = s.LegacySyntax
	cfg.IdleSessionDuration = time.Duration(s.IdleSessionMins) * time.Minute
	cfg.MaxSessionDuration = time.Duration(s.MaxSessionMins) * time.Minute
	cfg.EnableRuntimeUDF = s.EnableRuntimeUDF

	if s.ClusterFile != "" {
		topo, err := LoadCluster(s.ClusterFile)
		if err != nil {
			return server.Config{}, err
		}
		cfg.LeafServers = topo.LeafServers
		cfg.StringLeafServers = topo.StringLeafServers
	}
	return cfg, nil
}

// WriteValue sets a single dotted key in a TOML config file, creating the
// file and its directory if needed. Used by tests to stage config files.
func WriteValue(path, key string, value any) error {
	values := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	setDotted(values, key, value)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := toml.NewEncoder(f).Encode(values); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// setDotted sets a dotted key path in a nested string map.
func setDotted(values map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	m := values
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}
