package server

import "time"

// LeafHostInfo identifies a remote peer in distributed mode: either a query
// execution node or a string dictionary node.
type LeafHostInfo struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// AuthMetadata carries external authentication settings. Zero value means
// catalog-local authentication only.
type AuthMetadata struct {
	AllowLocalAuth bool
	LDAPURI        string
	RESTURL        string
}

// Config is the full construction-time configuration of a Handler. All
// fields are fixed once the handler is constructed; the handler never
// re-reads them. Use DefaultConfig as the starting point so defaults stay
// in one place instead of being spread across call sites.
type Config struct {
	// StoragePath is the directory holding the system catalog and the
	// per-database storage files. Required.
	StoragePath string `mapstructure:"storage_path"`

	// CPUOnly disables GPU execution entirely.
	CPUOnly bool `mapstructure:"cpu_only"`
	// AllowMultifrag permits multi-fragment result sets.
	AllowMultifrag bool `mapstructure:"allow_multifrag"`
	// ReadOnly rejects all mutating statements.
	ReadOnly bool `mapstructure:"read_only"`
	// AllowLoopJoins permits unoptimized loop join plans.
	AllowLoopJoins bool `mapstructure:"allow_loop_joins"`

	// EnableRendering toggles the (GPU) render pipeline.
	EnableRendering bool `mapstructure:"enable_rendering"`
	// EnableAutoClearRenderMem clears render memory between sessions.
	EnableAutoClearRenderMem bool `mapstructure:"enable_auto_clear_render_mem"`
	// RenderOOMRetryThreshold is the retry count on render OOM; 0 disables retries.
	RenderOOMRetryThreshold int `mapstructure:"render_oom_retry_threshold"`
	// RenderMemBytes is the render memory budget in bytes.
	RenderMemBytes uint64 `mapstructure:"render_mem_bytes"`
	// MaxConcurrentRenderSessions caps concurrent render sessions.
	MaxConcurrentRenderSessions uint64 `mapstructure:"max_concurrent_render_sessions"`

	// NumGPUs is the GPU count to use; -1 means all available.
	NumGPUs int `mapstructure:"num_gpus"`
	// StartGPU is the first GPU device index to use.
	StartGPU int `mapstructure:"start_gpu"`
	// ReservedGPUMem is memory in bytes left to other GPU consumers.
	ReservedGPUMem uint64 `mapstructure:"reserved_gpu_mem"`
	// NumReaderThreads is the storage reader thread count; 0 means one per core.
	NumReaderThreads uint64 `mapstructure:"num_reader_threads"`

	// LegacySyntax accepts the legacy SQL dialect.
	LegacySyntax bool `mapstructure:"legacy_syntax"`

	// IdleSessionDuration is how long a session may sit unused before it
	// expires. MaxSessionDuration bounds total session lifetime.
	IdleSessionDuration time.Duration `mapstructure:"idle_session_duration"`
	MaxSessionDuration  time.Duration `mapstructure:"max_session_duration"`

	// EnableRuntimeUDF permits runtime user-defined-function registration.
	EnableRuntimeUDF bool `mapstructure:"enable_runtime_udf"`
	// UDFFilename and UDFCompilerPath locate ahead-of-time UDF sources.
	UDFFilename        string   `mapstructure:"udf_filename"`
	UDFCompilerPath    string   `mapstructure:"udf_compiler_path"`
	UDFCompilerOptions []string `mapstructure:"udf_compiler_options"`

	// Auth carries external authentication settings.
	Auth AuthMetadata `mapstructure:"-"`

	// LeafServers and StringLeafServers describe the distributed topology.
	// Both empty means single-node mode.
	LeafServers       []LeafHostInfo `mapstructure:"leaf_servers"`
	StringLeafServers []LeafHostInfo `mapstructure:"string_leaf_servers"`
}

// DefaultConfig returns the configuration observed from a default server
// start. Callers set StoragePath and any topology before constructing a
// Handler.
func DefaultConfig() Config {
	return Config{
		CPUOnly:                     false,
		AllowMultifrag:              true,
		ReadOnly:                    false,
		AllowLoopJoins:              false,
		EnableRendering:             false,
		EnableAutoClearRenderMem:    false,
		RenderOOMRetryThreshold:     0,
		RenderMemBytes:              500000000,
		MaxConcurrentRenderSessions: 500,
		NumGPUs:                     -1,
		StartGPU:                    0,
		ReservedGPUMem:              134217728,
		NumReaderThreads:            0,
		LegacySyntax:                true,
		IdleSessionDuration:         60 * time.Minute,
		MaxSessionDuration:          43200 * time.Minute,
		EnableRuntimeUDF:            false,
		Auth:                        AuthMetadata{AllowLocalAuth: true},
	}
}
