package types

import "time"

// AIConfig holds shared settings for components that call the Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "gemini-2.5-pro").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Temperature is the sampling temperature for generation (default 1.0).
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// StreamTimeout bounds a single streaming generation call.
	// Zero means no timeout. Per prd001-generation R4.2.
	StreamTimeout time.Duration `json:"stream_timeout" yaml:"stream_timeout"`
}

// GenerationConfig holds settings for the generation orchestrator.
// Per prd001-generation R1.1, R4.1-R4.3.
type GenerationConfig struct {
	AIConfig `yaml:",inline"`

	// MaxAttempts is the attempt budget for one generate/iterate call,
	// including the first attempt (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
}

// RuntimeConfig holds settings for the script execution runtime.
// Per prd003-execution R2.1-R2.4.
type RuntimeConfig struct {
	// InterpreterPath is the dedicated CAD interpreter binary. When set it
	// is used as-is; otherwise python3 and python are tried on PATH. A
	// dedicated environment keeps build123d's dependency versions away
	// from whatever the host has installed.
	InterpreterPath string `json:"interpreter_path,omitempty" yaml:"interpreter_path,omitempty"`

	// ExecTimeout bounds a single script execution. Zero means no timeout.
	ExecTimeout time.Duration `json:"exec_timeout" yaml:"exec_timeout"`
}

// SessionConfig holds settings for the session registry.
// Per prd004-sessions R1.1-R1.3.
type SessionConfig struct {
	// DataDir is the base directory for session state (contains
	// sessions/<id>/ scratch directories and the registry database).
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// ServerConfig holds settings for the HTTP API.
// Per prd005-api R1.1.
type ServerConfig struct {
	// Addr is the listen address (e.g. ":8080").
	Addr string `json:"addr" yaml:"addr"`
}

// Config groups all component configurations.
type Config struct {
	Generation GenerationConfig `json:"generation" yaml:"generation"`
	Runtime    RuntimeConfig    `json:"runtime" yaml:"runtime"`
	Sessions   SessionConfig    `json:"sessions" yaml:"sessions"`
	Server     ServerConfig     `json:"server" yaml:"server"`
}
