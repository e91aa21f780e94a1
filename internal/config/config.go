// Package config provides configuration loading and management for crewflow.
//
// Configuration is loaded using Viper, supporting YAML config files and
// environment variable overrides. The defaults run a complete workflow out of
// the box; a config file tunes the governor ceilings, the approval gate, and
// per-role model selection.
//
// Key types:
//   - [Config] is the root configuration container
//   - [Loader] handles Viper-based configuration loading
//
// Configuration priority (highest to lowest):
//  1. Environment variables (CREWFLOW_ prefix)
//  2. Config file specified by CREWFLOW_CONFIG_PATH
//  3. ~/.config/crewflow/crewflow.yaml
//  4. ./crewflow.yaml
//  5. [DefaultConfig] defaults
package config

// Config represents the root configuration structure.
type Config struct {
	// Governor bounds run length and per-agent retries.
	Governor GovernorConfig `mapstructure:"governor"`

	// Approval configures the gate and the approval-file channel.
	Approval ApprovalConfig `mapstructure:"approval"`

	// Models selects model ids per role.
	Models ModelsConfig `mapstructure:"models"`

	// Checkpoint configures state persistence.
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`

	// Log configures structured logging.
	Log LogConfig `mapstructure:"log"`
}

// GovernorConfig holds the termination ceilings.
type GovernorConfig struct {
	// MaxTurns caps total orchestrator steps per run. Default: 50.
	MaxTurns int `mapstructure:"max_turns"`

	// MaxAgentRetries caps consecutive retries of one agent's step.
	// Default: 2.
	MaxAgentRetries int `mapstructure:"max_agent_retries"`

	// FallbackAgent, when non-empty, takes over a step whose owner
	// exhausted its retries. Must be a roster role name. Default: unset
	// (exhaustion is fatal).
	FallbackAgent string `mapstructure:"fallback_agent"`
}

// ApprovalConfig controls the approval gate.
type ApprovalConfig struct {
	// RequiredPhases lists phases that suspend for approval before entry
	// (phase names: strategy, design, build, ship). Default: ["build"].
	RequiredPhases []string `mapstructure:"required_phases"`

	// Path is the approval file location. Default: "approvals.yaml".
	// CREWFLOW_APPROVALS_PATH overrides it.
	Path string `mapstructure:"path"`
}

// ModelsConfig selects model identifiers.
type ModelsConfig struct {
	// Default is the model used by roles without an override.
	Default string `mapstructure:"default"`

	// ByRole maps roster role names to model ids.
	ByRole map[string]string `mapstructure:"by_role"`
}

// CheckpointConfig configures state persistence.
type CheckpointConfig struct {
	// Dir is the directory holding per-thread snapshots.
	// Default: ".crewflow/checkpoints".
	Dir string `mapstructure:"dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: "warn" so normal
	// runs show only the printer's output.
	Level string `mapstructure:"level"`
}

// DefaultConfig returns a new [Config] with sensible defaults. The defaults
// gate the build phase, cap runs at 50 turns and 2 retries per agent, and
// keep checkpoints under the working directory.
func DefaultConfig() *Config {
	return &Config{
		Governor: GovernorConfig{
			MaxTurns:        50,
			MaxAgentRetries: 2,
		},
		Approval: ApprovalConfig{
			RequiredPhases: []string{"build"},
			Path:           "approvals.yaml",
		},
		Models: ModelsConfig{
			Default: "claude-sonnet-4-5",
			ByRole:  map[string]string{},
		},
		Checkpoint: CheckpointConfig{
			Dir: ".crewflow/checkpoints",
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}
