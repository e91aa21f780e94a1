package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvConfigPath names the environment variable that pins the config file.
const EnvConfigPath = "CREWFLOW_CONFIG_PATH"

// Loader loads configuration from files and the environment.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a [Loader] with defaults registered and the CREWFLOW_
// environment prefix bound. Nested keys use underscores in the environment:
// governor.max_turns becomes CREWFLOW_GOVERNOR_MAX_TURNS.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix("CREWFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultConfig()
	v.SetDefault("governor.max_turns", defaults.Governor.MaxTurns)
	v.SetDefault("governor.max_agent_retries", defaults.Governor.MaxAgentRetries)
	v.SetDefault("governor.fallback_agent", defaults.Governor.FallbackAgent)
	v.SetDefault("approval.required_phases", defaults.Approval.RequiredPhases)
	v.SetDefault("approval.path", defaults.Approval.Path)
	v.SetDefault("models.default", defaults.Models.Default)
	v.SetDefault("models.by_role", defaults.Models.ByRole)
	v.SetDefault("checkpoint.dir", defaults.Checkpoint.Dir)
	v.SetDefault("log.level", defaults.Log.Level)

	return &Loader{v: v}
}

// Load reads configuration from the first discovered config file (if any)
// and returns the merged result. A missing config file is not an error; a
// malformed one is.
func (l *Loader) Load() (*Config, error) {
	if path := l.discover(); path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// discover returns the config file path to use, or empty for defaults-only.
func (l *Loader) discover() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".config", "crewflow", "crewflow.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("crewflow.yaml"); err == nil {
		return "crewflow.yaml"
	}

	return ""
}
