// Package config provides loading and parsing of concierge.yaml
// configuration files: model settings, per-turn budgets, and storage
// endpoints for the knowledge graph and the session registry.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents a concierge.yaml configuration file.
type Config struct {
	// Identity
	Name string `yaml:"name,omitempty"`

	// Turn budgets and retry policy
	Turn *TurnConfig `yaml:"turn,omitempty"`

	// Knowledge graph persistence
	Graph *GraphConfig `yaml:"graph,omitempty"`

	// Session registry (etcd)
	Registry *RegistryConfig `yaml:"registry,omitempty"`

	// Logging
	LogLevel string `yaml:"log_level,omitempty"` // debug, info, warn, error. Default: info
}

// TurnConfig bounds one conversational turn.
type TurnConfig struct {
	// Timeout bounds a whole turn end to end.
	// Format: Go duration string (e.g., "30s", "1m")
	// Default: 30s
	Timeout string `yaml:"timeout,omitempty"`

	// DecisionTimeout bounds the action-decision model call.
	// Default: 15s
	DecisionTimeout string `yaml:"decision_timeout,omitempty"`

	// ResolutionTimeout bounds the argument-resolution model call.
	// Default: 10s
	ResolutionTimeout string `yaml:"resolution_timeout,omitempty"`

	// MaxSteps caps actions within one turn.
	// Default: 4
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Retries is how many times a transient read-only tool failure is
	// retried.
	// Default: 1
	Retries *int `yaml:"retries,omitempty"`

	// Window is how many recent messages the decision policy sees.
	// Default: 20
	Window int `yaml:"window,omitempty"`
}

// GraphConfig points the knowledge graph at its durable store.
type GraphConfig struct {
	// RedisURL is the connection string for snapshot persistence.
	// Empty disables persistence; the graph stays in memory only.
	RedisURL string `yaml:"redis_url,omitempty"`

	// CreateMissing lets relation upserts materialize absent endpoints.
	// Default: false
	CreateMissing bool `yaml:"create_missing,omitempty"`
}

// RegistryConfig points session registration at etcd.
type RegistryConfig struct {
	// Endpoints are the etcd endpoints. Empty disables registration.
	Endpoints []string `yaml:"endpoints,omitempty"`

	// LeaseTTL is the session lease time to live.
	// Format: Go duration string. Default: 30s
	LeaseTTL string `yaml:"lease_ttl,omitempty"`
}

// GetTimeout parses the turn timeout string and returns a duration.
// Returns the default value if not set or invalid.
func (t *TurnConfig) GetTimeout() time.Duration {
	return parseDuration(t.value(func(c *TurnConfig) string { return c.Timeout }), 30*time.Second)
}

// GetDecisionTimeout parses the decision timeout string.
func (t *TurnConfig) GetDecisionTimeout() time.Duration {
	return parseDuration(t.value(func(c *TurnConfig) string { return c.DecisionTimeout }), 15*time.Second)
}

// GetResolutionTimeout parses the resolution timeout string.
func (t *TurnConfig) GetResolutionTimeout() time.Duration {
	return parseDuration(t.value(func(c *TurnConfig) string { return c.ResolutionTimeout }), 10*time.Second)
}

// GetMaxSteps returns the configured step cap or the default value.
func (t *TurnConfig) GetMaxSteps() int {
	if t == nil || t.MaxSteps <= 0 {
		return 4
	}
	return t.MaxSteps
}

// GetRetries returns the configured retry count or the default value.
func (t *TurnConfig) GetRetries() int {
	if t == nil || t.Retries == nil || *t.Retries < 0 {
		return 1
	}
	return *t.Retries
}

// GetWindow returns the configured message window or the default value.
func (t *TurnConfig) GetWindow() int {
	if t == nil || t.Window <= 0 {
		return 20
	}
	return t.Window
}

func (t *TurnConfig) value(get func(*TurnConfig) string) string {
	if t == nil {
		return ""
	}
	return get(t)
}

// GetLeaseTTL parses the lease TTL string and returns a duration.
func (r *RegistryConfig) GetLeaseTTL() time.Duration {
	if r == nil {
		return 30 * time.Second
	}
	return parseDuration(r.LeaseTTL, 30*time.Second)
}

// GetLogLevel returns the configured log level or the default value.
func (c *Config) GetLogLevel() string {
	if c == nil || c.LogLevel == "" {
		return "info"
	}
	return c.LogLevel
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// Load reads and parses a concierge.yaml file from the given path.
// If the path is a directory, it looks for concierge.yaml or concierge.yml
// in that directory.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	var configPath string
	if info.IsDir() {
		yamlPath := filepath.Join(path, "concierge.yaml")
		if _, err := os.Stat(yamlPath); err == nil {
			configPath = yamlPath
		} else {
			ymlPath := filepath.Join(path, "concierge.yml")
			if _, err := os.Stat(ymlPath); err == nil {
				configPath = ymlPath
			} else {
				return nil, fmt.Errorf("no concierge.yaml or concierge.yml found in %s", path)
			}
		}
	} else {
		configPath = path
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// Default returns a Config with every field unset, so the getters hand
// back their defaults.
func Default() *Config {
	return &Config{}
}
