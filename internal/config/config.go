package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Transport kinds supported by test configurations
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config represents the complete mcpdrift configuration
type Config struct {
	Version int `json:"version" yaml:"version" mapstructure:"version"`

	// ComparisonRef is the git revision the current working tree is
	// compared against (branch, tag, or commit)
	ComparisonRef string `json:"comparisonRef" yaml:"comparisonRef" mapstructure:"comparisonRef"`

	// BuildCommands run inside the comparison checkout before probing
	BuildCommands []string `json:"buildCommands" yaml:"buildCommands" mapstructure:"buildCommands"`

	Render   RenderConfig   `json:"render" yaml:"render" mapstructure:"render"`
	Timeouts TimeoutsConfig `json:"timeouts" yaml:"timeouts" mapstructure:"timeouts"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging" mapstructure:"logging"`

	// Tests are the scenarios to compare, processed sequentially
	Tests []TestConfig `json:"tests" yaml:"tests" mapstructure:"tests"`
}

// RenderConfig bounds rendered diff values in reports
type RenderConfig struct {
	MaxStringLength int `json:"maxStringLength" yaml:"maxStringLength" mapstructure:"maxStringLength"`
	MaxObjectLength int `json:"maxObjectLength" yaml:"maxObjectLength" mapstructure:"maxObjectLength"`
}

// TimeoutsConfig bounds the pipeline's suspension points
type TimeoutsConfig struct {
	// ConnectMs bounds transport connect plus initialize
	ConnectMs int `json:"connectMs" yaml:"connectMs" mapstructure:"connectMs"`
	// RequestMs bounds each individual list/custom request
	RequestMs int `json:"requestMs" yaml:"requestMs" mapstructure:"requestMs"`
	// ShutdownGraceMs is the grace period between SIGTERM and SIGKILL
	ShutdownGraceMs int `json:"shutdownGraceMs" yaml:"shutdownGraceMs" mapstructure:"shutdownGraceMs"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" yaml:"format" mapstructure:"format"`
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
}

// TestConfig represents one named comparison scenario
type TestConfig struct {
	Name      string `json:"name" yaml:"name" mapstructure:"name"`
	Transport string `json:"transport" yaml:"transport" mapstructure:"transport"`

	// Stdio transport: the server command, spawned per probe
	Command string   `json:"command,omitempty" yaml:"command,omitempty" mapstructure:"command"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
	Cwd     string   `json:"cwd,omitempty" yaml:"cwd,omitempty" mapstructure:"cwd"`

	// HTTP transport: the endpoint probed, with optional headers
	URL     string            `json:"url,omitempty" yaml:"url,omitempty" mapstructure:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" mapstructure:"headers"`

	// Env overrides merged over the ambient environment before spawning
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty" mapstructure:"env"`

	// StartCommand starts an HTTP server before probing; StartupDelayMs
	// is the settle delay before the first request
	StartCommand   string `json:"startCommand,omitempty" yaml:"startCommand,omitempty" mapstructure:"startCommand"`
	StartupDelayMs int    `json:"startupDelayMs,omitempty" yaml:"startupDelayMs,omitempty" mapstructure:"startupDelayMs"`

	// SharedServer opts this configuration into the single shared HTTP
	// server instance on the current-branch side
	SharedServer bool `json:"sharedServer,omitempty" yaml:"sharedServer,omitempty" mapstructure:"sharedServer"`

	// Pre/post hooks around probing. Post-test failures are logged, never
	// allowed to replace a comparison result.
	PreTestCommand  string `json:"preTestCommand,omitempty" yaml:"preTestCommand,omitempty" mapstructure:"preTestCommand"`
	PreTestDelayMs  int    `json:"preTestDelayMs,omitempty" yaml:"preTestDelayMs,omitempty" mapstructure:"preTestDelayMs"`
	PostTestCommand string `json:"postTestCommand,omitempty" yaml:"postTestCommand,omitempty" mapstructure:"postTestCommand"`

	// CustomMessages are ad-hoc JSON-RPC requests sent after the standard
	// sections, matched into the snapshot by name
	CustomMessages []CustomMessage `json:"customMessages,omitempty" yaml:"customMessages,omitempty" mapstructure:"customMessages"`
}

// CustomMessage represents one ad-hoc JSON-RPC request
type CustomMessage struct {
	Name   string                 `json:"name" yaml:"name" mapstructure:"name"`
	Method string                 `json:"method" yaml:"method" mapstructure:"method"`
	Params map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty" mapstructure:"params"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:       1,
		ComparisonRef: "main",
		BuildCommands: []string{},
		Render: RenderConfig{
			MaxStringLength: 100,
			MaxObjectLength: 200,
		},
		Timeouts: TimeoutsConfig{
			ConnectMs:       15000,
			RequestMs:       30000,
			ShutdownGraceMs: 3000,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
		Tests: []TestConfig{},
	}
}

// LoadConfig loads configuration from .mcpdrift/config.yaml under repoRoot
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()

	v.SetDefault("version", 1)
	v.SetDefault("comparisonRef", "main")
	v.SetDefault("render.maxStringLength", 100)
	v.SetDefault("render.maxObjectLength", 200)
	v.SetDefault("timeouts.connectMs", 15000)
	v.SetDefault("timeouts.requestMs", 30000)
	v.SetDefault("timeouts.shutdownGraceMs", 3000)
	v.SetDefault("logging.format", "human")
	v.SetDefault("logging.level", "info")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(repoRoot, ".mcpdrift"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to .mcpdrift/config.yaml
func (c *Config) Save(repoRoot string) error {
	dir := filepath.Join(repoRoot, ".mcpdrift")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ComparisonRef == "" {
		return &ConfigError{Field: "comparisonRef", Message: "comparison revision is required"}
	}

	names := make(map[string]bool, len(c.Tests))
	for i, tc := range c.Tests {
		where := fmt.Sprintf("tests[%d]", i)
		if tc.Name == "" {
			return &ConfigError{Field: where + ".name", Message: "test name is required"}
		}
		if names[tc.Name] {
			return &ConfigError{Field: where + ".name", Message: "duplicate test name " + tc.Name}
		}
		names[tc.Name] = true

		switch tc.Transport {
		case TransportStdio:
			if tc.Command == "" {
				return &ConfigError{Field: where + ".command", Message: "stdio transport requires a command"}
			}
			if tc.SharedServer {
				return &ConfigError{Field: where + ".sharedServer", Message: "shared server mode applies to http transport only"}
			}
		case TransportHTTP:
			if tc.URL == "" {
				return &ConfigError{Field: where + ".url", Message: "http transport requires a url"}
			}
		default:
			return &ConfigError{Field: where + ".transport", Message: "transport must be stdio or http"}
		}

		for j, cm := range tc.CustomMessages {
			if cm.Name == "" || cm.Method == "" {
				return &ConfigError{
					Field:   fmt.Sprintf("%s.customMessages[%d]", where, j),
					Message: "custom messages require name and method",
				}
			}
		}
	}

	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
