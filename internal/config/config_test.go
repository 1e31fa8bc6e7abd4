package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.ComparisonRef != "main" {
		t.Errorf("ComparisonRef = %q, want main", cfg.ComparisonRef)
	}
	if cfg.Render.MaxStringLength != 100 || cfg.Render.MaxObjectLength != 200 {
		t.Errorf("unexpected render limits: %+v", cfg.Render)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ComparisonRef != "main" {
		t.Errorf("missing config should yield defaults, got ref %q", cfg.ComparisonRef)
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, ".mcpdrift")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		t.Fatal(err)
	}

	yamlContent := `version: 1
comparisonRef: origin/release
buildCommands:
  - npm ci
  - npm run build
tests:
  - name: stdio-server
    transport: stdio
    command: node
    args: [dist/server.js]
    env:
      NODE_ENV: test
    customMessages:
      - name: ping
        method: ping
  - name: http-server
    transport: http
    url: http://localhost:8700/mcp
    startCommand: npm run serve
    startupDelayMs: 1500
    sharedServer: true
    headers:
      Authorization: Bearer test
`
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte(yamlContent), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.ComparisonRef != "origin/release" {
		t.Errorf("ComparisonRef = %q", cfg.ComparisonRef)
	}
	if len(cfg.BuildCommands) != 2 {
		t.Errorf("BuildCommands = %v", cfg.BuildCommands)
	}
	if len(cfg.Tests) != 2 {
		t.Fatalf("Tests = %d, want 2", len(cfg.Tests))
	}

	stdio := cfg.Tests[0]
	if stdio.Transport != TransportStdio || stdio.Command != "node" {
		t.Errorf("unexpected stdio test: %+v", stdio)
	}
	if stdio.Env["NODE_ENV"] != "test" {
		t.Errorf("env not loaded: %v", stdio.Env)
	}
	if len(stdio.CustomMessages) != 1 || stdio.CustomMessages[0].Method != "ping" {
		t.Errorf("custom messages not loaded: %v", stdio.CustomMessages)
	}

	http := cfg.Tests[1]
	if !http.SharedServer || http.StartupDelayMs != 1500 {
		t.Errorf("unexpected http test: %+v", http)
	}
	if http.Headers["Authorization"] != "Bearer test" {
		t.Errorf("headers not loaded: %v", http.Headers)
	}

	// Defaults still apply to sections the file omits.
	if cfg.Timeouts.ConnectMs != 15000 {
		t.Errorf("ConnectMs = %d, want default", cfg.Timeouts.ConnectMs)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := DefaultConfig()
		cfg.Tests = []TestConfig{
			{Name: "a", Transport: TransportStdio, Command: "server"},
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing ref", func(c *Config) { c.ComparisonRef = "" }, true},
		{"missing test name", func(c *Config) { c.Tests[0].Name = "" }, true},
		{"duplicate names", func(c *Config) {
			c.Tests = append(c.Tests, TestConfig{Name: "a", Transport: TransportStdio, Command: "x"})
		}, true},
		{"stdio without command", func(c *Config) { c.Tests[0].Command = "" }, true},
		{"stdio with shared server", func(c *Config) { c.Tests[0].SharedServer = true }, true},
		{"unknown transport", func(c *Config) { c.Tests[0].Transport = "grpc" }, true},
		{"http without url", func(c *Config) {
			c.Tests[0] = TestConfig{Name: "h", Transport: TransportHTTP}
		}, true},
		{"http valid", func(c *Config) {
			c.Tests[0] = TestConfig{Name: "h", Transport: TransportHTTP, URL: "http://localhost:1/mcp"}
		}, false},
		{"custom message without method", func(c *Config) {
			c.Tests[0].CustomMessages = []CustomMessage{{Name: "x"}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.ComparisonRef = "develop"
	cfg.Tests = []TestConfig{
		{Name: "s", Transport: TransportStdio, Command: "server", Args: []string{"--stdio"}},
	}

	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.ComparisonRef != "develop" {
		t.Errorf("ComparisonRef = %q after round trip", loaded.ComparisonRef)
	}
	if len(loaded.Tests) != 1 || loaded.Tests[0].Command != "server" {
		t.Errorf("tests lost in round trip: %+v", loaded.Tests)
	}
}
