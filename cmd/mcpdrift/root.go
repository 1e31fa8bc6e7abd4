package main

import (
	"os"

	"github.com/spf13/cobra"

	"mcpdrift/internal/config"
	"mcpdrift/internal/errors"
	"mcpdrift/internal/gitrepo"
	"mcpdrift/internal/logging"
	"mcpdrift/internal/version"
)

var (
	// logLevelFlag is the CLI --log-level flag value
	logLevelFlag string
	// logFormatFlag is the CLI --log-format flag value
	logFormatFlag string
)

var rootCmd = &cobra.Command{
	Use:   "mcpdrift",
	Short: "mcpdrift - MCP server interface drift detection",
	Long: `mcpdrift detects unintended changes to an MCP server's observable
interface (tools, prompts, resources, server metadata) by probing the
current working tree and a comparison revision of the same repository,
then structurally diffing the two capability snapshots.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("mcpdrift version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log level: debug, info, warn, or error (default: from config)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "",
		"Log format: human or json (default: from config)")
}

// newLogger builds the logger from config, with CLI flags taking
// precedence. Logs go to stderr; stdout is reserved for reports and
// snapshots.
func newLogger(cfg *config.Config) *logging.Logger {
	level := cfg.Logging.Level
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	format := logging.Format(cfg.Logging.Format)
	if logFormatFlag != "" {
		format = logging.Format(logFormatFlag)
	}
	return logging.NewLogger(logging.Config{
		Format: format,
		Level:  logging.ParseLevel(level),
	})
}

// repoRoot resolves the repository root from the current directory.
func repoRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.New(errors.InternalError, "failed to get current directory", err)
	}
	if !gitrepo.IsRepository(cwd) {
		return "", errors.New(errors.GitUnavailable, "not inside a git repository", nil)
	}
	return gitrepo.Root(cwd)
}

// loadValidatedConfig loads and validates the configuration for a repo.
func loadValidatedConfig(root string) (*config.Config, error) {
	cfg, err := config.LoadConfig(root)
	if err != nil {
		return nil, errors.New(errors.ConfigInvalid, "failed to load configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.New(errors.ConfigInvalid, "configuration is invalid", err)
	}
	return cfg, nil
}
