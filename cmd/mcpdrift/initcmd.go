package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"mcpdrift/internal/config"
	"mcpdrift/internal/errors"
)

var (
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize mcpdrift configuration",
	Long:  "Creates a .mcpdrift/ directory with a default configuration in the repository root",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}

	cfgPath := filepath.Join(root, ".mcpdrift", "config.yaml")
	if _, statErr := os.Stat(cfgPath); statErr == nil && !initForce {
		// Idempotent: already initialized is success (CI-friendly).
		fmt.Println("mcpdrift already initialized.")
		fmt.Printf("Configuration at: %s\n", cfgPath)
		fmt.Println("\nRun 'mcpdrift init --force' to overwrite with defaults.")
		return nil
	}

	cfg := config.DefaultConfig()
	cfg.Tests = []config.TestConfig{
		{
			Name:      "default",
			Transport: config.TransportStdio,
			Command:   "node",
			Args:      []string{"dist/index.js"},
		},
	}

	if err := cfg.Save(root); err != nil {
		return errors.New(errors.InternalError, "failed to write configuration", err)
	}

	fmt.Println("mcpdrift initialized.")
	fmt.Printf("Configuration at: %s\n", cfgPath)
	fmt.Println("\nEdit the tests section to match how your MCP server is started,")
	fmt.Println("then run 'mcpdrift compare'.")
	return nil
}
