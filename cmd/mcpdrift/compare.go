package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mcpdrift/internal/config"
	"mcpdrift/internal/errors"
	"mcpdrift/internal/gitrepo"
	"mcpdrift/internal/pipeline"
	"mcpdrift/internal/report"
	"mcpdrift/internal/version"
)

var (
	compareRef    string
	compareFormat string
	compareOutput string
	compareTests  []string
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare the current working tree against the comparison revision",
	Long: `Probes every configured test against both the current working tree and
the configured comparison revision, then reports structural differences
between the two interface snapshots.

The exit code is 0 when every test is clean, and 1 when any test drifted
or could not be probed, so the command can gate CI directly.

Examples:
  # Compare against the configured revision (default: main)
  mcpdrift compare

  # Compare against a release tag, machine-readable output
  mcpdrift compare --ref v1.4.0 --format json

  # Run a single configured test and write the report to a file
  mcpdrift compare --test default --output drift.md`,
	RunE: runCompare,
}

func init() {
	compareCmd.Flags().StringVar(&compareRef, "ref", "", "Comparison revision (overrides config)")
	compareCmd.Flags().StringVar(&compareFormat, "format", "markdown", "Report format: markdown or json")
	compareCmd.Flags().StringVar(&compareOutput, "output", "", "Write the report to a file (default: stdout)")
	compareCmd.Flags().StringSliceVar(&compareTests, "test", nil, "Run only the named test(s)")

	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}

	cfg, err := loadValidatedConfig(root)
	if err != nil {
		return err
	}
	if compareRef != "" {
		cfg.ComparisonRef = compareRef
	}
	if len(compareTests) > 0 {
		cfg.Tests = filterTests(cfg.Tests, compareTests)
		if len(cfg.Tests) == 0 {
			return errors.New(errors.ConfigInvalid, "no configured test matches the --test filter", nil).
				WithDetails(map[string]interface{}{"filter": compareTests})
		}
	}
	if len(cfg.Tests) == 0 {
		return errors.New(errors.ConfigInvalid, "no tests configured; run 'mcpdrift init' and add tests", nil)
	}

	logger := newLogger(cfg)
	logger.Info("Starting comparison", map[string]interface{}{
		"comparisonRef": cfg.ComparisonRef,
		"tests":         len(cfg.Tests),
	})

	if state, stateErr := gitrepo.CaptureState(root); stateErr == nil && state.Dirty {
		logger.Info("Working tree has uncommitted changes; probing them as the current side", map[string]interface{}{
			"ref":  state.Ref,
			"head": state.HeadCommit,
		})
	}

	p := pipeline.New(logger, cfg)
	results, err := p.Run(cmd.Context(), root)
	if err != nil {
		return err
	}

	meta := report.Meta{
		RunID:         uuid.NewString(),
		Version:       version.Version,
		CurrentRef:    gitrepo.DisplayName(root, "HEAD"),
		ComparisonRef: cfg.ComparisonRef,
		GeneratedAt:   time.Now(),
	}

	var rendered []byte
	if compareFormat == "json" {
		rendered, err = report.RenderJSON(results, meta)
		if err != nil {
			return errors.New(errors.InternalError, "failed to encode report", err)
		}
		rendered = append(rendered, '\n')
	} else {
		rendered = []byte(report.RenderMarkdown(results, meta))
	}

	if compareOutput != "" {
		if err := os.WriteFile(compareOutput, rendered, 0644); err != nil {
			return errors.New(errors.InternalError, "failed to write report", err)
		}
		logger.Info("Report written", map[string]interface{}{"path": compareOutput})
	} else {
		fmt.Print(string(rendered))
	}

	if report.Drifted(results) {
		s := report.Summarize(results)
		logger.Warn("Interface drift detected", map[string]interface{}{
			"drifted": s.Drift,
			"errored": s.Error,
		})
		os.Exit(1)
	}
	return nil
}

func filterTests(tests []config.TestConfig, names []string) []config.TestConfig {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var out []config.TestConfig
	for _, tc := range tests {
		if wanted[tc.Name] {
			out = append(out, tc)
		}
	}
	return out
}
