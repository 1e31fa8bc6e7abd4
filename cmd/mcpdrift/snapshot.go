package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"mcpdrift/internal/config"
	"mcpdrift/internal/environ"
	"mcpdrift/internal/errors"
	"mcpdrift/internal/gitrepo"
	"mcpdrift/internal/pipeline"
	"mcpdrift/internal/snapshot"
	"mcpdrift/internal/store"
)

var (
	snapshotTest    string
	snapshotOutput  string
	snapshotSave    string
	snapshotBlobDir string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Capture one interface snapshot from the current working tree",
	Long: `Probes a single configured test against the current working tree and
prints the canonical snapshot as JSON. Useful for inspecting what a
server exposes, debugging connection failures in isolation, and saving
named baselines for later offline comparison.

Examples:
  # Print the snapshot for the only configured test
  mcpdrift snapshot

  # Snapshot a specific test and save it as a baseline
  mcpdrift snapshot --test default --save release-1.4`,
	RunE: runSnapshot,
}

func init() {
	snapshotCmd.Flags().StringVar(&snapshotTest, "test", "", "Configured test to probe (required when more than one exists)")
	snapshotCmd.Flags().StringVar(&snapshotOutput, "output", "", "Write the snapshot to a file (default: stdout)")
	snapshotCmd.Flags().StringVar(&snapshotSave, "save", "", "Save the snapshot to the baseline store under this label")
	snapshotCmd.Flags().StringVar(&snapshotBlobDir, "blobs-dir", "", "Write one canonical JSON file per section into this directory")

	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}

	cfg, err := loadValidatedConfig(root)
	if err != nil {
		return err
	}

	tc, err := selectTest(cfg, snapshotTest)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	collector := snapshot.NewCollector(logger, snapshot.Options{
		ConnectTimeout: time.Duration(cfg.Timeouts.ConnectMs) * time.Millisecond,
		RequestTimeout: time.Duration(cfg.Timeouts.RequestMs) * time.Millisecond,
	})

	orch := environ.NewOrchestrator(logger, time.Duration(cfg.Timeouts.ShutdownGraceMs)*time.Millisecond)
	if tc.Transport == config.TransportHTTP && tc.StartCommand != "" {
		handle, err := orch.StartServer(cmd.Context(), tc.StartCommand, root, tc.Env,
			time.Duration(tc.StartupDelayMs)*time.Millisecond)
		if err != nil {
			return err
		}
		defer orch.StopServer(handle)
	}

	snap := collector.Collect(cmd.Context(), pipeline.TargetFor(tc, root), pipeline.CustomMessagesFor(tc))
	if snap.Failed() {
		return errors.New(errors.ConnectionFailed, "snapshot collection failed", nil).
			WithDetails(map[string]interface{}{"test": tc.Name, "error": snap.Err})
	}

	if snapshotSave != "" {
		s, err := store.Open(storeDir(root))
		if err != nil {
			return errors.New(errors.StoreUnavailable, "failed to open baseline store", err)
		}
		defer s.Close()

		id, err := s.Save(snapshotSave, tc.Name, gitrepo.DisplayName(root, "HEAD"), snap)
		if err != nil {
			return errors.New(errors.StoreUnavailable, "failed to save baseline", err)
		}
		logger.Info("Baseline saved", map[string]interface{}{
			"label": snapshotSave,
			"test":  tc.Name,
			"id":    id,
		})
	}

	if snapshotBlobDir != "" {
		if err := writeSectionBlobs(snap, snapshotBlobDir); err != nil {
			return err
		}
		logger.Info("Section blobs written", map[string]interface{}{"dir": snapshotBlobDir})
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.New(errors.InternalError, "failed to encode snapshot", err)
	}
	data = append(data, '\n')

	if snapshotOutput != "" {
		return os.WriteFile(snapshotOutput, data, 0644)
	}
	fmt.Print(string(data))
	return nil
}

// writeSectionBlobs persists one canonical JSON file per present
// section. Re-running against an unchanged server produces
// byte-identical files.
func writeSectionBlobs(snap *snapshot.Snapshot, dir string) error {
	blobs, err := snap.SectionBlobs()
	if err != nil {
		return errors.New(errors.InternalError, "failed to serialize sections", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.New(errors.InternalError, "failed to create blob directory", err)
	}
	for name, blob := range blobs {
		path := filepath.Join(dir, name+".json")
		if err := os.WriteFile(path, append(blob, '\n'), 0644); err != nil {
			return errors.New(errors.InternalError, "failed to write section blob", err).
				WithDetails(map[string]interface{}{"path": path})
		}
	}
	return nil
}

// selectTest picks the test to probe: the named one, or the only one.
func selectTest(cfg *config.Config, name string) (*config.TestConfig, error) {
	if len(cfg.Tests) == 0 {
		return nil, errors.New(errors.ConfigInvalid, "no tests configured; run 'mcpdrift init' and add tests", nil)
	}
	if name == "" {
		if len(cfg.Tests) > 1 {
			return nil, errors.New(errors.ConfigInvalid, "multiple tests configured, use --test to pick one", nil)
		}
		return &cfg.Tests[0], nil
	}
	for i := range cfg.Tests {
		if cfg.Tests[i].Name == name {
			return &cfg.Tests[i], nil
		}
	}
	return nil, errors.New(errors.ConfigInvalid, "no configured test named "+name, nil)
}
