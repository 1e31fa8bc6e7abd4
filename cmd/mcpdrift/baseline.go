package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mcpdrift/internal/diff"
	"mcpdrift/internal/errors"
	"mcpdrift/internal/gitrepo"
	"mcpdrift/internal/pipeline"
	"mcpdrift/internal/report"
	"mcpdrift/internal/snapshot"
	"mcpdrift/internal/store"
	"mcpdrift/internal/version"
)

var (
	baselineCompareTest   string
	baselineCompareFormat string
)

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Manage stored interface baselines",
	Long: `Baselines are snapshots saved under a label (see 'mcpdrift snapshot
--save'). They allow offline comparison: a later run can be checked
against a stored baseline without rebuilding or re-probing the older
revision.`,
}

var baselineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored baselines",
	RunE:  runBaselineList,
}

var baselineCompareCmd = &cobra.Command{
	Use:   "compare <label>",
	Short: "Compare the current working tree against a stored baseline",
	Args:  cobra.ExactArgs(1),
	RunE:  runBaselineCompare,
}

var baselineDeleteCmd = &cobra.Command{
	Use:   "delete <label>",
	Short: "Delete all baselines stored under a label",
	Args:  cobra.ExactArgs(1),
	RunE:  runBaselineDelete,
}

func init() {
	baselineCompareCmd.Flags().StringVar(&baselineCompareTest, "test", "", "Configured test to probe (required when more than one exists)")
	baselineCompareCmd.Flags().StringVar(&baselineCompareFormat, "format", "markdown", "Report format: markdown or json")

	baselineCmd.AddCommand(baselineListCmd)
	baselineCmd.AddCommand(baselineCompareCmd)
	baselineCmd.AddCommand(baselineDeleteCmd)
	rootCmd.AddCommand(baselineCmd)
}

// storeDir is where the baseline database lives, next to the config.
func storeDir(root string) string {
	return filepath.Join(root, ".mcpdrift")
}

func openStore(root string) (*store.Store, error) {
	s, err := store.Open(storeDir(root))
	if err != nil {
		return nil, errors.New(errors.StoreUnavailable, "failed to open baseline store", err)
	}
	return s, nil
}

func runBaselineList(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}

	s, err := openStore(root)
	if err != nil {
		return err
	}
	defer s.Close()

	baselines, err := s.List()
	if err != nil {
		return errors.New(errors.StoreUnavailable, "failed to list baselines", err)
	}
	if len(baselines) == 0 {
		fmt.Println("No baselines stored.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tTEST\tREF\tCREATED")
	for _, b := range baselines {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.Label, b.TestName, b.Ref, b.CreatedAt)
	}
	return w.Flush()
}

func runBaselineCompare(cmd *cobra.Command, args []string) error {
	label := args[0]

	root, err := repoRoot()
	if err != nil {
		return err
	}
	cfg, err := loadValidatedConfig(root)
	if err != nil {
		return err
	}
	tc, err := selectTest(cfg, baselineCompareTest)
	if err != nil {
		return err
	}

	s, err := openStore(root)
	if err != nil {
		return err
	}
	defer s.Close()

	base, err := s.Load(label, tc.Name)
	if err != nil {
		return errors.New(errors.StoreUnavailable, "failed to load baseline", err)
	}

	logger := newLogger(cfg)
	collector := snapshot.NewCollector(logger, snapshot.Options{
		ConnectTimeout: time.Duration(cfg.Timeouts.ConnectMs) * time.Millisecond,
		RequestTimeout: time.Duration(cfg.Timeouts.RequestMs) * time.Millisecond,
	})

	start := time.Now()
	current := collector.Collect(cmd.Context(), pipeline.TargetFor(tc, root), pipeline.CustomMessagesFor(tc))
	elapsed := time.Since(start).Milliseconds()

	res := pipeline.Result{Name: tc.Name, CurrentMs: elapsed}
	if current.Failed() {
		res.Outcome = pipeline.OutcomeError
		res.Err = "current: " + current.Err
	} else {
		d := diff.NewDiffer(diff.RenderLimits{
			MaxStringLength: cfg.Render.MaxStringLength,
			MaxObjectLength: cfg.Render.MaxObjectLength,
		})
		res.Entries = pipeline.DiffSections(d, base.Sections(), current.Sections())
		if len(res.Entries) == 0 {
			res.Outcome = pipeline.OutcomeClean
		} else {
			res.Outcome = pipeline.OutcomeDrift
		}
	}

	results := []pipeline.Result{res}
	meta := report.Meta{
		RunID:         uuid.NewString(),
		Version:       version.Version,
		CurrentRef:    gitrepo.DisplayName(root, "HEAD"),
		ComparisonRef: "baseline:" + label,
		GeneratedAt:   time.Now(),
	}

	if baselineCompareFormat == "json" {
		data, err := report.RenderJSON(results, meta)
		if err != nil {
			return errors.New(errors.InternalError, "failed to encode report", err)
		}
		fmt.Println(string(data))
	} else {
		fmt.Print(report.RenderMarkdown(results, meta))
	}

	if report.Drifted(results) {
		os.Exit(1)
	}
	return nil
}

func runBaselineDelete(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}

	s, err := openStore(root)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.Delete(args[0])
	if err != nil {
		return errors.New(errors.StoreUnavailable, "failed to delete baseline", err)
	}
	if n == 0 {
		fmt.Printf("No baselines stored under %q.\n", args[0])
		return nil
	}
	fmt.Printf("Deleted %d baseline(s) under %q.\n", n, args[0])
	return nil
}
