// Package pipeline runs the full comparison flow: prepare the
// comparison checkout, probe both sides of every configured test, and
// reduce each pair of snapshots to a drift verdict.
package pipeline

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"mcpdrift/internal/canonical"
	"mcpdrift/internal/config"
	"mcpdrift/internal/diff"
	"mcpdrift/internal/environ"
	"mcpdrift/internal/errors"
	"mcpdrift/internal/logging"
	"mcpdrift/internal/snapshot"
)

// Outcome classifies one test result
const (
	// OutcomeClean means both probes succeeded and no differences were found
	OutcomeClean = "clean"
	// OutcomeDrift means both probes succeeded and differences were found
	OutcomeDrift = "drift"
	// OutcomeError means at least one side could not be probed; an error
	// is never reported as drift
	OutcomeError = "error"
)

// Result is the verdict for one configured test
type Result struct {
	Name    string       `json:"name"`
	Outcome string       `json:"outcome"`
	Entries []diff.Entry `json:"entries,omitempty"`
	Err     string       `json:"error,omitempty"`

	// Probe durations per side, for the report footer
	CurrentMs    int64 `json:"currentMs"`
	ComparisonMs int64 `json:"comparisonMs"`
}

// Pipeline executes configured tests against two environments
type Pipeline struct {
	logger    *logging.Logger
	cfg       *config.Config
	orch      *environ.Orchestrator
	collector *snapshot.Collector
	differ    *diff.Differ
}

// New builds a pipeline from configuration
func New(logger *logging.Logger, cfg *config.Config) *Pipeline {
	return &Pipeline{
		logger: logger,
		cfg:    cfg,
		orch:   environ.NewOrchestrator(logger, time.Duration(cfg.Timeouts.ShutdownGraceMs)*time.Millisecond),
		collector: snapshot.NewCollector(logger, snapshot.Options{
			ConnectTimeout: time.Duration(cfg.Timeouts.ConnectMs) * time.Millisecond,
			RequestTimeout: time.Duration(cfg.Timeouts.RequestMs) * time.Millisecond,
		}),
		differ: diff.NewDiffer(diff.RenderLimits{
			MaxStringLength: cfg.Render.MaxStringLength,
			MaxObjectLength: cfg.Render.MaxObjectLength,
		}),
	}
}

// Run executes every configured test sequentially and returns one result
// per test. One test's failure never aborts its siblings. The git tree
// is a single shared mutable resource, so the comparison environment is
// prepared per test, strictly after that test's current-side probe, and
// torn down before the next test begins. The in-place checkout fallback
// depends on this ordering: the current probe must see the working tree
// before it is switched.
func (p *Pipeline) Run(ctx context.Context, repoDir string) ([]Result, error) {
	current := p.orch.Current(repoDir)

	// Shared-server mode: one server instance on the current side serves
	// every test that opts in, started and stopped outside the loop. The
	// comparison side never shares; its server carries the comparison
	// revision's code and is started per test like any other.
	var shared environ.ProcessHandle
	if tc := firstSharedTest(p.cfg.Tests); tc != nil && tc.StartCommand != "" {
		var err error
		shared, err = p.orch.StartServer(ctx, tc.StartCommand, current.WorkDir, tc.Env,
			time.Duration(tc.StartupDelayMs)*time.Millisecond)
		if err != nil {
			return nil, errors.New(errors.EnvPrepFailed, "shared server failed to start", err)
		}
		defer p.orch.StopServer(shared)
	}

	results := make([]Result, 0, len(p.cfg.Tests))
	for i := range p.cfg.Tests {
		tc := &p.cfg.Tests[i]
		p.logger.Info("Running test", map[string]interface{}{
			"name":      tc.Name,
			"transport": tc.Transport,
		})
		results = append(results, p.runOne(ctx, tc, current, repoDir, shared))
	}

	return results, nil
}

// ProbeContext identifies which side a probe runs against and how.
type ProbeContext struct {
	// Side labels the probe in results and logs: current or comparison
	Side string
	// Env is the environment the probe runs in
	Env *environ.Environment
	// UseSharedServer skips the per-probe server start because the shared
	// instance is already running
	UseSharedServer bool
}

// runOne probes both sides of one test and diffs the snapshots. A failed
// current-side probe short-circuits: the comparison environment is not
// even prepared, since no verdict could come out of it.
func (p *Pipeline) runOne(ctx context.Context, tc *config.TestConfig, current *environ.Environment, repoDir string, shared environ.ProcessHandle) Result {
	res := Result{Name: tc.Name}

	curStart := time.Now()
	curSnap := p.probe(ctx, tc, ProbeContext{
		Side:            "current",
		Env:             current,
		UseSharedServer: shared != nil && tc.SharedServer,
	})
	res.CurrentMs = time.Since(curStart).Milliseconds()

	if curSnap.Failed() {
		res.Outcome = OutcomeError
		res.Err = "current: " + curSnap.Err
		return res
	}

	compStart := time.Now()
	comparison, err := p.orch.PrepareComparison(repoDir, p.cfg.ComparisonRef)
	if err != nil {
		res.Outcome = OutcomeError
		res.Err = "comparison: " + err.Error()
		return res
	}
	defer p.orch.Teardown(comparison)

	p.orch.RunBuildCommands(ctx, comparison, p.cfg.BuildCommands, tc.Env)

	compSnap := p.probe(ctx, tc, ProbeContext{Side: "comparison", Env: comparison})
	res.ComparisonMs = time.Since(compStart).Milliseconds()

	if compSnap.Failed() {
		res.Outcome = OutcomeError
		res.Err = "comparison: " + compSnap.Err
		return res
	}

	res.Entries = DiffSections(p.differ, compSnap.Sections(), curSnap.Sections())
	if len(res.Entries) == 0 {
		res.Outcome = OutcomeClean
	} else {
		res.Outcome = OutcomeDrift
	}
	return res
}

// probe collects one snapshot from one side, running the pre/post hooks
// and managing a per-side server when the test needs one. A pre-test
// hook failure fails the probe; a post-test hook failure is logged and
// never replaces the collected snapshot.
func (p *Pipeline) probe(ctx context.Context, tc *config.TestConfig, pc ProbeContext) *snapshot.Snapshot {
	env := pc.Env
	env.MarkProbing()

	p.logger.Debug("Probing", map[string]interface{}{
		"test": tc.Name,
		"side": pc.Side,
		"dir":  env.WorkDir,
	})

	if err := p.orch.RunHook(ctx, env, tc.PreTestCommand,
		time.Duration(tc.PreTestDelayMs)*time.Millisecond, tc.Env); err != nil {
		return &snapshot.Snapshot{Err: errors.New(errors.EnvPrepFailed, "pre-test command failed", err).Error()}
	}

	if tc.Transport == config.TransportHTTP && tc.StartCommand != "" && !pc.UseSharedServer {
		handle, err := p.orch.StartServer(ctx, tc.StartCommand, env.WorkDir, tc.Env,
			time.Duration(tc.StartupDelayMs)*time.Millisecond)
		if err != nil {
			return &snapshot.Snapshot{Err: err.Error()}
		}
		defer p.orch.StopServer(handle)
	}

	snap := p.collector.Collect(ctx, TargetFor(tc, env.WorkDir), CustomMessagesFor(tc))

	if err := p.orch.RunHook(ctx, env, tc.PostTestCommand, 0, tc.Env); err != nil {
		p.logger.Warn("Post-test command failed", map[string]interface{}{
			"test":  tc.Name,
			"side":  pc.Side,
			"error": err.Error(),
		})
	}

	return snap
}

// TargetFor maps a test configuration onto a probe target rooted in a
// working directory.
func TargetFor(tc *config.TestConfig, workDir string) snapshot.Target {
	switch tc.Transport {
	case config.TransportStdio:
		dir := workDir
		if tc.Cwd != "" {
			if filepath.IsAbs(tc.Cwd) {
				dir = tc.Cwd
			} else {
				dir = filepath.Join(workDir, tc.Cwd)
			}
		}
		return snapshot.Target{
			Kind:    snapshot.TransportStdio,
			Command: tc.Command,
			Args:    tc.Args,
			Dir:     dir,
			Env:     tc.Env,
		}
	default:
		return snapshot.Target{
			Kind:    snapshot.TransportHTTP,
			URL:     tc.URL,
			Headers: tc.Headers,
		}
	}
}

// CustomMessagesFor converts a test's configured custom messages to
// collector requests.
func CustomMessagesFor(tc *config.TestConfig) []snapshot.CustomMessage {
	if len(tc.CustomMessages) == 0 {
		return nil
	}
	out := make([]snapshot.CustomMessage, len(tc.CustomMessages))
	for i, cm := range tc.CustomMessages {
		out[i] = snapshot.CustomMessage{Name: cm.Name, Method: cm.Method, Params: cm.Params}
	}
	return out
}

func firstSharedTest(tests []config.TestConfig) *config.TestConfig {
	for i := range tests {
		if tests[i].SharedServer {
			return &tests[i]
		}
	}
	return nil
}

// DiffSections compares two section maps. Each section is canonicalized
// before diffing, so two sides that differ only in array order or in key
// order inside embedded-JSON text payloads produce no entries. Sections
// follow the canonical report order, with any custom section names the
// order does not cover appended alphabetically. base is the comparison
// revision, branch the current working tree, so Added means new on the
// current side.
func DiffSections(d *diff.Differ, base, branch map[string]interface{}) []diff.Entry {
	ordered := make([]string, 0, len(base)+len(branch))
	seen := make(map[string]bool)
	for _, name := range snapshot.SectionOrder {
		if _, inBase := base[name]; !inBase {
			if _, inBranch := branch[name]; !inBranch {
				continue
			}
		}
		ordered = append(ordered, name)
		seen[name] = true
	}

	var extra []string
	for name := range base {
		if !seen[name] {
			extra = append(extra, name)
			seen[name] = true
		}
	}
	for name := range branch {
		if !seen[name] {
			extra = append(extra, name)
			seen[name] = true
		}
	}
	sort.Strings(extra)
	ordered = append(ordered, extra...)

	var entries []diff.Entry
	for _, name := range ordered {
		entries = append(entries, d.Diff(canonical.Canonicalize(base[name]), canonical.Canonicalize(branch[name]), name)...)
	}
	return entries
}
