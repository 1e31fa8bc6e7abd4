package environ

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"mcpdrift/internal/errors"
	"mcpdrift/internal/gitrepo"
	"mcpdrift/internal/logging"
)

// EnvState tracks the lifecycle of one environment
type EnvState int

const (
	// StateIdle before preparation
	StateIdle EnvState = iota
	// StatePrepared after the checkout exists and builds have run
	StatePrepared
	// StateProbing while a snapshot is being collected
	StateProbing
	// StateTornDown after teardown; terminal
	StateTornDown
)

// Environment represents one materialized codebase state. The current
// side uses the working tree as-is; the comparison side is created via
// PrepareComparison and must be torn down before the next configuration
// runs, since the repository is a single shared mutable resource.
type Environment struct {
	// RepoDir is the repository root
	RepoDir string
	// WorkDir is where build commands and server processes run
	WorkDir string
	// Ref is the revision this environment represents
	Ref string

	state EnvState
	// worktreePath is set when a linked worktree was created
	worktreePath string
	// restoreRef is set when the in-place checkout fallback was used and
	// teardown must return the repository to the previous ref
	restoreRef string
}

// State returns the environment's lifecycle state
func (e *Environment) State() EnvState {
	return e.state
}

// MarkProbing transitions prepared → probing
func (e *Environment) MarkProbing() {
	if e.state == StatePrepared {
		e.state = StateProbing
	}
}

// UsedFallback reports whether the in-place checkout fallback was used
// instead of a linked worktree.
func (e *Environment) UsedFallback() bool {
	return e.restoreRef != ""
}

// Orchestrator prepares environments and manages server lifecycles
type Orchestrator struct {
	logger *logging.Logger
	grace  time.Duration
}

// NewOrchestrator creates an orchestrator. grace bounds the wait between
// graceful and forced process termination.
func NewOrchestrator(logger *logging.Logger, grace time.Duration) *Orchestrator {
	if grace <= 0 {
		grace = 3 * time.Second
	}
	return &Orchestrator{logger: logger, grace: grace}
}

// Current returns the environment for the current working tree; no
// preparation or teardown is required for it.
func (o *Orchestrator) Current(repoDir string) *Environment {
	return &Environment{
		RepoDir: repoDir,
		WorkDir: repoDir,
		Ref:     "HEAD",
		state:   StatePrepared,
	}
}

// PrepareComparison materializes the comparison revision. A linked
// worktree is attempted first; when that fails (the revision may already
// be checked out elsewhere) it falls back to an in-place checkout and
// records the previous ref for restoration during teardown.
func (o *Orchestrator) PrepareComparison(repoDir, ref string) (*Environment, error) {
	wtPath := filepath.Join(os.TempDir(), "mcpdrift-"+uuid.NewString()[:8])

	wtErr := gitrepo.AddWorktree(repoDir, wtPath, ref)
	if wtErr == nil {
		o.logger.Debug("Created comparison worktree", map[string]interface{}{
			"path": wtPath,
			"ref":  ref,
		})
		return &Environment{
			RepoDir:      repoDir,
			WorkDir:      wtPath,
			Ref:          ref,
			state:        StatePrepared,
			worktreePath: wtPath,
		}, nil
	}
	o.logger.Warn("Worktree creation failed, falling back to in-place checkout", map[string]interface{}{
		"ref":   ref,
		"error": wtErr.Error(),
	})

	prev, err := gitrepo.CurrentRef(repoDir)
	if err != nil {
		return nil, errors.New(errors.EnvPrepFailed, "could not determine current ref before checkout", err)
	}

	if err := gitrepo.Checkout(repoDir, ref); err != nil {
		return nil, errors.New(errors.EnvPrepFailed, "checkout of comparison ref failed", err).
			WithDetails(map[string]string{"ref": ref})
	}

	return &Environment{
		RepoDir:    repoDir,
		WorkDir:    repoDir,
		Ref:        ref,
		state:      StatePrepared,
		restoreRef: prev,
	}, nil
}

// RunBuildCommands runs build/install commands inside the environment.
// Failures are logged as warnings, not escalated: older revisions may
// legitimately fail to build with current tooling.
func (o *Orchestrator) RunBuildCommands(ctx context.Context, env *Environment, commands []string, extraEnv map[string]string) {
	procEnv := MergeEnv(os.Environ(), extraEnv)
	for _, command := range commands {
		o.logger.Info("Running build command", map[string]interface{}{
			"command": command,
			"dir":     env.WorkDir,
		})
		if out, err := RunCommand(ctx, command, env.WorkDir, procEnv); err != nil {
			o.logger.Warn("Build command failed, continuing", map[string]interface{}{
				"command": command,
				"error":   err.Error(),
				"output":  string(out),
			})
		}
	}
}

// RunHook runs a pre/post test command with an optional settle delay.
// The caller decides whether a failure propagates; post-test hook
// failures never do.
func (o *Orchestrator) RunHook(ctx context.Context, env *Environment, command string, settle time.Duration, extraEnv map[string]string) error {
	if command == "" {
		return nil
	}

	out, err := RunCommand(ctx, command, env.WorkDir, MergeEnv(os.Environ(), extraEnv))
	if err != nil {
		return fmt.Errorf("hook %q failed: %w (output: %s)", command, err, out)
	}
	if settle > 0 {
		select {
		case <-time.After(settle):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Teardown releases whatever PrepareComparison created: the linked
// worktree is removed, or the repository is restored to the previous
// ref. Teardown is best-effort and idempotent; failures are logged.
func (o *Orchestrator) Teardown(env *Environment) {
	if env == nil || env.state == StateTornDown {
		return
	}
	env.state = StateTornDown

	if env.worktreePath != "" {
		if err := gitrepo.RemoveWorktree(env.RepoDir, env.worktreePath); err != nil {
			o.logger.Warn("Failed to remove comparison worktree", map[string]interface{}{
				"path":  env.worktreePath,
				"error": err.Error(),
			})
		}
		return
	}

	if env.restoreRef != "" {
		if err := gitrepo.Checkout(env.RepoDir, env.restoreRef); err != nil {
			o.logger.Error("Failed to restore previous ref after comparison", map[string]interface{}{
				"ref":   env.restoreRef,
				"error": err.Error(),
			})
		}
	}
}

// StartServer spawns a server via its shell start command, waits for the
// settle delay, and verifies the process is still alive. Premature exit
// is fatal for the probe that needed the server.
func (o *Orchestrator) StartServer(ctx context.Context, command, dir string, extraEnv map[string]string, settle time.Duration) (ProcessHandle, error) {
	handle, err := StartShell(command, dir, MergeEnv(os.Environ(), extraEnv))
	if err != nil {
		return nil, errors.New(errors.ProcessExited, "failed to start server process", err)
	}

	o.logger.Info("Started server process", map[string]interface{}{
		"pid":     handle.PID(),
		"command": command,
	})

	if settle > 0 {
		select {
		case <-time.After(settle):
		case <-ctx.Done():
			o.StopServer(handle)
			return nil, ctx.Err()
		}
	}

	if !handle.IsRunning() {
		return nil, errors.New(errors.ProcessExited, "server process exited before it could be probed", nil).
			WithDetails(map[string]interface{}{"command": command})
	}

	return handle, nil
}

// StopServer terminates a server process group: graceful signal, grace
// period, then force kill. Best-effort; the process may already be gone.
func (o *Orchestrator) StopServer(handle ProcessHandle) {
	if handle == nil || !handle.IsRunning() {
		return
	}

	if err := handle.Terminate(); err != nil {
		o.logger.Debug("Graceful terminate failed", map[string]interface{}{
			"pid":   handle.PID(),
			"error": err.Error(),
		})
	}

	deadline := time.Now().Add(o.grace)
	for handle.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	if handle.IsRunning() {
		if err := handle.Kill(); err != nil {
			o.logger.Warn("Failed to kill server process group", map[string]interface{}{
				"pid":   handle.PID(),
				"error": err.Error(),
			})
		}
	}
}
