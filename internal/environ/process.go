// Package environ manages the two comparison environments: materializing
// the comparison checkout (worktree with in-place fallback), running
// build/install and hook commands, and managing server process
// lifecycles as whole process groups.
package environ

import (
	"context"
	"os/exec"
	"sync"
)

// ProcessHandle abstracts a running server process so the pipeline never
// deals with PIDs or signals directly. Terminate and Kill act on the
// whole process group where the platform supports it.
type ProcessHandle interface {
	// PID returns the process id of the group leader
	PID() int
	// IsRunning reports whether the process has not yet exited
	IsRunning() bool
	// Terminate requests graceful shutdown (SIGTERM to the group)
	Terminate() error
	// Kill forces shutdown (SIGKILL to the group)
	Kill() error
}

type process struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	waitErr error
}

// StartProcess spawns command detached into its own process group so the
// server and any children it forks can be killed as a unit.
func StartProcess(command string, args []string, dir string, env []string) (ProcessHandle, error) {
	cmd := exec.Command(command, args...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.SysProcAttr = sysProcAttr()

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &process{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.done)
	}()

	return p, nil
}

// StartShell spawns a shell command line detached into its own process
// group. Used for startCommand entries in test configurations.
func StartShell(command, dir string, env []string) (ProcessHandle, error) {
	return StartProcess(shellName, []string{shellFlag, command}, dir, env)
}

func (p *process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *process) IsRunning() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *process) Terminate() error {
	if !p.IsRunning() {
		return nil
	}
	return signalGroup(p.PID(), false)
}

func (p *process) Kill() error {
	if !p.IsRunning() {
		return nil
	}
	return signalGroup(p.PID(), true)
}

// RunCommand runs a shell command line to completion in dir with the
// given environment, returning combined output on failure for diagnostics.
func RunCommand(ctx context.Context, command, dir string, env []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, shellName, shellFlag, command)
	cmd.Dir = dir
	cmd.Env = env
	return cmd.CombinedOutput()
}
