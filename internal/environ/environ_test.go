package environ

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"mcpdrift/internal/gitrepo"
	"mcpdrift/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based test, unix only")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestMergeEnv(t *testing.T) {
	tests := []struct {
		name      string
		base      []string
		overrides map[string]string
		want      []string
	}{
		{
			name: "no overrides copies base",
			base: []string{"A=1", "B=2"},
			want: []string{"A=1", "B=2"},
		},
		{
			name:      "override replaces existing",
			base:      []string{"A=1", "B=2"},
			overrides: map[string]string{"A": "changed"},
			want:      []string{"B=2", "A=changed"},
		},
		{
			name:      "new keys appended sorted",
			base:      []string{"A=1"},
			overrides: map[string]string{"Z": "z", "M": "m"},
			want:      []string{"A=1", "M=m", "Z=z"},
		},
		{
			name:      "empty base",
			base:      nil,
			overrides: map[string]string{"ONLY": "v"},
			want:      []string{"ONLY=v"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeEnv(tt.base, tt.overrides)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MergeEnv() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("base not mutated", func(t *testing.T) {
		base := []string{"A=1"}
		_ = MergeEnv(base, map[string]string{"A": "2"})
		if base[0] != "A=1" {
			t.Error("MergeEnv mutated the base slice")
		}
	})
}

func TestProcessLifecycle(t *testing.T) {
	requireShell(t)

	t.Run("terminate running process", func(t *testing.T) {
		handle, err := StartShell("sleep 30", "", os.Environ())
		if err != nil {
			t.Fatalf("StartShell: %v", err)
		}
		if !handle.IsRunning() {
			t.Fatal("process should be running")
		}
		if handle.PID() <= 0 {
			t.Errorf("PID = %d", handle.PID())
		}

		if err := handle.Terminate(); err != nil {
			t.Fatalf("Terminate: %v", err)
		}
		waitExit(t, handle, 2*time.Second)
	})

	t.Run("short-lived process reports exit", func(t *testing.T) {
		handle, err := StartShell("true", "", os.Environ())
		if err != nil {
			t.Fatalf("StartShell: %v", err)
		}
		waitExit(t, handle, 2*time.Second)
		// Signaling an exited process is a no-op, not an error.
		if err := handle.Terminate(); err != nil {
			t.Errorf("Terminate after exit: %v", err)
		}
	})
}

func waitExit(t *testing.T, h ProcessHandle, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for h.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("process did not exit in time")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRunCommand(t *testing.T) {
	requireShell(t)

	dir := t.TempDir()
	out, err := RunCommand(context.Background(), "echo hello > out.txt", dir, os.Environ())
	if err != nil {
		t.Fatalf("RunCommand: %v (%s)", err, out)
	}

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	if err != nil {
		t.Fatalf("command did not run in dir: %v", err)
	}
	if strings.TrimSpace(string(data)) != "hello" {
		t.Errorf("out.txt = %q", data)
	}
}

func TestStartServerPrematureExit(t *testing.T) {
	requireShell(t)

	o := NewOrchestrator(testLogger(), time.Second)
	_, err := o.StartServer(context.Background(), "exit 3", "", nil, 200*time.Millisecond)
	if err == nil {
		t.Fatal("premature exit should be fatal for the probe")
	}
}

func TestStartStopServer(t *testing.T) {
	requireShell(t)

	o := NewOrchestrator(testLogger(), time.Second)
	handle, err := o.StartServer(context.Background(), "sleep 30", "", nil, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("StartServer: %v", err)
	}

	o.StopServer(handle)
	if handle.IsRunning() {
		t.Error("server should be stopped")
	}
	// StopServer on an already-stopped handle is safe.
	o.StopServer(handle)
}

func initTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	git := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	git("init", "-b", "main")
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("base\n"), 0644); err != nil {
		t.Fatal(err)
	}
	git("add", ".")
	git("commit", "-m", "base")
	git("checkout", "-b", "feature")
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("feature\n"), 0644); err != nil {
		t.Fatal(err)
	}
	git("commit", "-am", "feature change")
	return dir
}

func TestPrepareComparisonWorktree(t *testing.T) {
	repo := initTestRepo(t)
	o := NewOrchestrator(testLogger(), time.Second)

	env, err := o.PrepareComparison(repo, "main")
	if err != nil {
		t.Fatalf("PrepareComparison: %v", err)
	}
	defer o.Teardown(env)

	if env.State() != StatePrepared {
		t.Errorf("state = %v, want prepared", env.State())
	}
	if env.WorkDir == repo {
		t.Error("worktree preparation should use a separate directory")
	}
	if env.UsedFallback() {
		t.Error("worktree path should not record a restore ref")
	}

	data, err := os.ReadFile(filepath.Join(env.WorkDir, "f.txt"))
	if err != nil {
		t.Fatalf("worktree content missing: %v", err)
	}
	if string(data) != "base\n" {
		t.Errorf("worktree file = %q, want base revision", data)
	}

	o.Teardown(env)
	if env.State() != StateTornDown {
		t.Errorf("state after teardown = %v", env.State())
	}
	if _, err := os.Stat(env.WorkDir); !os.IsNotExist(err) {
		t.Error("worktree should be removed on teardown")
	}
}

func TestTeardownRestoresRefAfterFallback(t *testing.T) {
	repo := initTestRepo(t)
	o := NewOrchestrator(testLogger(), time.Second)

	prev, err := gitrepo.CurrentRef(repo)
	if err != nil {
		t.Fatal(err)
	}
	if prev != "feature" {
		t.Fatalf("CurrentRef = %q, want feature", prev)
	}

	// The fallback path: comparison ref checked out in place, previous
	// ref recorded for teardown.
	if err := gitrepo.Checkout(repo, "main"); err != nil {
		t.Fatal(err)
	}
	env := &Environment{
		RepoDir:    repo,
		WorkDir:    repo,
		Ref:        "main",
		state:      StatePrepared,
		restoreRef: prev,
	}

	if !env.UsedFallback() {
		t.Error("environment with restore ref should report fallback")
	}
	data, _ := os.ReadFile(filepath.Join(repo, "f.txt"))
	if string(data) != "base\n" {
		t.Errorf("after fallback checkout, f.txt = %q", data)
	}

	o.Teardown(env)

	ref, err := gitrepo.CurrentRef(repo)
	if err != nil {
		t.Fatal(err)
	}
	if ref != "feature" {
		t.Errorf("teardown should restore previous ref, got %q", ref)
	}

	// Teardown is idempotent.
	o.Teardown(env)
}

func TestRunBuildCommandsFailureIsNonFatal(t *testing.T) {
	requireShell(t)

	o := NewOrchestrator(testLogger(), time.Second)
	env := o.Current(t.TempDir())

	// Must not panic or abort on a failing command.
	o.RunBuildCommands(context.Background(), env, []string{"exit 1", "true"}, nil)
}

func TestRunHook(t *testing.T) {
	requireShell(t)

	o := NewOrchestrator(testLogger(), time.Second)
	env := o.Current(t.TempDir())

	if err := o.RunHook(context.Background(), env, "", 0, nil); err != nil {
		t.Errorf("empty hook should be a no-op: %v", err)
	}
	if err := o.RunHook(context.Background(), env, "true", 0, nil); err != nil {
		t.Errorf("hook failed: %v", err)
	}
	if err := o.RunHook(context.Background(), env, "exit 7", 0, nil); err == nil {
		t.Error("failing hook should return an error for the caller to classify")
	}
}
