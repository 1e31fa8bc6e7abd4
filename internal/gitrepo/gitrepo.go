// Package gitrepo provides the version-control primitives the
// environment orchestrator needs: worktree creation and removal,
// in-place checkout with ref restore, and display-name resolution.
// All operations shell out to git.
package gitrepo

import (
	"bytes"
	"os/exec"
	"strings"

	"mcpdrift/internal/errors"
)

// run executes a git command in dir and returns trimmed stdout.
func run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", errors.New(errors.GitUnavailable, "git "+args[0]+" failed: "+msg, err)
		}
		return "", errors.New(errors.GitUnavailable, "git "+args[0]+" failed", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// IsRepository checks if the given path is inside a git repository
func IsRepository(dir string) bool {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = dir
	return cmd.Run() == nil
}

// Root finds the repository root from the given directory
func Root(dir string) (string, error) {
	root, err := run(dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", errors.New(errors.GitUnavailable, "not a git repository", err)
	}
	return root, nil
}

// CurrentRef returns the checked-out branch name, or the commit hash
// when HEAD is detached. The returned value is usable as a checkout
// target for restoring the previous state.
func CurrentRef(dir string) (string, error) {
	ref, err := run(dir, "symbolic-ref", "--short", "-q", "HEAD")
	if err == nil && ref != "" {
		return ref, nil
	}
	return run(dir, "rev-parse", "HEAD")
}

// ResolveCommit resolves a revision to its full commit hash
func ResolveCommit(dir, rev string) (string, error) {
	return run(dir, "rev-parse", rev+"^{commit}")
}

// DisplayName resolves a human-readable name for a revision. Branch and
// tag names are preferred; detached or raw revisions fall back to the
// abbreviated commit hash.
func DisplayName(dir, rev string) string {
	name, err := run(dir, "rev-parse", "--abbrev-ref", rev)
	if err == nil && name != "" && name != "HEAD" {
		return name
	}

	short, err := run(dir, "rev-parse", "--short", rev)
	if err == nil && short != "" {
		return short
	}
	return rev
}

// AddWorktree creates a detached linked worktree for rev at path.
// Fails when the revision is already checked out elsewhere or the path
// exists; callers fall back to an in-place checkout.
func AddWorktree(dir, path, rev string) error {
	_, err := run(dir, "worktree", "add", "--detach", path, rev)
	return err
}

// RemoveWorktree removes a linked worktree, discarding its local state
func RemoveWorktree(dir, path string) error {
	_, err := run(dir, "worktree", "remove", "--force", path)
	return err
}

// Checkout switches the working tree to rev in place
func Checkout(dir, rev string) error {
	_, err := run(dir, "checkout", rev)
	return err
}

// State captures the identity of a working tree at probe time. It is
// recorded in comparison results so a reviewer can tell what the
// "current" side actually was.
type State struct {
	HeadCommit string `json:"headCommit"`
	Ref        string `json:"ref"`
	Dirty      bool   `json:"dirty"`
}

// CaptureState computes the current working tree state
func CaptureState(dir string) (*State, error) {
	head, err := run(dir, "rev-parse", "HEAD")
	if err != nil {
		return nil, err
	}

	ref, err := CurrentRef(dir)
	if err != nil {
		return nil, err
	}

	status, err := run(dir, "status", "--porcelain")
	if err != nil {
		return nil, err
	}

	return &State{
		HeadCommit: head,
		Ref:        ref,
		Dirty:      status != "",
	}, nil
}
