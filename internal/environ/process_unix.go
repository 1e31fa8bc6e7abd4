//go:build !windows

package environ

import (
	"syscall"
)

const (
	shellName = "sh"
	shellFlag = "-c"
)

// sysProcAttr places spawned servers in their own process group so the
// group can be signaled as a unit.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup sends SIGTERM (or SIGKILL when hard) to the process group
// via the negated pid.
func signalGroup(pid int, hard bool) error {
	if pid <= 0 {
		return nil
	}
	sig := syscall.SIGTERM
	if hard {
		sig = syscall.SIGKILL
	}
	return syscall.Kill(-pid, sig)
}
