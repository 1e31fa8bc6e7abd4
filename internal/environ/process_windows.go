//go:build windows

package environ

import (
	"os"
	"syscall"
)

const (
	shellName = "cmd"
	shellFlag = "/C"
)

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}

// signalGroup kills the single process; Windows has no process groups in
// the POSIX sense, so graceful termination degrades to a hard kill.
func signalGroup(pid int, hard bool) error {
	if pid <= 0 {
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
