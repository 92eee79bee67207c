// ABOUTME: Unix process control — SIGSTOP/SIGCONT suspension and SIGTERM.
// ABOUTME: The approximate pause capability described in the package docs.

//go:build unix

package supervisor

import (
	"os"
	"syscall"
)

func suspendProcess(pid int) error {
	return syscall.Kill(pid, syscall.SIGSTOP)
}

func resumeProcess(pid int) error {
	return syscall.Kill(pid, syscall.SIGCONT)
}

func terminateProcess(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}
