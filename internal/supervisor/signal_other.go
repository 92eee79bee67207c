// ABOUTME: Process control stubs for platforms without POSIX job signals.
// ABOUTME: Pause/resume report ErrUnsupported; stop falls through to Kill.

//go:build !unix

package supervisor

import "os"

func suspendProcess(pid int) error {
	return ErrUnsupported
}

func resumeProcess(pid int) error {
	return ErrUnsupported
}

func terminateProcess(proc *os.Process) error {
	// No SIGTERM equivalent; the caller force-kills after this.
	return ErrUnsupported
}
