// ABOUTME: Resource sampling stub for platforms without procfs.
// ABOUTME: Memory/CPU limits are unenforced here; wallclock still applies.

//go:build !linux

package supervisor

import "time"

func sampleUsage(pid int) (rss uint64, cpu time.Duration, err error) {
	return 0, 0, ErrUnsupported
}
