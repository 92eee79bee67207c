// ABOUTME: Resource usage sampling via /proc/<pid>/stat on Linux.
// ABOUTME: Returns resident memory bytes and cumulative CPU time.

//go:build linux

package supervisor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// userHZ is the kernel's USER_HZ; 100 on every supported configuration.
const userHZ = 100

// sampleUsage reads rss and utime+stime for pid from procfs.
func sampleUsage(pid int) (rss uint64, cpu time.Duration, err error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, 0, err
	}

	// comm (field 2) may contain spaces; skip past the closing paren.
	s := string(data)
	idx := strings.LastIndexByte(s, ')')
	if idx < 0 || idx+2 > len(s) {
		return 0, 0, fmt.Errorf("malformed stat for pid %d", pid)
	}
	fields := strings.Fields(s[idx+2:])
	// After comm: field 3 is state, so utime is fields[11], stime fields[12],
	// rss pages fields[21] in this slice.
	if len(fields) < 22 {
		return 0, 0, fmt.Errorf("short stat for pid %d", pid)
	}

	utime, err := strconv.ParseUint(fields[11], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	stime, err := strconv.ParseUint(fields[12], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	pages, err := strconv.ParseInt(fields[21], 10, 64)
	if err != nil {
		return 0, 0, err
	}

	cpu = time.Duration(utime+stime) * time.Second / userHZ
	rss = uint64(pages) * uint64(os.Getpagesize())
	return rss, cpu, nil
}
