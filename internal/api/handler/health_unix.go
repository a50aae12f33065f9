//go:build !windows

package handler

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// CPU tracking state for the delta between polls.
var (
	cpuMu          sync.Mutex
	lastCPUTime    time.Duration
	lastWallTime   time.Time
	cpuInitialized bool
)

// getDiskStats returns the total and available bytes of the volume holding path.
func getDiskStats(path string) (total, free int64) {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return 0, 0
	}
	return int64(fs.Blocks) * int64(fs.Bsize), int64(fs.Bavail) * int64(fs.Bsize)
}

// getCPUUsage returns process CPU usage since the previous call, capped at
// one core. The first call returns 0.
func getCPUUsage() float64 {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	cpu := time.Duration(ru.Utime.Nano()) + time.Duration(ru.Stime.Nano())
	now := time.Now()

	cpuMu.Lock()
	defer cpuMu.Unlock()

	if !cpuInitialized {
		lastCPUTime, lastWallTime, cpuInitialized = cpu, now, true
		return 0
	}

	cpuDelta := cpu - lastCPUTime
	wallDelta := now.Sub(lastWallTime)
	lastCPUTime, lastWallTime = cpu, now

	if wallDelta <= 0 {
		return 0
	}
	pct := float64(cpuDelta) / float64(wallDelta) * 100
	return min(max(pct, 0), 100)
}
