//go:build windows

package handler

import (
	"golang.org/x/sys/windows"
)

// getDiskStats returns the total and available bytes of the volume holding path.
func getDiskStats(path string) (total, free int64) {
	ptr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, 0
	}
	var freeBytes, totalBytes, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &freeBytes, &totalBytes, &totalFree); err != nil {
		return 0, 0
	}
	return int64(totalBytes), int64(freeBytes)
}

// getCPUUsage is not tracked on Windows.
func getCPUUsage() float64 {
	return 0
}
