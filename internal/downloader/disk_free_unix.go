//go:build !windows

package downloader

import (
	"os"

	"golang.org/x/sys/unix"
)

// getFreeDiskSpace returns bytes available to unprivileged users, or 0 if
// it cannot be determined.
func getFreeDiskSpace(path string) uint64 {
	stat, err := os.Stat(path)
	if err != nil || !stat.IsDir() {
		return 0
	}

	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return 0
	}

	return uint64(fs.Bavail) * uint64(fs.Bsize)
}
