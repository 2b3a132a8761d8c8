//go:build !windows

package logger

import (
	"path/filepath"
	"syscall"
)

// diskUsage reports free and total bytes on the filesystem holding path.
// Failures degrade to zeros; statistics are advisory.
func diskUsage(path string) (free, total int64) {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(filepath.Dir(path), &fs); err != nil {
		return 0, 0
	}
	bsize := int64(fs.Bsize)
	return int64(fs.Bavail) * bsize, int64(fs.Blocks) * bsize
}
