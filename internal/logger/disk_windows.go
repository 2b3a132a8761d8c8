//go:build windows

package logger

// diskUsage is not implemented on Windows; the statistics are advisory.
func diskUsage(string) (free, total int64) {
	return 0, 0
}
