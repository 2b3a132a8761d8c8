//go:build windows

package procutil

import (
	"os"
	"syscall"
)

const processQueryLimitedInformation = 0x1000

// GracefulTerminate terminates the process. Windows has no SIGTERM
// equivalent that Process.Signal supports, so this maps to TerminateProcess.
func GracefulTerminate(p *os.Process) error {
	return p.Kill()
}

// IsProcessAlive reports whether a process with the given pid is still
// running by opening a handle with PROCESS_QUERY_LIMITED_INFORMATION.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := syscall.OpenProcess(processQueryLimitedInformation, false, uint32(pid))
	if err != nil {
		return false
	}
	syscall.CloseHandle(h)
	return true
}
