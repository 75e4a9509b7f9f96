//go:build unix

package sandbox

import (
	"os/exec"
	"syscall"
)

// processMemoryMB reads peak RSS from the exited process, when available
func processMemoryMB(cmd *exec.Cmd) *float64 {
	if cmd.ProcessState == nil {
		return nil
	}
	rusage, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage)
	if !ok {
		return nil
	}
	// Maxrss is kilobytes on Linux
	mb := float64(rusage.Maxrss) / 1024.0
	return &mb
}
