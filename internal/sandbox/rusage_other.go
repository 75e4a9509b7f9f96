//go:build !unix

package sandbox

import "os/exec"

func processMemoryMB(_ *exec.Cmd) *float64 {
	return nil
}
