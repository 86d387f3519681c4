//go:build !unix

package service

import "os/exec"

// setProcessGroup is a no-op, only the direct child is killed on cancel.
func setProcessGroup(*exec.Cmd) {}
