//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr keeps Ctrl+C in the console from reaching the server
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
