//go:build windows

package downloader

import "os/exec"

// killProcessTree keeps the default kill of the direct child. Pipes held by
// grandchildren are released by cmd.WaitDelay.
func killProcessTree(cmd *exec.Cmd) {}
