//go:build !unix

package renderer

import "os/exec"

// killGroupOnCancel falls back to killing the direct child; WaitDelay
// still bounds the wait for inherited pipes.
func killGroupOnCancel(cmd *exec.Cmd) {}
