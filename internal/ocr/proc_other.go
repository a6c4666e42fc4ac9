//go:build !unix

package ocr

import "os/exec"

func detachFromTerminalSignals(*exec.Cmd) {}
