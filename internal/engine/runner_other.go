//go:build !unix

package engine

import "os/exec"

// isolate relies on the default cancellation, which kills only the child.
func isolate(cmd *exec.Cmd) {}
