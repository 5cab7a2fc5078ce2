//go:build !unix

package direct

import "os/exec"

// Without process groups the default Cancel kills the direct child only.
func setProcessGroup(cmd *exec.Cmd) {}
