// Package sandbox builds commands that run untrusted code inside an
// isolation boundary: a Docker container with no network and bounded
// cpu/memory/pids, or a restricted local subprocess with the same logical
// bounds applied best-effort.
//
// The compiler invoker and the execution engine both depend only on the
// Sandbox interface; which boundary is in force is a config decision.
package sandbox

import (
	"context"
	"os/exec"
)

// Spec describes one command to run under the isolation boundary.
type Spec struct {
	// Dir is the host workspace directory. It is the command's working
	// directory so relative file I/O from user code resolves there.
	Dir string

	// Shell is the command line, run via bash -lc.
	Shell string

	// Env is extra environment (KEY=VALUE) for the command.
	Env []string

	// Image is the container image for containerized sandboxes; ignored
	// by the local sandbox.
	Image string

	// Name identifies the workload to the isolation layer (the container
	// name in docker mode) so it can be killed out-of-band.
	Name string

	// Interactive keeps stdin open (containerized runs need -i).
	Interactive bool
}

// Sandbox constructs exec.Cmds that honor the isolation boundary. The
// caller owns the returned command: it decides whether to attach a pipe, a
// pseudo-terminal, or buffers, and it is responsible for reaping it.
//
// Kill stops whatever the boundary runs beyond the local command. In
// docker mode the CLI process only proxies the container, so signaling it
// does not stop the workload; Kill reaches the container itself.
type Sandbox interface {
	Command(ctx context.Context, spec Spec) *exec.Cmd
	Kill(ctx context.Context, spec Spec) error
}
