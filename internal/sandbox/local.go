package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// LocalSandbox runs commands as restricted subprocesses on the host. It is
// the degraded mode for environments without Docker: the same logical
// bounds are applied best-effort via ulimit, and network isolation is NOT
// enforced. Use only for development or single-tenant deployments.
type LocalSandbox struct {
	Policy Policy
}

// NewLocalSandbox creates a restricted-subprocess sandbox.
func NewLocalSandbox(policy Policy) *LocalSandbox {
	return &LocalSandbox{Policy: policy}
}

func (l *LocalSandbox) Command(ctx context.Context, spec Spec) *exec.Cmd {
	shell := spec.Shell
	if l.Policy.CPUSecs > 0 {
		shell = fmt.Sprintf("ulimit -t %d; %s", l.Policy.CPUSecs, shell)
	}
	cmd := exec.CommandContext(ctx, "bash", "-lc", shell)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	return cmd
}

// Kill is a no-op: local commands are plain subprocesses and the caller
// signals their process group directly.
func (l *LocalSandbox) Kill(ctx context.Context, spec Spec) error {
	return nil
}
