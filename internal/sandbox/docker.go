package sandbox

import (
	"context"
	"fmt"
	"os/exec"
)

// DockerSandbox runs commands in throwaway Docker containers with the
// workspace bind-mounted at /workspace. The image comes from the Spec, so
// each language profile picks its own toolchain image.
type DockerSandbox struct {
	Policy Policy
}

// NewDockerSandbox creates a containerized sandbox under policy.
func NewDockerSandbox(policy Policy) *DockerSandbox {
	return &DockerSandbox{Policy: policy}
}

func (d *DockerSandbox) Command(ctx context.Context, spec Spec) *exec.Cmd {
	args := []string{"run", "--rm"}
	if spec.Name != "" {
		args = append(args, "--name", spec.Name)
	}
	if spec.Interactive {
		args = append(args, "-i")
	}
	if !d.Policy.Network {
		args = append(args, "--network", "none")
	}
	if d.Policy.CPUs != "" {
		args = append(args, "--cpus", d.Policy.CPUs)
	}
	if d.Policy.MaxMemory != "" {
		args = append(args, "--memory", d.Policy.MaxMemory)
	}
	if d.Policy.PidsLimit > 0 {
		args = append(args, "--pids-limit", fmt.Sprintf("%d", d.Policy.PidsLimit))
	}
	for _, env := range spec.Env {
		args = append(args, "--env", env)
	}
	args = append(args,
		"-v", spec.Dir+":/workspace:rw",
		"-w", "/workspace",
		spec.Image,
		"bash", "-lc", spec.Shell,
	)
	return exec.CommandContext(ctx, "docker", args...)
}

// Kill stops the named container. Killing the docker CLI process alone
// leaves the container running, so this goes through the daemon.
func (d *DockerSandbox) Kill(ctx context.Context, spec Spec) error {
	if spec.Name == "" {
		return nil
	}
	return exec.CommandContext(ctx, "docker", "kill", spec.Name).Run()
}
