package sandbox

// Policy defines resource limits applied to sandboxed commands.
type Policy struct {
	MaxMemory string // Docker memory limit (e.g. "512m")
	CPUs      string // Docker --cpus value (e.g. "1.0")
	PidsLimit int    // Docker --pids-limit value
	Network   bool   // Whether network access is allowed
	CPUSecs   int    // Local-mode ulimit -t value, seconds; 0 = unlimited
}

// DefaultPolicy returns safe defaults for interactive code execution.
func DefaultPolicy() Policy {
	return Policy{
		MaxMemory: "512m",
		CPUs:      "1.0",
		PidsLimit: 256,
		Network:   false,
		CPUSecs:   5,
	}
}
