// Package config loads runbox.yaml via viper, with defaults that make a
// bare install work in local sandbox mode.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/michaelbrown/runbox/internal/sandbox"
	"github.com/michaelbrown/runbox/internal/workspace"
)

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type WorkspaceConfig struct {
	Root string `mapstructure:"root"`
}

// SandboxConfig selects the isolation boundary and its resource bounds.
// Mode is "docker" or "local".
type SandboxConfig struct {
	Mode      string `mapstructure:"mode"`
	MaxMemory string `mapstructure:"max_memory"`
	CPUs      string `mapstructure:"cpus"`
	PidsLimit int    `mapstructure:"pids_limit"`
	Network   bool   `mapstructure:"network"`
	CPUSecs   int    `mapstructure:"cpu_secs"`
}

type CompileConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	// TTL bounds how long an unclaimed token stays valid.
	TTL time.Duration `mapstructure:"ttl"`
	// MaxDuration force-kills a run after this wall-clock time; 0 = off.
	MaxDuration time.Duration `mapstructure:"max_duration"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LanguagesConfig struct {
	// Dir holds extra YAML language profiles merged over the builtins.
	Dir string `mapstructure:"dir"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Compile   CompileConfig   `mapstructure:"compile"`
	Session   SessionConfig   `mapstructure:"session"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Log       LogConfig       `mapstructure:"log"`
	Languages LanguagesConfig `mapstructure:"languages"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("runbox")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.runbox")

	v.SetDefault("server.port", 8080)
	v.SetDefault("workspace.root", workspace.WorkspaceRoot())
	v.SetDefault("sandbox.mode", "docker")
	v.SetDefault("sandbox.max_memory", "512m")
	v.SetDefault("sandbox.cpus", "1.0")
	v.SetDefault("sandbox.pids_limit", 256)
	v.SetDefault("sandbox.network", false)
	v.SetDefault("sandbox.cpu_secs", 5)
	v.SetDefault("compile.timeout", "20s")
	v.SetDefault("session.ttl", "10m")
	v.SetDefault("session.max_duration", "0")
	v.SetDefault("storage.db_path", filepath.Join(os.Getenv("HOME"), ".runbox", "runbox.db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file means defaults; anything else is real.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Policy converts the sandbox section into a sandbox.Policy.
func (c *Config) Policy() sandbox.Policy {
	return sandbox.Policy{
		MaxMemory: c.Sandbox.MaxMemory,
		CPUs:      c.Sandbox.CPUs,
		PidsLimit: c.Sandbox.PidsLimit,
		Network:   c.Sandbox.Network,
		CPUSecs:   c.Sandbox.CPUSecs,
	}
}

// NewSandbox constructs the configured isolation boundary.
func (c *Config) NewSandbox() (sandbox.Sandbox, error) {
	switch c.Sandbox.Mode {
	case "docker", "":
		return sandbox.NewDockerSandbox(c.Policy()), nil
	case "local":
		return sandbox.NewLocalSandbox(c.Policy()), nil
	}
	return nil, fmt.Errorf("unknown sandbox mode %q", c.Sandbox.Mode)
}
