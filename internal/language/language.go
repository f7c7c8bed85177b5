// Package language defines toolchain profiles: how to compile and run a
// submission for each supported language, which sandbox image to use, and
// how to parse the toolchain's diagnostic output.
//
// Adding a language means adding one profile, not touching the engine.
package language

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Language describes one toolchain.
//
// CompileCmd and RunCmd are shell command lines executed inside the session
// workspace via the sandbox. RunCmd may contain the placeholder {entry},
// replaced with the request's entry point.
type Language struct {
	Name     string `yaml:"name"`
	Image    string `yaml:"image"`
	Compiled bool   `yaml:"compiled"`

	CompileCmd string `yaml:"compile_cmd"`
	RunCmd     string `yaml:"run_cmd"`

	// DiagPattern matches one toolchain diagnostic line with capture groups
	// file, line, optional column, severity, message.
	DiagPattern string `yaml:"diag_pattern"`

	// Banner is a line prefix stripped from the process output stream
	// before it reaches the client (e.g. the JVM JAVA_TOOL_OPTIONS notice).
	Banner string `yaml:"banner"`

	// Env is extra environment applied to compile and run commands.
	Env []string `yaml:"env"`

	diagRe *regexp.Regexp
}

var entryRe = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]*$`)

// ValidEntryPoint reports whether name is safe to substitute into a run
// command. Rejects anything that could escape into the shell.
func ValidEntryPoint(name string) bool {
	return entryRe.MatchString(name)
}

// RunCommand returns the shell command line for running entry.
func (l *Language) RunCommand(entry string) string {
	return strings.ReplaceAll(l.RunCmd, "{entry}", entry)
}

func (l *Language) compile() error {
	if l.Name == "" {
		return fmt.Errorf("language profile missing name")
	}
	if l.RunCmd == "" {
		return fmt.Errorf("language %s: missing run_cmd", l.Name)
	}
	if l.Compiled && l.CompileCmd == "" {
		return fmt.Errorf("language %s: compiled but missing compile_cmd", l.Name)
	}
	if l.DiagPattern != "" {
		re, err := regexp.Compile(l.DiagPattern)
		if err != nil {
			return fmt.Errorf("language %s: diag_pattern: %w", l.Name, err)
		}
		l.diagRe = re
	}
	return nil
}

// Set maps language names to profiles.
type Set map[string]*Language

// Get returns the profile for name, or nil.
func (s Set) Get(name string) *Language {
	return s[strings.ToLower(name)]
}

// Register adds or replaces a profile after validating it.
func (s Set) Register(l *Language) error {
	if err := l.compile(); err != nil {
		return err
	}
	s[strings.ToLower(l.Name)] = l
	return nil
}

// javacDiagPattern matches javac's file:line[:column]: severity: message form.
const javacDiagPattern = `(?m)^(.+?):(\d+):(?:(\d+):)?\s+(error|warning):\s+(.*)$`

// Builtin returns the compiled-in java and python profiles.
func Builtin() Set {
	s := Set{}
	must := func(l *Language) {
		if err := s.Register(l); err != nil {
			panic(err)
		}
	}

	must(&Language{
		Name:     "java",
		Image:    "runbox-java:17",
		Compiled: true,
		CompileCmd: `shopt -s nullglob; files=( *.java ); ` +
			`if (( ${#files[@]} )); then javac -Xlint:all -Xdiags:verbose "${files[@]}" 2>&1; ` +
			`else echo "No .java files"; fi; true`,
		RunCmd:      "java {entry}",
		DiagPattern: javacDiagPattern,
		Banner:      "Picked up JAVA_TOOL_OPTIONS:",
		Env: []string{
			"JAVA_TOOL_OPTIONS=-Xms32m -Xmx128m -XX:MaxMetaspaceSize=64m -XX:+UseSerialGC -Xss512k",
		},
	})

	must(&Language{
		Name:   "python",
		Image:  "python:3.12-slim",
		RunCmd: "python3 -u {entry}",
	})

	return s
}

// LoadDir merges YAML profiles from dir into the set. Missing dir is not an
// error so a bare install works with the builtins alone.
func (s Set) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading language dir %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading profile %s: %w", path, err)
		}
		var l Language
		if err := yaml.Unmarshal(data, &l); err != nil {
			return fmt.Errorf("parsing profile %s: %w", path, err)
		}
		if err := s.Register(&l); err != nil {
			return fmt.Errorf("profile %s: %w", path, err)
		}
	}
	return nil
}
