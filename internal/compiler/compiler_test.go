package compiler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/michaelbrown/runbox/internal/language"
	"github.com/michaelbrown/runbox/internal/logging"
	"github.com/michaelbrown/runbox/internal/sandbox"
	"github.com/michaelbrown/runbox/internal/workspace"
)

const diagPattern = `(?m)^(.+?):(\d+):(?:(\d+):)?\s+(error|warning):\s+(.*)$`

func testWorkspace(t *testing.T) (*workspace.Store, *workspace.Workspace) {
	t.Helper()
	store, err := workspace.NewStore(t.TempDir(), logging.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ws, err := store.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return store, ws
}

// fakeToolchain registers a compiled language whose "compiler" is the given
// shell command, so tests exercise the invoker without a real toolchain.
func fakeToolchain(t *testing.T, compileCmd string) *language.Language {
	t.Helper()
	s := language.Set{}
	l := &language.Language{
		Name:        "fake",
		Compiled:    true,
		CompileCmd:  compileCmd,
		RunCmd:      "true",
		DiagPattern: diagPattern,
	}
	if err := s.Register(l); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return s.Get("fake")
}

func testInvoker(t *testing.T, timeout time.Duration) *Invoker {
	t.Helper()
	return New(sandbox.NewLocalSandbox(sandbox.Policy{}), timeout, logging.Nop())
}

func TestCompileRunOnlyLanguage(t *testing.T) {
	_, ws := testWorkspace(t)
	inv := testInvoker(t, 0)

	lang := &language.Language{Name: "python", RunCmd: "python3 -u {entry}"}
	res, err := inv.Compile(context.Background(), ws, lang)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !res.OK {
		t.Error("run-only language should compile trivially")
	}
	if len(res.Diagnostics) != 0 {
		t.Errorf("got %d diagnostics, want 0", len(res.Diagnostics))
	}
}

func TestCompileSuccess(t *testing.T) {
	_, ws := testWorkspace(t)
	inv := testInvoker(t, 5*time.Second)

	lang := fakeToolchain(t, "echo building; true")
	res, err := inv.Compile(context.Background(), ws, lang)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !res.OK {
		t.Errorf("OK = false, log: %q", res.Log)
	}
	if !strings.Contains(res.Log, "building") {
		t.Errorf("log %q missing toolchain output", res.Log)
	}
}

func TestCompileFailureYieldsDiagnostics(t *testing.T) {
	_, ws := testWorkspace(t)
	inv := testInvoker(t, 5*time.Second)

	lang := fakeToolchain(t,
		`printf 'Main.java:3:10: error: missing semicolon\n'; exit 1`)
	res, err := inv.Compile(context.Background(), ws, lang)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if res.OK {
		t.Error("OK = true for a failed compile")
	}
	if len(res.Diagnostics) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(res.Diagnostics))
	}
	d := res.Diagnostics[0]
	if d.File != "Main.java" || d.Line != 3 || d.Column != 10 {
		t.Errorf("diagnostic position = %s:%d:%d, want Main.java:3:10", d.File, d.Line, d.Column)
	}
	if !strings.Contains(res.Log, "missing semicolon") {
		t.Errorf("raw log %q not preserved", res.Log)
	}
}

func TestCompileWarningsAreOK(t *testing.T) {
	_, ws := testWorkspace(t)
	inv := testInvoker(t, 5*time.Second)

	lang := fakeToolchain(t,
		`printf 'Main.java:7: warning: unchecked cast\n'; true`)
	res, err := inv.Compile(context.Background(), ws, lang)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !res.OK {
		t.Error("warnings alone should not fail the compile")
	}
	if len(res.Diagnostics) != 1 {
		t.Errorf("got %d diagnostics, want 1", len(res.Diagnostics))
	}
}

// recordingSandbox wraps a sandbox and records the Kill calls it receives.
type recordingSandbox struct {
	sandbox.Sandbox

	mu    sync.Mutex
	kills []string
}

func (r *recordingSandbox) Kill(ctx context.Context, spec sandbox.Spec) error {
	r.mu.Lock()
	r.kills = append(r.kills, spec.Name)
	r.mu.Unlock()
	return r.Sandbox.Kill(ctx, spec)
}

func TestCompileTimeout(t *testing.T) {
	_, ws := testWorkspace(t)
	sb := &recordingSandbox{Sandbox: sandbox.NewLocalSandbox(sandbox.Policy{})}
	inv := New(sb, 200*time.Millisecond, logging.Nop())

	lang := fakeToolchain(t, "sleep 10")
	res, err := inv.Compile(context.Background(), ws, lang)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if res.OK {
		t.Error("timed-out compile reported OK")
	}
	if !strings.Contains(res.Log, "timed out") {
		t.Errorf("log %q should mention the timeout", res.Log)
	}
	if len(res.Diagnostics) != 0 {
		t.Errorf("got %d diagnostics from a timeout, want 0", len(res.Diagnostics))
	}

	// The context kill alone cannot stop a containerized toolchain; the
	// invoker must also tell the sandbox layer.
	sb.mu.Lock()
	kills := append([]string(nil), sb.kills...)
	sb.mu.Unlock()
	if len(kills) != 1 {
		t.Fatalf("sandbox Kill called %d times, want 1", len(kills))
	}
	if want := "runbox-build-" + ws.ID; kills[0] != want {
		t.Errorf("sandbox kill name = %q, want %q", kills[0], want)
	}
}

func TestCompileUnparseableFailure(t *testing.T) {
	_, ws := testWorkspace(t)
	inv := testInvoker(t, 5*time.Second)

	// A toolchain crash with no structured output: OK with zero diagnostics
	// of error severity, but the raw log survives for the client.
	lang := fakeToolchain(t, `printf 'internal compiler panic\n'; exit 2`)
	res, err := inv.Compile(context.Background(), ws, lang)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !strings.Contains(res.Log, "internal compiler panic") {
		t.Errorf("raw log %q not preserved", res.Log)
	}
}
