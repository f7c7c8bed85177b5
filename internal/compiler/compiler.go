// Package compiler invokes a language toolchain over a workspace inside
// the sandbox and turns its output into structured diagnostics.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/michaelbrown/runbox/internal/errs"
	"github.com/michaelbrown/runbox/internal/language"
	"github.com/michaelbrown/runbox/internal/sandbox"
	"github.com/michaelbrown/runbox/internal/workspace"
)

// Result of one compile job. OK iff no diagnostic has error severity.
// Log preserves the raw toolchain output verbatim, parsed or not.
type Result struct {
	OK          bool
	Diagnostics []language.Diagnostic
	Log         string
}

// Invoker runs toolchains synchronously with a hard timeout.
type Invoker struct {
	sb      sandbox.Sandbox
	timeout time.Duration
	log     *zap.SugaredLogger
}

// New creates an invoker. A timeout of 0 falls back to 20s.
func New(sb sandbox.Sandbox, timeout time.Duration, log *zap.SugaredLogger) *Invoker {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Invoker{sb: sb, timeout: timeout, log: log}
}

// Compile runs the language's compile command in the workspace. The caller
// blocks until the toolchain exits or the timeout kills it; a timeout
// yields a diagnostic-free failure rather than an error so the client
// still gets a uniform CompileResult.
//
// Run-only languages compile trivially: OK with no diagnostics.
func (i *Invoker) Compile(ctx context.Context, ws *workspace.Workspace, lang *language.Language) (*Result, error) {
	if !lang.Compiled {
		return &Result{OK: true}, nil
	}

	cctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	spec := sandbox.Spec{
		Dir:   ws.Path,
		Shell: lang.CompileCmd,
		Env:   lang.Env,
		Image: lang.Image,
		Name:  "runbox-build-" + ws.ID,
	}
	cmd := i.sb.Command(cctx, spec)

	start := time.Now()
	out, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if cctx.Err() == context.DeadlineExceeded {
		i.log.Warnw("compile timed out", "workspace", ws.ID, "language", lang.Name, "after", elapsed)
		// The context kill only reaches the local command; make sure the
		// isolation layer stops the toolchain itself.
		if kerr := i.sb.Kill(context.Background(), spec); kerr != nil {
			i.log.Debugw("sandbox kill failed", "workspace", ws.ID, "err", kerr)
		}
		return &Result{
			OK:  false,
			Log: fmt.Sprintf("compilation timed out after %s", i.timeout),
		}, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// The toolchain never ran: missing docker binary, missing
			// bash, unreadable workspace.
			return nil, errs.Wrap(err, errs.KindResource, "invoking toolchain")
		}
		// Nonzero toolchain exit still carries diagnostics; fall through.
	}

	raw := string(out)
	diags := lang.ParseDiagnostics(raw)
	res := &Result{
		OK:          language.Clean(diags),
		Diagnostics: diags,
		Log:         raw,
	}
	i.log.Infow("compile finished",
		"workspace", ws.ID, "language", lang.Name,
		"ok", res.OK, "diagnostics", len(diags), "took", elapsed)
	return res, nil
}
