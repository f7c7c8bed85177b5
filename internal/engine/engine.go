// Package engine owns the full lifecycle of one interactive sandboxed
// process: spawn attached to a pseudo-terminal, bidirectional relay,
// deadline enforcement, and exactly-once cleanup.
package engine

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/michaelbrown/runbox/internal/protocol"
	"github.com/michaelbrown/runbox/internal/sandbox"
	"github.com/michaelbrown/runbox/internal/session"
	"github.com/michaelbrown/runbox/internal/workspace"
)

// State of one engine. Transitions:
//
//	Idle -> Spawning -> Running -> {Exited, Killed, ChannelClosed} -> Cleaned
//
// Spawn failure goes straight from Spawning to Cleaned after an exit frame.
type State int32

const (
	StateIdle State = iota
	StateSpawning
	StateRunning
	StateExited
	StateKilled
	StateChannelClosed
	StateCleaned
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpawning:
		return "spawning"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	case StateChannelClosed:
		return "channel-closed"
	case StateCleaned:
		return "cleaned"
	}
	return "unknown"
}

// Config tunes one engine instance.
type Config struct {
	// Cols and Rows size the pseudo-terminal; zero means 80x24.
	Cols, Rows int

	// MaxDuration force-kills the process after this wall-clock time.
	// Zero disables the deadline.
	MaxDuration time.Duration
}

// Engine drives exactly one claimed session. It is created by the channel
// gateway after a successful claim; no other component may touch the
// process it owns.
type Engine struct {
	sess  *session.Session
	sb    sandbox.Sandbox
	store *workspace.Store
	cfg   Config
	log   *zap.SugaredLogger

	// onCleaned, if set, observes the final exit code once cleanup ran.
	onCleaned func(exitCode int)

	events chan protocol.Frame

	mu       sync.Mutex
	state    State
	cmd      *exec.Cmd
	ptmx     *os.File
	spec     sandbox.Spec
	pending  []byte // stdin received before the PTY existed
	killed   bool
	killCode int    // synthetic exit code override, 0 = none
	killMsg  string // status frame sent before the exit frame, "" = none
	killNext State  // state the kill targets once the process is reaped

	deadline *time.Timer

	cleanupOnce sync.Once
	done        chan struct{}
}

// New creates an engine for a claimed session. Run must be called exactly
// once, normally on its own goroutine.
func New(sess *session.Session, sb sandbox.Sandbox, store *workspace.Store, cfg Config, log *zap.SugaredLogger, onCleaned func(int)) *Engine {
	if cfg.Cols <= 0 {
		cfg.Cols = 80
	}
	if cfg.Rows <= 0 {
		cfg.Rows = 24
	}
	return &Engine{
		sess:      sess,
		sb:        sb,
		store:     store,
		cfg:       cfg,
		log:       log,
		onCleaned: onCleaned,
		events:    make(chan protocol.Frame, 64),
		done:      make(chan struct{}),
	}
}

// Events returns the engine's outgoing frame stream. The channel is closed
// after the terminal exit frame; the consumer must drain it even after the
// client connection is gone, or the relay could stall.
func (e *Engine) Events() <-chan protocol.Frame { return e.events }

// Done is closed once cleanup has run.
func (e *Engine) Done() <-chan struct{} { return e.done }

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Run spawns the process and relays its output until exit. It blocks until
// the session is fully cleaned up.
func (e *Engine) Run() {
	lang := e.sess.Language
	spec := sandbox.Spec{
		Dir:         e.sess.Workspace.Path,
		Shell:       lang.RunCommand(e.sess.EntryPoint),
		Env:         lang.Env,
		Image:       lang.Image,
		Name:        "runbox-run-" + e.sess.Workspace.ID,
		Interactive: true,
	}

	e.mu.Lock()
	e.state = StateSpawning
	e.spec = spec
	e.mu.Unlock()

	cmd := e.sb.Command(context.Background(), spec)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(e.cfg.Cols),
		Rows: uint16(e.cfg.Rows),
	})
	if err != nil {
		e.log.Errorw("spawn failed", "token", short(e.sess.Token), "err", err)
		e.events <- protocol.Status("failed to start process: " + err.Error())
		e.finish(protocol.ExitSpawnFailed)
		return
	}

	e.mu.Lock()
	e.cmd = cmd
	e.ptmx = ptmx
	if e.killed {
		// Kill arrived during spawn (client already gone).
		killGroup(cmd)
		e.sandboxKill(spec)
	} else {
		e.state = StateRunning
		if len(e.pending) > 0 {
			// Input that raced the spawn; replay it before any new
			// writes so the client's order is preserved.
			ptmx.Write(e.pending)
			e.pending = nil
		}
	}
	if e.cfg.MaxDuration > 0 {
		e.deadline = time.AfterFunc(e.cfg.MaxDuration, func() {
			e.log.Infow("session deadline exceeded", "token", short(e.sess.Token))
			e.kill(protocol.ExitDeadline, StateKilled, "session time limit exceeded")
		})
	}
	e.mu.Unlock()

	e.log.Infow("process started",
		"token", short(e.sess.Token), "language", lang.Name, "pid", cmd.Process.Pid)

	// Relay loop: PTY bytes -> stdout frames, in production order. The
	// read fails with EIO once the child exits and its side closes.
	filter := newLineFilter(lang.Banner)
	buf := make([]byte, 4096)
	for {
		n, rerr := ptmx.Read(buf)
		if n > 0 {
			if out := filter.Filter(buf[:n]); len(out) > 0 {
				e.events <- protocol.Stdout(string(out))
			}
		}
		if rerr != nil {
			break
		}
	}
	if tail := filter.Flush(); len(tail) > 0 {
		e.events <- protocol.Stdout(string(tail))
	}

	werr := cmd.Wait()

	e.mu.Lock()
	if e.deadline != nil {
		e.deadline.Stop()
	}
	code := exitCode(cmd, werr)
	if e.killed {
		if e.state == StateRunning || e.state == StateSpawning {
			e.state = e.killNext
		}
		if e.killCode != 0 {
			code = e.killCode
		}
	} else {
		e.state = StateExited
	}
	state := e.state
	msg := e.killMsg
	e.mu.Unlock()

	e.log.Infow("process finished", "token", short(e.sess.Token), "state", state.String(), "code", code)
	if msg != "" {
		e.events <- protocol.Status(msg)
	}
	e.finish(code)
}

// finish emits the terminal exit frame, closes the event stream, and runs
// cleanup. The exit frame is always the last frame.
func (e *Engine) finish(code int) {
	e.events <- protocol.Exit(code)
	close(e.events)
	e.cleanup(code)
}

// exitCode maps the process result to a wire exit code. A signal-killed
// process reports -1 from os; normalize to 128+SIGKILL as a shell would.
func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState == nil {
		if err != nil {
			return protocol.ExitSpawnFailed
		}
		return 0
	}
	code := cmd.ProcessState.ExitCode()
	if code < 0 {
		return 137
	}
	return code
}

// Write relays client input verbatim to the pseudo-terminal. Input that
// arrives before the PTY exists is held and replayed in order once the
// process is running; writes to a dead process are dropped.
func (e *Engine) Write(data string) {
	e.mu.Lock()
	if !e.killed && (e.state == StateIdle || e.state == StateSpawning) {
		e.pending = append(e.pending, data...)
		e.mu.Unlock()
		return
	}
	ptmx := e.ptmx
	running := e.state == StateRunning
	e.mu.Unlock()

	if !running || ptmx == nil {
		return
	}
	if _, err := ptmx.WriteString(data); err != nil {
		e.log.Debugw("stdin write failed", "token", short(e.sess.Token), "err", err)
	}
}

// Resize forwards a viewport change to the pseudo-terminal. Best-effort.
func (e *Engine) Resize(cols, rows int) {
	if cols <= 0 || rows <= 0 {
		return
	}
	e.mu.Lock()
	ptmx := e.ptmx
	e.mu.Unlock()

	if ptmx == nil {
		return
	}
	if err := pty.Setsize(ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		e.log.Debugw("resize failed", "token", short(e.sess.Token), "err", err)
	}
}

// Stop handles an explicit client stop frame.
func (e *Engine) Stop() {
	e.kill(protocol.ExitStopped, StateKilled, "")
}

// ChannelClosed is invoked by the gateway when the client connection went
// away. A still-running process must die: no orphaned sandboxes.
func (e *Engine) ChannelClosed() {
	e.kill(protocol.ExitStopped, StateChannelClosed, "")
}

// kill requests OS-level termination. Idempotent; safe before, during, and
// after process exit. A non-empty msg becomes a status frame emitted just
// before the exit frame.
func (e *Engine) kill(code int, next State, msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.killed || e.state == StateExited || e.state == StateCleaned {
		return
	}
	e.killed = true
	e.killCode = code
	e.killMsg = msg
	e.killNext = next
	if e.state == StateRunning {
		e.state = next
	}
	if e.cmd != nil && e.cmd.Process != nil {
		killGroup(e.cmd)
		e.sandboxKill(e.spec)
	}
}

// sandboxKill asks the isolation layer to stop the workload out-of-band;
// the container behind a docker client survives a plain signal.
func (e *Engine) sandboxKill(spec sandbox.Spec) {
	go func() {
		if err := e.sb.Kill(context.Background(), spec); err != nil {
			e.log.Debugw("sandbox kill failed", "token", short(e.sess.Token), "err", err)
		}
	}()
}

// short abbreviates a token for log lines.
func short(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}

// killGroup terminates the process group. The PTY start put the child in
// its own session, so the negative pid reaches its descendants too.
func killGroup(cmd *exec.Cmd) {
	pid := cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		// Fall back to the single process; ESRCH just means it is gone.
		_ = cmd.Process.Kill()
	}
}

// cleanup releases everything exactly once: PTY descriptor, workspace
// directory, and the cleaned-state latch. Safe to call from any exit path,
// any number of times.
func (e *Engine) cleanup(code int) {
	e.cleanupOnce.Do(func() {
		e.mu.Lock()
		ptmx := e.ptmx
		e.ptmx = nil
		e.state = StateCleaned
		e.mu.Unlock()

		if ptmx != nil {
			ptmx.Close()
		}
		e.store.Destroy(e.sess.Workspace)
		if e.onCleaned != nil {
			e.onCleaned(code)
		}
		close(e.done)
	})
}
