// Package session tracks issued session tokens: the single source of truth
// for whether a token is valid and what it authorizes.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/michaelbrown/runbox/internal/errs"
	"github.com/michaelbrown/runbox/internal/language"
	"github.com/michaelbrown/runbox/internal/workspace"
)

// Session is one compiled job's right to be executed exactly once.
type Session struct {
	Token      string
	Workspace  *workspace.Workspace
	Language   *language.Language
	EntryPoint string

	// OK records whether the compile that produced this session succeeded.
	// A token is issued either way so the client has a uniform path to the
	// compile log, but only an OK session may be bridged to a process.
	OK bool

	CreatedAt time.Time
}

// Registry is a lock-guarded token map supporting concurrent issue, claim,
// and expire. No caller holds the lock during I/O.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	ttl      time.Duration
	onExpire func(*Session)
	log      *zap.SugaredLogger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates a registry. Sessions unclaimed after ttl are removed
// by a background sweep; onExpire (may be nil) runs for each swept or
// explicitly expired session, outside the registry lock, so it can release
// the session's workspace.
func NewRegistry(ttl time.Duration, onExpire func(*Session), log *zap.SugaredLogger) *Registry {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	r := &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		onExpire: onExpire,
		log:      log,
		stop:     make(chan struct{}),
	}
	go r.sweep()
	return r
}

// newToken returns a 128-bit cryptographically random hex token.
func newToken() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic("session: reading random bytes: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}

// Issue stores a session record and returns its fresh token. A live token
// is never reused.
func (r *Registry) Issue(ws *workspace.Workspace, lang *language.Language, entryPoint string, ok bool) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	token := newToken()
	for _, exists := r.sessions[token]; exists; _, exists = r.sessions[token] {
		token = newToken()
	}

	r.sessions[token] = &Session{
		Token:      token,
		Workspace:  ws,
		Language:   lang,
		EntryPoint: entryPoint,
		OK:         ok,
		CreatedAt:  time.Now(),
	}
	return token
}

// Claim atomically looks up and removes a session. Exactly one caller can
// claim a given token; later claims get a not-found error. This is what
// prevents two connections racing over the same compiled job.
func (r *Registry) Claim(token string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[token]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "unknown or already-claimed token")
	}
	delete(r.sessions, token)
	return sess, nil
}

// Expire removes a session without claiming it, running the expire hook.
// Unknown tokens are ignored.
func (r *Registry) Expire(token string) {
	r.mu.Lock()
	sess, ok := r.sessions[token]
	if ok {
		delete(r.sessions, token)
	}
	r.mu.Unlock()

	if ok && r.onExpire != nil {
		r.onExpire(sess)
	}
}

// Len returns the number of live (unclaimed) sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops the background sweep and expires every remaining session.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })

	r.mu.Lock()
	expired := make([]*Session, 0, len(r.sessions))
	for token, sess := range r.sessions {
		expired = append(expired, sess)
		delete(r.sessions, token)
	}
	r.mu.Unlock()

	if r.onExpire != nil {
		for _, sess := range expired {
			r.onExpire(sess)
		}
	}
}

func (r *Registry) sweep() {
	interval := r.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-r.ttl)

		r.mu.Lock()
		var expired []*Session
		for token, sess := range r.sessions {
			if sess.CreatedAt.Before(cutoff) {
				expired = append(expired, sess)
				delete(r.sessions, token)
			}
		}
		r.mu.Unlock()

		for _, sess := range expired {
			r.log.Infow("session expired unclaimed", "token", sess.Token[:8], "age", time.Since(sess.CreatedAt))
			if r.onExpire != nil {
				r.onExpire(sess)
			}
		}
	}
}
