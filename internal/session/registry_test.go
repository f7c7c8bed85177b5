package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/michaelbrown/runbox/internal/language"
	"github.com/michaelbrown/runbox/internal/logging"
	"github.com/michaelbrown/runbox/internal/workspace"
)

func testLang() *language.Language {
	return &language.Language{Name: "java", RunCmd: "java {entry}"}
}

func testWorkspace() *workspace.Workspace {
	return &workspace.Workspace{ID: "ws1", Path: "/tmp/ws1"}
}

func TestIssueAndClaim(t *testing.T) {
	r := NewRegistry(time.Minute, nil, logging.Nop())
	defer r.Close()

	token := r.Issue(testWorkspace(), testLang(), "Main", true)
	if len(token) != 32 {
		t.Errorf("token length = %d, want 32 hex chars", len(token))
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}

	sess, err := r.Claim(token)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if sess.EntryPoint != "Main" {
		t.Errorf("entry point = %q, want Main", sess.EntryPoint)
	}
	if !sess.OK {
		t.Error("session should carry the compile result")
	}
	if r.Len() != 0 {
		t.Errorf("Len after claim = %d, want 0", r.Len())
	}
}

func TestClaimUnknownToken(t *testing.T) {
	r := NewRegistry(time.Minute, nil, logging.Nop())
	defer r.Close()

	if _, err := r.Claim("deadbeef"); err == nil {
		t.Fatal("expected error for unknown token")
	}
}

func TestClaimIsExactlyOnce(t *testing.T) {
	r := NewRegistry(time.Minute, nil, logging.Nop())
	defer r.Close()

	token := r.Issue(testWorkspace(), testLang(), "Main", true)

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Claim(token); err == nil {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("token claimed %d times, want exactly 1", wins)
	}
}

func TestExpireRunsHook(t *testing.T) {
	var expired []*Session
	r := NewRegistry(time.Minute, func(s *Session) {
		expired = append(expired, s)
	}, logging.Nop())
	defer r.Close()

	token := r.Issue(testWorkspace(), testLang(), "Main", false)
	r.Expire(token)

	if len(expired) != 1 {
		t.Fatalf("expire hook ran %d times, want 1", len(expired))
	}
	if _, err := r.Claim(token); err == nil {
		t.Error("expired token should not be claimable")
	}

	// Unknown tokens are ignored.
	r.Expire("nope")
	if len(expired) != 1 {
		t.Errorf("expire hook ran for unknown token")
	}
}

func TestCloseExpiresRemaining(t *testing.T) {
	var count int64
	r := NewRegistry(time.Minute, func(*Session) {
		atomic.AddInt64(&count, 1)
	}, logging.Nop())

	for i := 0; i < 3; i++ {
		r.Issue(testWorkspace(), testLang(), "Main", true)
	}
	r.Close()

	if count != 3 {
		t.Errorf("expire hook ran %d times on Close, want 3", count)
	}
	if r.Len() != 0 {
		t.Errorf("Len after Close = %d, want 0", r.Len())
	}

	// Close is idempotent.
	r.Close()
}

func TestSweepExpiresStaleSessions(t *testing.T) {
	if testing.Short() {
		t.Skip("sweep test sleeps past the TTL")
	}

	var count int64
	r := NewRegistry(1200*time.Millisecond, func(*Session) {
		atomic.AddInt64(&count, 1)
	}, logging.Nop())
	defer r.Close()

	r.Issue(testWorkspace(), testLang(), "Main", true)

	deadline := time.Now().Add(5 * time.Second)
	for r.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}

	if r.Len() != 0 {
		t.Fatal("stale session not swept within deadline")
	}
	if atomic.LoadInt64(&count) != 1 {
		t.Errorf("expire hook ran %d times, want 1", count)
	}
}
