// Package storage persists job history: what was compiled, how it went,
// and how the run ended. The live session state never lives here — that is
// the session registry's job — but logs survive for later inspection.
package storage

import (
	"context"
	"time"

	"github.com/michaelbrown/runbox/internal/language"
)

// Job is one compile-and-run record, keyed by its session token.
type Job struct {
	Token       string                `json:"token"`
	Language    string                `json:"language"`
	EntryPoint  string                `json:"entryPoint"`
	OK          bool                  `json:"ok"`
	CompileLog  string                `json:"compileLog"`
	Diagnostics []language.Diagnostic `json:"diagnostics"`

	// ExitCode is nil until the run (if any) finished.
	ExitCode *int `json:"exitCode"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// JobListOptions controls pagination for ListJobs.
type JobListOptions struct {
	Limit int
}

// Store is the persistence interface for job history.
type Store interface {
	// CreateJob inserts a new record. Token must be set by the caller.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob returns a record by token.
	GetJob(ctx context.Context, token string) (*Job, error)

	// ListJobs returns records ordered by created_at descending.
	ListJobs(ctx context.Context, opts JobListOptions) ([]Job, error)

	// SetExitCode records how the run ended.
	SetExitCode(ctx context.Context, token string, code int) error

	// Close releases resources.
	Close() error
}
