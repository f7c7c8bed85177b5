package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/michaelbrown/runbox/internal/errs"
	"github.com/michaelbrown/runbox/internal/language"
	"github.com/michaelbrown/runbox/internal/storage"
)

// SQLiteStore implements storage.Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and runs
// migrations. Use ":memory:" for an in-memory database (useful for tests).
func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateJob(ctx context.Context, j *storage.Job) error {
	now := time.Now().UTC()
	j.CreatedAt = now
	j.UpdatedAt = now

	diags, err := json.Marshal(j.Diagnostics)
	if err != nil {
		return fmt.Errorf("marshaling diagnostics: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (token, language, entry_point, ok, compile_log, diagnostics, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.Token, j.Language, j.EntryPoint, boolToInt(j.OK), j.CompileLog, string(diags),
		j.CreatedAt.Format(time.RFC3339), j.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, token string) (*storage.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT token, language, entry_point, ok, compile_log, diagnostics, exit_code, created_at, updated_at
		FROM jobs WHERE token = ?`, token)

	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errs.Newf(errs.KindNotFound, "job %s not found", token)
	}
	if err != nil {
		return nil, fmt.Errorf("querying job: %w", err)
	}
	return j, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, opts storage.JobListOptions) ([]storage.Job, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT token, language, entry_point, ok, compile_log, diagnostics, exit_code, created_at, updated_at
		FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []storage.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) SetExitCode(ctx context.Context, token string, code int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET exit_code = ?, updated_at = ? WHERE token = ?`,
		code, now, token,
	)
	if err != nil {
		return fmt.Errorf("updating exit code: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.Newf(errs.KindNotFound, "job %s not found", token)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner works for both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (*storage.Job, error) {
	var j storage.Job
	var ok int
	var diags string
	var exitCode sql.NullInt64
	var createdAt, updatedAt string

	err := sc.Scan(&j.Token, &j.Language, &j.EntryPoint, &ok, &j.CompileLog,
		&diags, &exitCode, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	j.OK = ok != 0
	if exitCode.Valid {
		code := int(exitCode.Int64)
		j.ExitCode = &code
	}
	if diags != "" {
		var parsed []language.Diagnostic
		if err := json.Unmarshal([]byte(diags), &parsed); err != nil {
			return nil, fmt.Errorf("unmarshaling diagnostics: %w", err)
		}
		j.Diagnostics = parsed
	}
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
