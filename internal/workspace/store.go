// Package workspace manages the isolated per-job directories that hold
// submitted source files and build artifacts.
package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/michaelbrown/runbox/internal/errs"
)

// Workspace is one job's directory. Owned exclusively by the job that
// created it until Destroy.
type Workspace struct {
	ID        string
	Path      string
	CreatedAt time.Time
}

// File is one (relative path, content) pair to materialize in a workspace.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Store creates and destroys workspaces under a single root directory.
type Store struct {
	root string
	log  *zap.SugaredLogger
}

// NewStore ensures root exists and returns a store over it.
func NewStore(root string, log *zap.SugaredLogger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errs.Wrap(err, errs.KindResource, "creating workspace root")
	}
	return &Store{root: root, log: log}, nil
}

// Root returns the configured root directory.
func (s *Store) Root() string { return s.root }

// Create allocates a fresh uniquely-named workspace directory.
func (s *Store) Create() (*Workspace, error) {
	id := uuid.New().String()
	path := filepath.Join(s.root, id)
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, errs.Wrap(err, errs.KindResource, "creating workspace")
	}
	return &Workspace{ID: id, Path: path, CreatedAt: time.Now()}, nil
}

// WriteFiles writes each file under the workspace, creating parent
// directories as needed. Any path that normalizes outside the workspace
// root is rejected before anything is written; this is a security check,
// not a convenience.
func (s *Store) WriteFiles(ws *Workspace, files []File) error {
	// Validate every path first so a traversal attempt writes nothing.
	resolved := make([]string, len(files))
	for i, f := range files {
		full, err := securePath(ws.Path, f.Path)
		if err != nil {
			return err
		}
		resolved[i] = full
	}

	for i, f := range files {
		if err := os.MkdirAll(filepath.Dir(resolved[i]), 0o755); err != nil {
			return errs.Wrap(err, errs.KindResource, "creating source directory")
		}
		if err := os.WriteFile(resolved[i], []byte(f.Content), 0o644); err != nil {
			return errs.Wrap(err, errs.KindResource, "writing source file")
		}
	}
	return nil
}

// securePath resolves rel inside base, rejecting anything that escapes.
func securePath(base, rel string) (string, error) {
	if rel == "" {
		return "", errs.New(errs.KindValidation, "empty file path")
	}
	if filepath.IsAbs(rel) {
		return "", errs.Newf(errs.KindValidation, "absolute path %q not allowed", rel)
	}
	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errs.Newf(errs.KindValidation, "path %q escapes workspace", rel)
	}
	return filepath.Join(base, clean), nil
}

// Destroy recursively removes the workspace directory. Idempotent:
// destroying twice, or a workspace that never hit disk, is logged and not
// an error.
func (s *Store) Destroy(ws *Workspace) {
	if ws == nil {
		return
	}
	if err := os.RemoveAll(ws.Path); err != nil {
		s.log.Warnw("workspace destroy failed", "id", ws.ID, "err", err)
		return
	}
	s.log.Debugw("workspace destroyed", "id", ws.ID)
}

// Exists reports whether the workspace directory is still on disk.
func (s *Store) Exists(ws *Workspace) bool {
	_, err := os.Stat(ws.Path)
	return err == nil
}

// WorkspaceRoot returns a default root under the system temp directory.
func WorkspaceRoot() string {
	return filepath.Join(os.TempDir(), "runbox-jobs")
}
