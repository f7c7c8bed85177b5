package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/michaelbrown/runbox/internal/errs"
	"github.com/michaelbrown/runbox/internal/language"
	"github.com/michaelbrown/runbox/internal/storage"
	"github.com/michaelbrown/runbox/internal/workspace"
)

// maxCompileBody caps the request body, mirroring the editor's own limit.
const maxCompileBody = 2 << 20 // 2 MB

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps the error taxonomy onto HTTP status codes in one place.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// --- Compile ---

type compileRequest struct {
	Language   string           `json:"language"`
	EntryPoint string           `json:"entryPoint"`
	Files      []workspace.File `json:"files"`
}

type compileResponse struct {
	Token       string                `json:"token"`
	OK          bool                  `json:"ok"`
	Diagnostics []language.Diagnostic `json:"diagnostics"`
	CompileLog  string                `json:"compileLog"`
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCompileBody)
	defer r.Body.Close()

	var req compileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if len(req.Files) == 0 {
		writeError(w, http.StatusBadRequest, "no files provided")
		return
	}

	langName := req.Language
	if langName == "" {
		langName = "java"
	}
	lang := s.deps.Languages.Get(langName)
	if lang == nil {
		writeError(w, http.StatusBadRequest, "unsupported language: "+langName)
		return
	}

	entry := req.EntryPoint
	if entry == "" {
		entry = "Main"
	}
	if !language.ValidEntryPoint(entry) {
		writeError(w, http.StatusBadRequest, "invalid entry point")
		return
	}

	ws, err := s.deps.Workspaces.Create()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	if err := s.deps.Workspaces.WriteFiles(ws, req.Files); err != nil {
		s.deps.Workspaces.Destroy(ws)
		writeError(w, statusFor(err), err.Error())
		return
	}

	res, err := s.deps.Invoker.Compile(r.Context(), ws, lang)
	if err != nil {
		s.deps.Workspaces.Destroy(ws)
		writeError(w, statusFor(err), err.Error())
		return
	}

	// A token is issued even for failed compiles so the client reads the
	// log through the same path; the gateway refuses to bridge a not-ok
	// session, so this is never permission to execute.
	token := s.deps.Registry.Issue(ws, lang, entry, res.OK)

	job := &storage.Job{
		Token:       token,
		Language:    lang.Name,
		EntryPoint:  entry,
		OK:          res.OK,
		CompileLog:  res.Log,
		Diagnostics: res.Diagnostics,
	}
	if err := s.deps.Store.CreateJob(r.Context(), job); err != nil {
		// History is best-effort; the session itself is fine.
		s.deps.Log.Warnw("recording job failed", "token", shortToken(token), "err", err)
	}

	diags := res.Diagnostics
	if diags == nil {
		diags = []language.Diagnostic{}
	}
	writeJSON(w, http.StatusOK, compileResponse{
		Token:       token,
		OK:          res.OK,
		Diagnostics: diags,
		CompileLog:  res.Log,
	})
}

// --- Job history ---

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	job, err := s.deps.Store.GetJob(r.Context(), token)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	opts := storage.JobListOptions{}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}

	jobs, err := s.deps.Store.ListJobs(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if jobs == nil {
		jobs = []storage.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// shortToken is the loggable prefix of a session token.
func shortToken(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
