package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/hochfrequenz/taskforge/internal/domain"
	"github.com/hochfrequenz/taskforge/internal/orchestrator"
	"github.com/hochfrequenz/taskforge/internal/workspace"
)

// StatusResponse is the API response for overall status
type StatusResponse struct {
	Runs           map[domain.RunStatus]int `json:"runs"`
	WorkspaceFiles int                      `json:"workspace_files"`
	WorkspaceBytes int64                    `json:"workspace_bytes"`
}

// FileContentResponse is the API response for a single workspace file
type FileContentResponse struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// runsHandler serves POST (submit a task) and GET (list history)
func (s *Server) runsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			s.submitRun(w, r)
		case http.MethodGet:
			s.listRuns(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Plan-level failures are encoded in the report status; the
	// transport succeeds either way
	report := s.runner.Run(r.Context(), req)

	if report.Status == domain.RunInvalid {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(report)
		return
	}
	writeJSON(w, report)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.store.ListRuns(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*domain.RunReport{}
	}
	writeJSON(w, runs)
}

func (s *Server) getRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		id := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		if id == "" {
			writeError(w, http.StatusBadRequest, "run ID required")
			return
		}

		run, err := s.store.GetRun(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if run == nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeJSON(w, run)
	}
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		counts, err := s.store.CountRuns()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		files, err := s.ws.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		var total int64
		for _, f := range files {
			total += f.Size
		}

		writeJSON(w, StatusResponse{
			Runs:           counts,
			WorkspaceFiles: len(files),
			WorkspaceBytes: total,
		})
	}
}

func (s *Server) listFilesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		files, err := s.ws.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if files == nil {
			files = []workspace.FileInfo{}
		}
		writeJSON(w, map[string]interface{}{
			"total": len(files),
			"files": files,
		})
	}
}

// readFileHandler serves a single workspace file. The path goes
// through the same containment check the validator applies, so
// traversal through the read endpoint is rejected too.
func (s *Server) readFileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/api/workspace/files/")
		if path == "" {
			writeError(w, http.StatusBadRequest, "file path required")
			return
		}

		content, err := s.ws.Read(path)
		if err != nil {
			switch {
			case errors.Is(err, workspace.ErrOutsideRoot):
				writeError(w, http.StatusBadRequest, "path outside workspace")
			case errors.Is(err, workspace.ErrNotFound):
				writeError(w, http.StatusNotFound, "file not found")
			default:
				writeError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}

		writeJSON(w, FileContentResponse{Path: path, Content: content})
	}
}

func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "healthy"})
	}
}
