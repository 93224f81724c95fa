package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hochfrequenz/taskforge/internal/domain"
	"github.com/hochfrequenz/taskforge/internal/orchestrator"
	"github.com/hochfrequenz/taskforge/internal/workspace"
)

// Store interface for run history operations
type Store interface {
	ListRuns(limit int) ([]*domain.RunReport, error)
	GetRun(id string) (*domain.RunReport, error)
	CountRuns() (map[domain.RunStatus]int, error)
}

// Runner drives one task cycle; satisfied by the orchestrator
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) *domain.RunReport
}

// Server is the HTTP API server
type Server struct {
	store  Store
	runner Runner
	ws     *workspace.Workspace
	addr   string
	mux    *http.ServeMux
	sseHub *SSEHub
	wsHub  *WSHub
}

// NewServer creates a new API server
func NewServer(store Store, runner Runner, ws *workspace.Workspace, addr string) *Server {
	s := &Server{
		store:  store,
		runner: runner,
		ws:     ws,
		addr:   addr,
		mux:    http.NewServeMux(),
		sseHub: NewSSEHub(),
		wsHub:  NewWSHub(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/runs", s.runsHandler())
	s.mux.HandleFunc("/api/runs/", s.getRunHandler())
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/workspace/files", s.listFilesHandler())
	s.mux.HandleFunc("/api/workspace/files/", s.readFileHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
	s.mux.HandleFunc("/api/events/ws", s.websocketHandler())
	s.mux.HandleFunc("/healthz", s.healthHandler())
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go s.wsHub.Run()
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler exposes the mux for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Broadcast sends an event to all SSE and websocket clients
func (s *Server) Broadcast(event Event) {
	s.sseHub.Broadcast(event)
	s.wsHub.Broadcast(event)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
