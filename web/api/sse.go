package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/hochfrequenz/taskforge/internal/domain"
)

// Event is one pipeline notification pushed to streaming clients.
// Two types exist: "run" carries a full run report whenever a run
// changes state, "workspace" carries the list of changed file paths.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// RunEvent wraps a run report for streaming
func RunEvent(report *domain.RunReport) Event {
	return Event{Type: "run", Data: report}
}

// WorkspaceEvent wraps a set of changed workspace paths for streaming
func WorkspaceEvent(paths []string) Event {
	return Event{Type: "workspace", Data: paths}
}

// SSEHub fans events out to the connected event-stream clients
type SSEHub struct {
	mu      sync.Mutex
	clients map[chan Event]struct{}
}

// NewSSEHub returns an empty hub
func NewSSEHub() *SSEHub {
	return &SSEHub{clients: make(map[chan Event]struct{})}
}

func (h *SSEHub) subscribe() chan Event {
	ch := make(chan Event, 8)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *SSEHub) unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Broadcast delivers an event to every subscriber. A client whose
// buffer is full is dropped rather than allowed to stall the run.
func (h *SSEHub) Broadcast(event Event) {
	h.mu.Lock()
	for ch := range h.clients {
		select {
		case ch <- event:
		default:
			delete(h.clients, ch)
			close(ch)
		}
	}
	h.mu.Unlock()
}

func (s *Server) sseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		ch := s.sseHub.subscribe()
		defer s.sseHub.unsubscribe(ch)

		for {
			select {
			case <-r.Context().Done():
				return
			case event, open := <-ch:
				if !open {
					return
				}
				data, err := json.Marshal(event.Data)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
				flusher.Flush()
			}
		}
	}
}
