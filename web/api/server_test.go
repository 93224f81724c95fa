package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hochfrequenz/taskforge/internal/domain"
	"github.com/hochfrequenz/taskforge/internal/orchestrator"
	"github.com/hochfrequenz/taskforge/internal/workspace"
)

type mockStore struct {
	runs map[string]*domain.RunReport
}

func (m *mockStore) ListRuns(limit int) ([]*domain.RunReport, error) {
	var out []*domain.RunReport
	for _, r := range m.runs {
		if len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *mockStore) GetRun(id string) (*domain.RunReport, error) {
	return m.runs[id], nil
}

func (m *mockStore) CountRuns() (map[domain.RunStatus]int, error) {
	counts := make(map[domain.RunStatus]int)
	for _, r := range m.runs {
		counts[r.Status]++
	}
	return counts, nil
}

// stubRunner returns a canned report for every submission
type stubRunner struct {
	report *domain.RunReport
	gotReq orchestrator.Request
}

func (s *stubRunner) Run(ctx context.Context, req orchestrator.Request) *domain.RunReport {
	s.gotReq = req
	return s.report
}

func testServer(t *testing.T, store Store, runner Runner) (*Server, *workspace.Workspace) {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if store == nil {
		store = &mockStore{runs: map[string]*domain.RunReport{}}
	}
	return NewServer(store, runner, ws, ":0"), ws
}

func TestSubmitRun(t *testing.T) {
	runner := &stubRunner{report: &domain.RunReport{
		ID:     "run-1",
		Status: domain.RunCompleted,
		Results: []*domain.ActionResult{
			{ActionID: "a1", Kind: domain.KindWriteFile, Status: domain.ActionSuccess},
		},
	}}
	server, _ := testServer(t, nil, runner)

	body := strings.NewReader(`{"prompt": "write hello.txt", "dry_run": false}`)
	req := httptest.NewRequest("POST", "/api/runs", body)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if runner.gotReq.Prompt != "write hello.txt" {
		t.Errorf("runner prompt = %q", runner.gotReq.Prompt)
	}

	var report domain.RunReport
	json.NewDecoder(w.Body).Decode(&report)
	if report.ID != "run-1" || report.Status != domain.RunCompleted {
		t.Errorf("report = %+v", report)
	}
}

func TestSubmitRun_InvalidRequestIs400(t *testing.T) {
	runner := &stubRunner{report: &domain.RunReport{
		ID:     "run-2",
		Status: domain.RunInvalid,
		Error:  "prompt must not be empty",
	}}
	server, _ := testServer(t, nil, runner)

	req := httptest.NewRequest("POST", "/api/runs", strings.NewReader(`{"prompt": ""}`))
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", w.Code)
	}

	var report domain.RunReport
	json.NewDecoder(w.Body).Decode(&report)
	if report.Error != "prompt must not be empty" {
		t.Errorf("report.Error = %q", report.Error)
	}
}

func TestSubmitRun_BadJSON(t *testing.T) {
	server, _ := testServer(t, nil, &stubRunner{})

	req := httptest.NewRequest("POST", "/api/runs", strings.NewReader("{nope"))
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", w.Code)
	}
}

func TestListRuns(t *testing.T) {
	store := &mockStore{runs: map[string]*domain.RunReport{
		"run-1": {ID: "run-1", Status: domain.RunCompleted, CreatedAt: time.Now()},
		"run-2": {ID: "run-2", Status: domain.RunAborted, CreatedAt: time.Now()},
	}}
	server, _ := testServer(t, store, nil)

	req := httptest.NewRequest("GET", "/api/runs?limit=10", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}

	var runs []*domain.RunReport
	json.NewDecoder(w.Body).Decode(&runs)
	if len(runs) != 2 {
		t.Errorf("len(runs) = %d, want 2", len(runs))
	}
}

func TestGetRun(t *testing.T) {
	store := &mockStore{runs: map[string]*domain.RunReport{
		"run-1": {ID: "run-1", Status: domain.RunCompleted},
	}}
	server, _ := testServer(t, store, nil)

	req := httptest.NewRequest("GET", "/api/runs/run-1", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}

	var report domain.RunReport
	json.NewDecoder(w.Body).Decode(&report)
	if report.ID != "run-1" {
		t.Errorf("ID = %q", report.ID)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	server, _ := testServer(t, nil, nil)

	req := httptest.NewRequest("GET", "/api/runs/ghost", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", w.Code)
	}
}

func TestStatusHandler(t *testing.T) {
	store := &mockStore{runs: map[string]*domain.RunReport{
		"run-1": {ID: "run-1", Status: domain.RunCompleted},
		"run-2": {ID: "run-2", Status: domain.RunCompleted},
		"run-3": {ID: "run-3", Status: domain.RunPartial},
	}}
	server, ws := testServer(t, store, nil)

	if err := ws.Write("a.txt", "12345", false); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/status", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	var status StatusResponse
	json.NewDecoder(w.Body).Decode(&status)

	if status.Runs[domain.RunCompleted] != 2 {
		t.Errorf("completed = %d, want 2", status.Runs[domain.RunCompleted])
	}
	if status.WorkspaceFiles != 1 || status.WorkspaceBytes != 5 {
		t.Errorf("workspace = %d files, %d bytes", status.WorkspaceFiles, status.WorkspaceBytes)
	}
}

func TestWorkspaceFiles(t *testing.T) {
	server, ws := testServer(t, nil, nil)

	if err := ws.Write("src/main.py", "print('hi')", false); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/workspace/files", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	var resp struct {
		Total int                  `json:"total"`
		Files []workspace.FileInfo `json:"files"`
	}
	json.NewDecoder(w.Body).Decode(&resp)

	if resp.Total != 1 || len(resp.Files) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Files[0].Path != "src/main.py" {
		t.Errorf("Path = %q", resp.Files[0].Path)
	}
}

func TestReadWorkspaceFile(t *testing.T) {
	server, ws := testServer(t, nil, nil)

	if err := ws.Write("hello.html", "<h1>hi</h1>", false); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/workspace/files/hello.html", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}

	var resp FileContentResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Content != "<h1>hi</h1>" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestReadWorkspaceFile_Traversal(t *testing.T) {
	server, _ := testServer(t, nil, nil)

	// bypass the mux's own path cleaning; the handler must still
	// reject traversal on its own
	req := httptest.NewRequest("GET", "/api/workspace/files/placeholder", nil)
	req.URL.Path = "/api/workspace/files/../../etc/passwd"
	w := httptest.NewRecorder()
	server.readFileHandler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", w.Code)
	}
}

func TestReadWorkspaceFile_NotFound(t *testing.T) {
	server, _ := testServer(t, nil, nil)

	req := httptest.NewRequest("GET", "/api/workspace/files/absent.txt", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	server, _ := testServer(t, nil, nil)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", w.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server, _ := testServer(t, nil, nil)

	req := httptest.NewRequest("DELETE", "/api/runs", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Status = %d, want 405", w.Code)
	}
}

func TestSSEHub_Broadcast(t *testing.T) {
	hub := NewSSEHub()
	ch := hub.subscribe()

	hub.Broadcast(RunEvent(&domain.RunReport{ID: "run-1"}))

	ev := <-ch
	if ev.Type != "run" {
		t.Errorf("Type = %q, want run", ev.Type)
	}
	report, ok := ev.Data.(*domain.RunReport)
	if !ok || report.ID != "run-1" {
		t.Errorf("Data = %#v, want run report run-1", ev.Data)
	}

	hub.unsubscribe(ch)
	if _, open := <-ch; open {
		t.Error("channel still open after unsubscribe")
	}
}

func TestSSEHub_DropsStalledClient(t *testing.T) {
	hub := NewSSEHub()
	ch := hub.subscribe()

	// nobody reads; once the buffer is full the client must be
	// dropped instead of blocking the broadcaster
	for i := 0; i < cap(ch)+1; i++ {
		hub.Broadcast(WorkspaceEvent([]string{"a.txt"}))
	}

	received := 0
	for range ch {
		received++
	}
	if received != cap(ch) {
		t.Errorf("received %d events before drop, want %d", received, cap(ch))
	}
}
