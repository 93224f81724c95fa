// Package tui is a terminal dashboard over the taskforge HTTP API.
package tui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/taskforge/internal/domain"
)

// RunView is one history row in the dashboard
type RunView struct {
	ID       string     `json:"id"`
	Prompt   string     `json:"prompt"`
	Status   string     `json:"status"`
	Retries  int        `json:"retries"`
	Created  time.Time  `json:"created_at"`
	Finished *time.Time `json:"finished_at"`
}

// StatusView mirrors the /api/status payload
type StatusView struct {
	Runs           map[domain.RunStatus]int `json:"runs"`
	WorkspaceFiles int                      `json:"workspace_files"`
	WorkspaceBytes int64                    `json:"workspace_bytes"`
}

// Model is the TUI application model
type Model struct {
	baseURL string
	client  *http.Client

	runs   []RunView
	status StatusView
	err    error

	width       int
	height      int
	selectedRow int

	lastRefresh time.Time
}

// NewModel creates a dashboard model pointed at a running server
func NewModel(baseURL string) Model {
	return Model{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Init starts the refresh loop
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), tickCmd())
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type refreshMsg struct {
	runs   []RunView
	status StatusView
	err    error
}

// refreshCmd fetches status and recent runs from the API
func (m Model) refreshCmd() tea.Cmd {
	baseURL := m.baseURL
	client := m.client
	return func() tea.Msg {
		var msg refreshMsg

		if err := fetchJSON(client, baseURL+"/api/status", &msg.status); err != nil {
			msg.err = err
			return msg
		}
		if err := fetchJSON(client, baseURL+"/api/runs?limit=30", &msg.runs); err != nil {
			msg.err = err
			return msg
		}
		return msg
	}
}

func fetchJSON(client *http.Client, url string, out interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
