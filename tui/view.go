package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/taskforge/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("236")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().
			Padding(0, 1)

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Padding(0, 1)
)

// View renders the dashboard
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("taskforge dashboard"))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errStyle.Render("  cannot reach server: " + m.err.Error()))
		b.WriteString("\n\n")
	} else {
		b.WriteString(m.renderStatus())
		b.WriteString("\n")
	}

	b.WriteString(m.renderRuns())
	b.WriteString("\n")

	refreshed := "never"
	if !m.lastRefresh.IsZero() {
		refreshed = m.lastRefresh.Format("15:04:05")
	}
	b.WriteString(statusBarStyle.Render(
		fmt.Sprintf("r refresh · j/k select · q quit · updated %s", refreshed)))

	return b.String()
}

func (m Model) renderStatus() string {
	var parts []string
	order := []domain.RunStatus{
		domain.RunCompleted,
		domain.RunPartial,
		domain.RunFailed,
		domain.RunAborted,
		domain.RunProviderError,
		domain.RunInvalid,
	}
	for _, st := range order {
		n := m.status.Runs[st]
		if n == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %d", statusLabel(st), n))
	}
	if len(parts) == 0 {
		parts = append(parts, dimStyle.Render("no runs yet"))
	}

	workspace := fmt.Sprintf("workspace: %d files, %s",
		m.status.WorkspaceFiles, humanize.Bytes(uint64(m.status.WorkspaceBytes)))

	return rowStyle.Render(strings.Join(parts, "  ")) + "\n" +
		rowStyle.Render(dimStyle.Render(workspace)) + "\n"
}

func (m Model) renderRuns() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-8s  %-19s  %-10s  %-3s  %s",
		"ID", "STARTED", "STATUS", "TRY", "PROMPT")))
	b.WriteString("\n")

	if len(m.runs) == 0 {
		b.WriteString(rowStyle.Render(dimStyle.Render("no runs recorded")))
		b.WriteString("\n")
		return b.String()
	}

	promptWidth := 48
	if m.width > 100 {
		promptWidth = m.width - 52
	}

	for i, run := range m.runs {
		line := fmt.Sprintf("%-8s  %-19s  %-10s  %-3d  %s",
			shortID(run.ID),
			run.Created.Local().Format("2006-01-02 15:04:05"),
			run.Status,
			run.Retries,
			truncate(run.Prompt, promptWidth))
		if i == m.selectedRow {
			b.WriteString(selectedStyle.Render(line))
		} else {
			b.WriteString(rowStyle.Render(line))
		}
		b.WriteString("\n")
	}

	if m.selectedRow >= 0 && m.selectedRow < len(m.runs) {
		b.WriteString("\n")
		b.WriteString(m.renderDetail(m.runs[m.selectedRow]))
	}

	return b.String()
}

func (m Model) renderDetail(run RunView) string {
	dur := "running"
	if run.Finished != nil {
		dur = run.Finished.Sub(run.Created).Round(time.Millisecond).String()
	}
	return rowStyle.Render(dimStyle.Render(
		fmt.Sprintf("%s · %s · %s", run.ID, run.Status, dur)))
}

func statusLabel(st domain.RunStatus) string {
	switch st {
	case domain.RunCompleted:
		return okStyle.Render("completed")
	case domain.RunPartial:
		return warnStyle.Render("partial")
	case domain.RunFailed:
		return errStyle.Render("failed")
	case domain.RunAborted:
		return errStyle.Render("aborted")
	case domain.RunProviderError:
		return errStyle.Render("provider")
	case domain.RunInvalid:
		return warnStyle.Render("invalid")
	default:
		return string(st)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
