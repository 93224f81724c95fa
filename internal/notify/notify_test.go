package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSlackNotifier_Send(t *testing.T) {
	var got SlackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:   "Run completed",
		Message: "create a hello file",
		Type:    NotifySuccess,
		RunID:   "run-1",
	})
	if err != nil {
		t.Errorf("Send failed: %v", err)
	}

	if got.Text != "Run completed" {
		t.Errorf("Text = %q", got.Text)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("Attachments = %d, want 1", len(got.Attachments))
	}
	if got.Attachments[0].Color != "good" || got.Attachments[0].Title != "run-1" {
		t.Errorf("Attachment = %+v", got.Attachments[0])
	}
}

func TestSlackNotifier_EmptyURLDisabled(t *testing.T) {
	notifier := NewSlackNotifier("")
	if err := notifier.Send(Notification{Title: "ignored"}); err != nil {
		t.Errorf("Send with empty URL = %v, want nil", err)
	}
}

func TestSlackNotifier_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	if err := notifier.Send(Notification{Title: "x"}); err == nil {
		t.Error("Send to failing server = nil, want error")
	}
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		if got := SlackColor(tt.typ); got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestForStatus(t *testing.T) {
	if ForStatus(true, false) != NotifySuccess {
		t.Error("completed run != success")
	}
	if ForStatus(false, true) != NotifyWarning {
		t.Error("partial run != warning")
	}
	if ForStatus(false, false) != NotifyError {
		t.Error("failed run != error")
	}
}
