package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SlackNotifier posts run outcomes to a Slack incoming webhook. An
// empty webhook URL yields a disabled notifier whose Send is a no-op.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier wires a webhook URL
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// SlackMessage is the incoming-webhook payload
type SlackMessage struct {
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment colors one run outcome in the channel
type SlackAttachment struct {
	Color  string `json:"color"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Footer string `json:"footer,omitempty"`
}

// SlackColor maps a notification type onto Slack's attachment palette
func SlackColor(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "good"
	case NotifyWarning:
		return "warning"
	case NotifyError:
		return "danger"
	default:
		return "#439FE0"
	}
}

// Send posts one notification. Delivery is best effort: a failure is
// returned for logging but never retried, so a flaky webhook cannot
// hold up a run.
func (s *SlackNotifier) Send(n Notification) error {
	if s.webhookURL == "" {
		return nil
	}

	att := SlackAttachment{
		Color:  SlackColor(n.Type),
		Title:  n.RunID,
		Text:   n.Message,
		Footer: "taskforge",
	}
	if att.Title == "" {
		att.Title = n.Title
	}

	payload, err := json.Marshal(SlackMessage{
		Text:        n.Title,
		Attachments: []SlackAttachment{att},
	})
	if err != nil {
		return err
	}

	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}
