package notify

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	RunID   string // Optional run reference
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// Noop is a Notifier that discards everything
type Noop struct{}

// Send implements Notifier
func (Noop) Send(Notification) error { return nil }

// ForStatus maps a run outcome to a notification type
func ForStatus(completed, partial bool) NotificationType {
	switch {
	case completed:
		return NotifySuccess
	case partial:
		return NotifyWarning
	default:
		return NotifyError
	}
}
