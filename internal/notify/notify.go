package notify

import (
	"log"

	"github.com/tannershotme/daily-v2/internal/model"
)

// Payload rides along with a notification so the click handler can hand
// the task back to the app without mutating anything itself.
type Payload struct {
	TaskID model.TaskID `json:"taskId"`
}

// Notification is the contract between the reminder scheduler (producer)
// and the delivery channel (consumer). Tag is the task id: a second
// notification with the same tag replaces the first and must still alert.
type Notification struct {
	Title string  `json:"title"`
	Body  string  `json:"body"`
	Tag   string  `json:"tag"`
	Data  Payload `json:"data"`
}

type Dispatcher interface {
	Dispatch(n Notification) error
}

// LogDispatcher is the degraded checklist-without-reminders mode: when
// delivery is unavailable the reminder is only logged.
type LogDispatcher struct {
	Logger *log.Logger
}

func (d LogDispatcher) Dispatch(n Notification) error {
	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("notify: %s (%s) tag=%s", n.Title, n.Body, n.Tag)
	return nil
}
