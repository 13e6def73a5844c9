package telemetry

import "time"

type EventType string

const (
	EventDayStarted          EventType = "day_started"
	EventDayReset            EventType = "day_reset"
	EventDayAutoReset        EventType = "day_auto_reset"
	EventTaskDone            EventType = "task_done"
	EventTaskUndone          EventType = "task_undone"
	EventTasksEdited         EventType = "tasks_edited"
	EventReminderDelivered   EventType = "reminder_delivered"
	EventReminderCanceled    EventType = "reminder_canceled"
	EventPastDueConfirmed    EventType = "pastdue_confirmed"
	EventCacheInstalled      EventType = "cache_installed"
	EventCacheActivated      EventType = "cache_activated"
	EventNotificationClicked EventType = "notification_clicked"
)

type Event struct {
	ID        int       `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  string    `json:"metadata"`
}

type EventMetadata map[string]interface{}
