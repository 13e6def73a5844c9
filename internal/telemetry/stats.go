package telemetry

import (
	"encoding/json"
	"time"
)

type Stats struct {
	Period             string            `json:"period"`
	EventCounts        map[EventType]int `json:"event_counts"`
	DaysStarted        int               `json:"days_started"`
	TaskCompletions    int               `json:"task_completions"`
	RemindersDelivered int               `json:"reminders_delivered"`
	PastDueConfirmed   int               `json:"pastdue_confirmed"`
	CompletionsPerDay  float64           `json:"completions_per_day"`
	ClicksByTask       map[string]int    `json:"clicks_by_task"`
}

// CalculateStats aggregates routine activity from events.
func CalculateStats(events []Event, since time.Time) (Stats, error) {
	stats := Stats{
		Period:       since.Format("2006-01-02"),
		EventCounts:  make(map[EventType]int),
		ClicksByTask: make(map[string]int),
	}

	for _, event := range events {
		stats.EventCounts[event.Type]++

		var metadata EventMetadata
		if err := json.Unmarshal([]byte(event.Metadata), &metadata); err != nil {
			continue
		}

		switch event.Type {
		case EventDayStarted:
			stats.DaysStarted++
		case EventTaskDone:
			stats.TaskCompletions++
		case EventReminderDelivered:
			stats.RemindersDelivered++
		case EventPastDueConfirmed:
			stats.PastDueConfirmed++
		case EventNotificationClicked:
			if taskID, ok := metadata["task_id"].(string); ok {
				stats.ClicksByTask[taskID]++
			}
		}
	}

	if stats.DaysStarted > 0 {
		stats.CompletionsPerDay = float64(stats.TaskCompletions) / float64(stats.DaysStarted)
	}

	return stats, nil
}
