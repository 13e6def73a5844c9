package remind

import (
	"github.com/tannershotme/daily-v2/internal/model"
)

// FindPastDue returns the tasks whose fire time elapsed while still
// undone, ascending by offset. It is a pure query: calling it twice with
// the same inputs yields the same result, and it mutates nothing.
// Confirmations go through the ordinary status-write path.
func FindPastDue(wakeMillis, nowMillis int64, tasks []model.Task, done map[model.TaskID]bool) []model.Task {
	if wakeMillis == 0 {
		return nil
	}
	out := make([]model.Task, 0)
	for _, t := range tasks {
		if done[t.ID] {
			continue
		}
		if model.FireAt(wakeMillis, t) < nowMillis {
			out = append(out, t)
		}
	}
	return model.SortByOffset(out)
}
