package remind

import (
	"fmt"
	"strings"
	"time"

	"github.com/tannershotme/daily-v2/internal/model"
)

const icsTimeLayout = "20060102T150405Z"

// BuildScheduleICS renders the anchored day as an iCalendar feed, one
// event per task at its fire time. Calendar apps are a delivery channel
// of last resort when notifications are unavailable.
func BuildScheduleICS(wakeMillis int64, tasks []model.Task, now time.Time) (string, error) {
	if wakeMillis == 0 {
		return "", fmt.Errorf("day not started; nothing to export")
	}

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Daily//Schedule Export//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
	}

	for _, t := range model.SortByOffset(tasks) {
		start := time.UnixMilli(model.FireAt(wakeMillis, t)).UTC()
		end := start.Add(15 * time.Minute)

		title := strings.TrimSpace(t.Label)
		if title == "" {
			title = "Daily Task"
		}

		lines = append(lines,
			"BEGIN:VEVENT",
			"UID:"+escapeICSText(fmt.Sprintf("%s-%d@daily", t.ID, wakeMillis)),
			"DTSTAMP:"+now.UTC().Format(icsTimeLayout),
			"SUMMARY:"+escapeICSText(title),
			"DTSTART:"+start.Format(icsTimeLayout),
			"DTEND:"+end.Format(icsTimeLayout),
			"END:VEVENT",
		)
	}

	lines = append(lines, "END:VCALENDAR", "")
	return strings.Join(lines, "\r\n"), nil
}

func escapeICSText(s string) string {
	repl := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\r\n", "\\n",
		"\n", "\\n",
		"\r", "\\n",
	)
	return repl.Replace(s)
}
