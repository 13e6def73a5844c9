package remind

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/tannershotme/daily-v2/internal/clock"
	"github.com/tannershotme/daily-v2/internal/model"
	"github.com/tannershotme/daily-v2/internal/notify"
	"github.com/tannershotme/daily-v2/internal/telemetry"
)

// ScheduledReminder is the externally visible shape of a pending timer.
// The timer handle itself never leaves the scheduler.
type ScheduledReminder struct {
	TaskID       model.TaskID `json:"taskId"`
	FireAtMillis int64        `json:"fireAt"`
}

type pendingTimer struct {
	fireAt int64
	timer  *time.Timer
}

// Scheduler owns every reminder timer in an explicit registry keyed by
// task id: at most one pending timer per task, and every handle it
// creates is canceled or disposed by the scheduler itself.
type Scheduler struct {
	mu           sync.Mutex
	clock        clock.Clock
	dispatcher   notify.Dispatcher
	stillPending func(model.TaskID) bool
	events       telemetry.Repository
	logger       *log.Logger
	pending      map[model.TaskID]*pendingTimer
}

// NewScheduler builds a scheduler. stillPending is consulted again at
// fire time, so a task marked done during the wait never delivers.
func NewScheduler(clk clock.Clock, dispatcher notify.Dispatcher, stillPending func(model.TaskID) bool, logger *log.Logger) *Scheduler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if dispatcher == nil {
		dispatcher = notify.LogDispatcher{Logger: logger}
	}
	if stillPending == nil {
		stillPending = func(model.TaskID) bool { return true }
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		clock:        clk,
		dispatcher:   dispatcher,
		stillPending: stillPending,
		logger:       logger,
		pending:      map[model.TaskID]*pendingTimer{},
	}
}

func (s *Scheduler) SetEvents(repo telemetry.Repository) {
	s.mu.Lock()
	s.events = repo
	s.mu.Unlock()
}

// Resync drops every existing reminder and rebuilds the registry from
// scratch. done is the status snapshot at resync time; the fire-time
// callback re-checks through stillPending anyway. A task whose fire time
// has already passed gets no timer; it is the past-due query's problem,
// never an immediate re-fire.
func (s *Scheduler) Resync(wakeMillis int64, tasks []model.Task, done map[model.TaskID]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelAllLocked()
	if wakeMillis == 0 {
		return
	}

	now := s.clock.Now().UnixMilli()
	for _, t := range tasks {
		if _, exists := s.pending[t.ID]; exists {
			continue
		}
		if done[t.ID] {
			continue
		}
		fireAt := model.FireAt(wakeMillis, t)
		if fireAt <= now {
			continue
		}
		s.scheduleLocked(t, fireAt, time.Duration(fireAt-now)*time.Millisecond)
	}
}

func (s *Scheduler) scheduleLocked(t model.Task, fireAt int64, delay time.Duration) {
	task := t
	p := &pendingTimer{fireAt: fireAt}
	p.timer = time.AfterFunc(delay, func() {
		s.fire(task, fireAt)
	})
	s.pending[t.ID] = p
}

// fire runs on the timer goroutine. The registry entry is removed first
// in all cases; delivery happens only if the reminder is still the one
// we scheduled and the task is still not done.
func (s *Scheduler) fire(t model.Task, fireAt int64) {
	s.mu.Lock()
	p, ok := s.pending[t.ID]
	if !ok || p.fireAt != fireAt {
		// Canceled or superseded while we were mid-fire.
		s.mu.Unlock()
		return
	}
	delete(s.pending, t.ID)
	events := s.events
	s.mu.Unlock()

	if !s.stillPending(t.ID) {
		return
	}

	n := notify.Notification{
		Title: "Task Reminder",
		Body:  "Time for: " + t.Label,
		Tag:   string(t.ID),
		Data:  notify.Payload{TaskID: t.ID},
	}
	if err := s.dispatcher.Dispatch(n); err != nil {
		s.logger.Printf("remind: dispatch for %s failed: %v", t.ID, err)
		return
	}
	if events != nil {
		_ = events.RecordEvent(telemetry.EventReminderDelivered, telemetry.EventMetadata{
			"task_id": string(t.ID),
			"fire_at": fireAt,
		})
	}
}

// Cancel removes and disposes a single reminder, typically because the
// task was just marked done.
func (s *Scheduler) Cancel(id model.TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[id]
	if !ok {
		return
	}
	p.timer.Stop()
	delete(s.pending, id)
	if s.events != nil {
		_ = s.events.RecordEvent(telemetry.EventReminderCanceled, telemetry.EventMetadata{
			"task_id": string(id),
		})
	}
}

func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelAllLocked()
}

func (s *Scheduler) cancelAllLocked() {
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
	}
}

// Pending returns the current registry ordered by fire time.
func (s *Scheduler) Pending() []ScheduledReminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ScheduledReminder, 0, len(s.pending))
	for id, p := range s.pending {
		out = append(out, ScheduledReminder{TaskID: id, FireAtMillis: p.fireAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAtMillis != out[j].FireAtMillis {
			return out[i].FireAtMillis < out[j].FireAtMillis
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out
}
