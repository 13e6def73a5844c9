package day

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tannershotme/daily-v2/internal/clock"
	"github.com/tannershotme/daily-v2/internal/config"
	"github.com/tannershotme/daily-v2/internal/model"
	"github.com/tannershotme/daily-v2/internal/notify"
	"github.com/tannershotme/daily-v2/internal/remind"
	"github.com/tannershotme/daily-v2/internal/state"
	"github.com/tannershotme/daily-v2/internal/telemetry"
)

const ymdLayout = "2006-01-02"

type State string

const (
	StateNotStarted State = "not_started"
	StateActive     State = "active"
	StateStale      State = "stale"
)

var (
	// ErrConfirmRequired means the caller asked for a destructive
	// same-day wake-time change without confirming it first.
	ErrConfirmRequired = errors.New("changing today's wake time resets task progress; confirmation required")
	ErrTaskNotFound    = errors.New("task not found")
)

// Notice is a non-fatal message for the view layer (load warnings,
// auto-reset info, degraded delivery).
type Notice struct {
	Level   string `json:"level"` // "info" | "warning"
	Message string `json:"message"`
}

type Options struct {
	Store      *state.Store
	Clock      clock.Clock
	Dispatcher notify.Dispatcher
	Events     telemetry.Repository
	Logger     *log.Logger
	Day        config.DayConfig
}

// Controller owns the day lifecycle and the in-memory authoritative
// state: wake anchor, task set, completion status and the date the
// status belongs to. Every mutation goes through it; the store only
// mirrors what the controller decides.
type Controller struct {
	mu     sync.Mutex
	clk    clock.Clock
	store  *state.Store
	sched  *remind.Scheduler
	events telemetry.Repository
	logger *log.Logger
	cfg    config.DayConfig

	theme          string
	tasks          []model.Task
	wakeMillis     int64
	status         map[model.TaskID]bool
	lastStatusDate string
	notices        []Notice
}

func NewController(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Day.StaleAfterHours == 0 {
		opts.Day.StaleAfterHours = 20
	}
	if opts.Day.ConfirmSkewSeconds == 0 {
		opts.Day.ConfirmSkewSeconds = 60
	}

	c := &Controller{
		clk:    opts.Clock,
		store:  opts.Store,
		events: opts.Events,
		logger: opts.Logger,
		cfg:    opts.Day,
		status: map[model.TaskID]bool{},
	}
	c.sched = remind.NewScheduler(opts.Clock, opts.Dispatcher, c.taskStillPending, opts.Logger)
	if opts.Events != nil {
		c.sched.SetEvents(opts.Events)
	}

	if c.store != nil {
		snap, warnings := c.store.Load()
		c.theme = snap.Theme
		c.tasks = snap.Tasks
		c.wakeMillis = snap.WakeMillis
		c.status = snap.Status
		c.lastStatusDate = snap.LastStatusDate
		for _, w := range warnings {
			c.notices = append(c.notices, Notice{Level: "warning", Message: w})
		}
	}
	if c.tasks == nil {
		c.tasks = model.DefaultTasks()
		c.saveTasks()
	}
	return c
}

// Startup runs the once-per-process reconciliation: auto-reset a stale
// day, then rebuild the reminder registry from whatever survived.
func (c *Controller) Startup() {
	c.AutoReconcile()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resyncLocked()
}

// Scheduler exposes the registry for read-only snapshots.
func (c *Controller) Scheduler() *remind.Scheduler { return c.sched }

// State derives the lifecycle state from the wake anchor and status date.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked(c.clk.Now())
}

func (c *Controller) stateLocked(now time.Time) State {
	if c.wakeMillis == 0 {
		return StateNotStarted
	}
	today := now.Format(ymdLayout)
	if c.lastStatusDate != today {
		return StateStale
	}
	if c.staleByAgeLocked(now) {
		return StateStale
	}
	return StateActive
}

// staleByAgeLocked applies the threshold rule: a wake time from a
// previous calendar day that is at least StaleAfterHours old. A wake
// time of 11pm yesterday is not stale at 12:01am.
func (c *Controller) staleByAgeLocked(now time.Time) bool {
	if c.wakeMillis == 0 {
		return false
	}
	wake := time.UnixMilli(c.wakeMillis)
	if wake.Format(ymdLayout) == now.Format(ymdLayout) {
		return false
	}
	return now.Sub(wake) >= time.Duration(c.cfg.StaleAfterHours)*time.Hour
}

// StartDay anchors today at hour:min local time. A same-day change of
// more than the confirm skew clears task progress and therefore needs
// confirmed=true; smaller adjustments commit silently.
func (c *Controller) StartDay(hour, min int, confirmed bool) error {
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return fmt.Errorf("invalid wake time %02d:%02d", hour, min)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	today := now.Format(ymdLayout)
	newWake := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, now.Location()).UnixMilli()

	if c.wakeMillis != 0 {
		oldWake := time.UnixMilli(c.wakeMillis)
		sameDay := oldWake.Format(ymdLayout) == today
		skew := int64(c.cfg.ConfirmSkewSeconds) * 1000
		diff := newWake - c.wakeMillis
		if diff < 0 {
			diff = -diff
		}
		if sameDay && diff > skew {
			if !confirmed {
				return ErrConfirmRequired
			}
			c.status = map[model.TaskID]bool{}
			c.lastStatusDate = today
			c.saveLastStatusDate()
		}
	}

	c.wakeMillis = newWake
	c.saveWakeTime()

	if c.lastStatusDate != today {
		c.status = map[model.TaskID]bool{}
		c.lastStatusDate = today
		c.saveLastStatusDate()
	}
	c.saveStatus()

	c.resyncLocked()
	c.record(telemetry.EventDayStarted, telemetry.EventMetadata{"wake_at": newWake})
	c.notices = append(c.notices, Notice{
		Level:   "info",
		Message: fmt.Sprintf("Day started at %02d:%02d.", hour, min),
	})
	return nil
}

// ResetDay is the user-confirmed full reset: wake anchor, progress and
// status date all cleared, every reminder canceled.
func (c *Controller) ResetDay() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	c.record(telemetry.EventDayReset, nil)
	c.notices = append(c.notices, Notice{Level: "info", Message: "Day has been reset."})
}

func (c *Controller) resetLocked() {
	c.wakeMillis = 0
	c.status = map[model.TaskID]bool{}
	c.lastStatusDate = ""
	c.saveWakeTime()
	c.saveStatus()
	c.saveLastStatusDate()
	c.sched.CancelAll()
}

// AutoReconcile performs the startup-only unconfirmed reset of a stale
// day. It fires iff the wake time is from a previous calendar day and at
// least the stale threshold old.
func (c *Controller) AutoReconcile() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.staleByAgeLocked(c.clk.Now()) {
		return false
	}
	c.resetLocked()
	c.record(telemetry.EventDayAutoReset, nil)
	c.notices = append(c.notices, Notice{
		Level:   "info",
		Message: "Auto-reset: previous day's schedule cleared.",
	})
	return true
}

// SetTaskDone flips a task's completion. Marking done cancels its
// reminder; un-marking resyncs, which schedules nothing if the fire time
// already passed (the task becomes past-due instead).
func (c *Controller) SetTaskDone(id model.TaskID, done bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.findTaskLocked(id) == nil {
		return ErrTaskNotFound
	}
	if done {
		c.status[id] = true
	} else {
		delete(c.status, id)
	}
	c.saveStatus()

	if done {
		c.sched.Cancel(id)
		c.record(telemetry.EventTaskDone, telemetry.EventMetadata{"task_id": string(id)})
	} else {
		c.resyncLocked()
		c.record(telemetry.EventTaskUndone, telemetry.EventMetadata{"task_id": string(id)})
	}
	return nil
}

// TaskEdit is one row of the task editor: empty ID means a new task.
type TaskEdit struct {
	ID            model.TaskID `json:"id"`
	Label         string       `json:"label"`
	OffsetMinutes int          `json:"offsetMinutes"`
}

type RejectedEdit struct {
	Index  int    `json:"index"`
	Label  string `json:"label"`
	Reason string `json:"reason"`
}

type EditResult struct {
	Saved    []model.Task   `json:"saved"`
	Rejected []RejectedEdit `json:"rejected"`
}

// ReplaceTasks swaps the task set for the given edits. Invalid items are
// rejected per-item with a reason; valid siblings still save. Status
// entries for removed tasks are pruned, and reminders resync.
func (c *Controller) ReplaceTasks(edits []TaskEdit) EditResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := EditResult{Saved: []model.Task{}, Rejected: []RejectedEdit{}}
	for i, e := range edits {
		if e.Label == "" {
			result.Rejected = append(result.Rejected, RejectedEdit{
				Index: i, Label: e.Label, Reason: "label must not be empty",
			})
			continue
		}
		if e.OffsetMinutes < 0 {
			result.Rejected = append(result.Rejected, RejectedEdit{
				Index: i, Label: e.Label, Reason: "offset must not be negative",
			})
			continue
		}
		id := e.ID
		if id == "" {
			id = model.NewTaskID()
		}
		result.Saved = append(result.Saved, model.Task{
			ID:            id,
			Label:         e.Label,
			OffsetMinutes: e.OffsetMinutes,
		})
	}

	c.tasks = result.Saved
	c.pruneStatusLocked()
	c.saveTasks()
	c.saveStatus()
	c.resyncLocked()
	c.record(telemetry.EventTasksEdited, telemetry.EventMetadata{
		"saved":    len(result.Saved),
		"rejected": len(result.Rejected),
	})
	return result
}

// pruneStatusLocked drops status entries whose task id no longer exists.
func (c *Controller) pruneStatusLocked() {
	known := make(map[model.TaskID]bool, len(c.tasks))
	for _, t := range c.tasks {
		known[t.ID] = true
	}
	for id := range c.status {
		if !known[id] {
			delete(c.status, id)
		}
	}
}

// PastDue lists tasks whose fire time elapsed while undone, ascending by
// offset. Pure query; confirmation goes through ConfirmPastDue.
func (c *Controller) PastDue() []model.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return remind.FindPastDue(c.wakeMillis, c.clk.Now().UnixMilli(), c.tasks, c.status)
}

// ConfirmPastDue marks the given tasks done through the ordinary
// status-write path. Unknown ids are ignored, never errors.
func (c *Controller) ConfirmPastDue(ids []model.TaskID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	confirmed := 0
	for _, id := range ids {
		if c.findTaskLocked(id) == nil {
			continue
		}
		c.status[id] = true
		c.sched.Cancel(id)
		confirmed++
	}
	if confirmed == 0 {
		return
	}
	c.saveStatus()
	c.record(telemetry.EventPastDueConfirmed, telemetry.EventMetadata{"count": confirmed})
}

func (c *Controller) Theme() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.theme
}

func (c *Controller) SetTheme(theme string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.theme = theme
	if c.store != nil {
		if err := c.store.SaveTheme(theme); err != nil {
			c.storeFailureLocked("theme", err)
		}
	}
}

// TaskView is one render-ready checklist row.
type TaskView struct {
	model.Task
	Done         bool  `json:"done"`
	FireAtMillis int64 `json:"fireAt,omitempty"`
}

// Snapshot is what the view layer renders from; it owns no scheduling
// state of its own.
type Snapshot struct {
	State      State      `json:"state"`
	WakeMillis int64      `json:"wakeTime,omitempty"`
	Theme      string     `json:"theme,omitempty"`
	Tasks      []TaskView `json:"tasks"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:      c.stateLocked(c.clk.Now()),
		WakeMillis: c.wakeMillis,
		Theme:      c.theme,
		Tasks:      []TaskView{},
	}
	for _, t := range model.SortByOffset(c.tasks) {
		tv := TaskView{Task: t, Done: c.status[t.ID]}
		if c.wakeMillis != 0 {
			tv.FireAtMillis = model.FireAt(c.wakeMillis, t)
		}
		snap.Tasks = append(snap.Tasks, tv)
	}
	return snap
}

// Notices drains and returns pending non-fatal messages.
func (c *Controller) Notices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.notices
	c.notices = nil
	return out
}

func (c *Controller) AddNotice(n Notice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, n)
}

func (c *Controller) findTaskLocked(id model.TaskID) *model.Task {
	for i := range c.tasks {
		if c.tasks[i].ID == id {
			return &c.tasks[i]
		}
	}
	return nil
}

// taskStillPending is the scheduler's fire-time re-check. It runs on
// timer goroutines, never while the caller holds c.mu.
func (c *Controller) taskStillPending(id model.TaskID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.findTaskLocked(id) == nil {
		return false
	}
	return !c.status[id]
}

func (c *Controller) resyncLocked() {
	tasks := make([]model.Task, len(c.tasks))
	copy(tasks, c.tasks)
	done := make(map[model.TaskID]bool, len(c.status))
	for id, v := range c.status {
		done[id] = v
	}
	c.sched.Resync(c.wakeMillis, tasks, done)
}

func (c *Controller) record(t telemetry.EventType, meta telemetry.EventMetadata) {
	if c.events == nil {
		return
	}
	_ = c.events.RecordEvent(t, meta)
}

// Store failures never abort an operation: the in-memory state stays
// authoritative for the rest of the session.
func (c *Controller) storeFailureLocked(key string, err error) {
	c.logger.Printf("day: persist %s failed: %v", key, err)
	c.notices = append(c.notices, Notice{
		Level:   "warning",
		Message: "Could not save " + key + "; changes kept for this session only.",
	})
}

func (c *Controller) saveTasks() {
	if c.store == nil {
		return
	}
	if err := c.store.SaveTasks(c.tasks); err != nil {
		c.storeFailureLocked("tasks", err)
	}
}

func (c *Controller) saveWakeTime() {
	if c.store == nil {
		return
	}
	if err := c.store.SaveWakeTime(c.wakeMillis); err != nil {
		c.storeFailureLocked("wake time", err)
	}
}

func (c *Controller) saveStatus() {
	if c.store == nil {
		return
	}
	if err := c.store.SaveStatus(c.status); err != nil {
		c.storeFailureLocked("task progress", err)
	}
}

func (c *Controller) saveLastStatusDate() {
	if c.store == nil {
		return
	}
	if err := c.store.SaveLastStatusDate(c.lastStatusDate); err != nil {
		c.storeFailureLocked("status date", err)
	}
}
