package day

import (
	"errors"
	"testing"
	"time"

	"github.com/tannershotme/daily-v2/internal/clock"
	"github.com/tannershotme/daily-v2/internal/model"
	"github.com/tannershotme/daily-v2/internal/state"
)

func newTestController(t *testing.T, clk clock.Clock) (*Controller, *state.Store) {
	t.Helper()
	store, err := state.NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	c := NewController(Options{Store: store, Clock: clk})
	t.Cleanup(c.Scheduler().CancelAll)
	return c, store
}

func localDate(hour, min int) time.Time {
	return time.Date(2026, 8, 31, hour, min, 0, 0, time.Local)
}

func TestStartDay_FirstStart(t *testing.T) {
	clk := clock.NewFakeClock(localDate(6, 55))
	c, store := newTestController(t, clk)

	if got := c.State(); got != StateNotStarted {
		t.Fatalf("expected not_started before first start, got %s", got)
	}

	if err := c.StartDay(7, 0, false); err != nil {
		t.Fatalf("start day: %v", err)
	}
	if got := c.State(); got != StateActive {
		t.Fatalf("expected active, got %s", got)
	}

	snap, _ := store.Load()
	if snap.WakeMillis != localDate(7, 0).UnixMilli() {
		t.Errorf("persisted wake time wrong: %d", snap.WakeMillis)
	}
	if snap.LastStatusDate != "2026-08-31" {
		t.Errorf("persisted status date wrong: %q", snap.LastStatusDate)
	}

	// Default tasks: offsets 0,5,30,180,720, all in the future of 06:55.
	if got := len(c.Scheduler().Pending()); got != 5 {
		t.Errorf("expected 5 pending reminders, got %d", got)
	}
}

func TestStartDay_SameDayChangeNeedsConfirmation(t *testing.T) {
	clk := clock.NewFakeClock(localDate(7, 0))
	c, _ := newTestController(t, clk)

	if err := c.StartDay(7, 0, false); err != nil {
		t.Fatalf("start day: %v", err)
	}
	if err := c.SetTaskDone("task_def_1", true); err != nil {
		t.Fatalf("set done: %v", err)
	}

	// Two minutes later: beyond the 60s skew, must be confirmed.
	err := c.StartDay(7, 2, false)
	if !errors.Is(err, ErrConfirmRequired) {
		t.Fatalf("expected ErrConfirmRequired for 120s change, got %v", err)
	}
	if !c.Snapshot().Tasks[0].Done {
		t.Fatalf("rejected change must not touch status")
	}

	// Exactly 60 seconds is within the skew: commits silently, keeps status.
	if err := c.StartDay(7, 1, false); err != nil {
		t.Fatalf("small adjustment should not need confirmation: %v", err)
	}
	if !c.Snapshot().Tasks[0].Done {
		t.Fatalf("small adjustment must keep status")
	}

	if err := c.StartDay(7, 3, true); err != nil {
		t.Fatalf("confirmed change: %v", err)
	}
	snap := c.Snapshot()
	for _, tv := range snap.Tasks {
		if tv.Done {
			t.Errorf("confirmed change must clear statuses, %s still done", tv.ID)
		}
	}
	if snap.WakeMillis != localDate(7, 3).UnixMilli() {
		t.Errorf("wake time not updated: %d", snap.WakeMillis)
	}
}

func TestStartDay_NewDayClearsStatus(t *testing.T) {
	clk := clock.NewFakeClock(localDate(7, 0))
	c, store := newTestController(t, clk)

	if err := c.StartDay(7, 0, false); err != nil {
		t.Fatalf("start day: %v", err)
	}
	if err := c.SetTaskDone("task_def_1", true); err != nil {
		t.Fatalf("set done: %v", err)
	}

	// Next morning: fresh day, no confirmation (old wake is yesterday).
	clk.Advance(24 * time.Hour)
	if err := c.StartDay(7, 30, false); err != nil {
		t.Fatalf("next-day start: %v", err)
	}
	snap, _ := store.Load()
	if len(snap.Status) != 0 {
		t.Errorf("expected cleared status on day rollover, got %v", snap.Status)
	}
	if snap.LastStatusDate != "2026-09-01" {
		t.Errorf("status date not advanced: %q", snap.LastStatusDate)
	}
}

func TestResetDay_ClearsEverything(t *testing.T) {
	clk := clock.NewFakeClock(localDate(7, 0))
	c, store := newTestController(t, clk)

	if err := c.StartDay(7, 0, false); err != nil {
		t.Fatalf("start day: %v", err)
	}
	c.ResetDay()

	if got := c.State(); got != StateNotStarted {
		t.Fatalf("expected not_started after reset, got %s", got)
	}
	if got := len(c.Scheduler().Pending()); got != 0 {
		t.Errorf("expected no reminders after reset, got %d", got)
	}
	snap, _ := store.Load()
	if snap.WakeMillis != 0 || snap.LastStatusDate != "" || len(snap.Status) != 0 {
		t.Errorf("reset not persisted: %+v", snap)
	}
}

func TestAutoReconcile_TwentyHourThreshold(t *testing.T) {
	wake := localDate(20, 0) // 8pm

	t.Run("19h59m old does not reset", func(t *testing.T) {
		clk := clock.NewFakeClock(wake)
		c, _ := newTestController(t, clk)
		if err := c.StartDay(20, 0, false); err != nil {
			t.Fatalf("start day: %v", err)
		}
		clk.Advance(19*time.Hour + 59*time.Minute)
		if c.AutoReconcile() {
			t.Fatalf("must not auto-reset at 19h59m")
		}
		if c.Snapshot().WakeMillis == 0 {
			t.Fatalf("wake time must survive")
		}
	})

	t.Run("20h01m old resets", func(t *testing.T) {
		clk := clock.NewFakeClock(wake)
		c, _ := newTestController(t, clk)
		if err := c.StartDay(20, 0, false); err != nil {
			t.Fatalf("start day: %v", err)
		}
		clk.Advance(20*time.Hour + time.Minute)
		if !c.AutoReconcile() {
			t.Fatalf("must auto-reset at 20h01m")
		}
		if got := c.State(); got != StateNotStarted {
			t.Fatalf("expected not_started after auto-reset, got %s", got)
		}
	})

	t.Run("same calendar day never resets", func(t *testing.T) {
		clk := clock.NewFakeClock(localDate(0, 0))
		c, _ := newTestController(t, clk)
		if err := c.StartDay(0, 0, false); err != nil {
			t.Fatalf("start day: %v", err)
		}
		clk.Advance(20*time.Hour + 30*time.Minute) // 20:30 the same day
		if c.AutoReconcile() {
			t.Fatalf("same-day wake time must not auto-reset")
		}
	})
}

func TestSetTaskDone_CancelsReminder(t *testing.T) {
	clk := clock.NewFakeClock(localDate(7, 0))
	c, _ := newTestController(t, clk)
	if err := c.StartDay(8, 0, false); err != nil {
		t.Fatalf("start day: %v", err)
	}
	before := len(c.Scheduler().Pending())

	if err := c.SetTaskDone("task_def_3", true); err != nil {
		t.Fatalf("set done: %v", err)
	}
	if got := len(c.Scheduler().Pending()); got != before-1 {
		t.Errorf("expected %d pending after done, got %d", before-1, got)
	}

	// Un-marking resyncs; the fire time is still in the future here.
	if err := c.SetTaskDone("task_def_3", false); err != nil {
		t.Fatalf("unset done: %v", err)
	}
	if got := len(c.Scheduler().Pending()); got != before {
		t.Errorf("expected %d pending after undone, got %d", before, got)
	}
}

func TestSetTaskDone_UnknownTask(t *testing.T) {
	clk := clock.NewFakeClock(localDate(7, 0))
	c, _ := newTestController(t, clk)
	if err := c.SetTaskDone("task_nope", true); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestReplaceTasks_PerItemValidation(t *testing.T) {
	clk := clock.NewFakeClock(localDate(7, 0))
	c, store := newTestController(t, clk)
	if err := c.StartDay(7, 0, false); err != nil {
		t.Fatalf("start day: %v", err)
	}
	if err := c.SetTaskDone("task_def_1", true); err != nil {
		t.Fatalf("set done: %v", err)
	}

	result := c.ReplaceTasks([]TaskEdit{
		{ID: "task_def_1", Label: "Vitamins", OffsetMinutes: 0},
		{Label: "", OffsetMinutes: 10},
		{Label: "New habit", OffsetMinutes: -5},
		{Label: "Journal", OffsetMinutes: 45},
	})

	if len(result.Saved) != 2 {
		t.Fatalf("expected 2 saved, got %v", result.Saved)
	}
	if len(result.Rejected) != 2 {
		t.Fatalf("expected 2 rejected, got %v", result.Rejected)
	}
	if result.Saved[0].ID != "task_def_1" {
		t.Errorf("edited task must keep its id, got %s", result.Saved[0].ID)
	}
	if result.Saved[1].ID == "" {
		t.Errorf("new task must get a generated id")
	}

	// Status for the surviving task is kept; removed tasks are pruned.
	snap, _ := store.Load()
	if !snap.Status["task_def_1"] {
		t.Errorf("status for kept task lost: %v", snap.Status)
	}
	if len(snap.Status) != 1 {
		t.Errorf("orphan status entries must be pruned: %v", snap.Status)
	}
}

func TestPastDue_ConfirmWritesThroughStatusPath(t *testing.T) {
	clk := clock.NewFakeClock(localDate(7, 0))
	c, store := newTestController(t, clk)
	if err := c.StartDay(7, 0, false); err != nil {
		t.Fatalf("start day: %v", err)
	}

	clk.Advance(3*time.Hour + 30*time.Minute) // 10:30

	due := c.PastDue()
	// Offsets 0, 5, 30, 180 have elapsed; 720 has not.
	if len(due) != 4 {
		t.Fatalf("expected 4 past-due tasks, got %v", due)
	}
	if due[0].OffsetMinutes != 0 || due[3].OffsetMinutes != 180 {
		t.Errorf("past-due ordering wrong: %v", due)
	}

	again := c.PastDue()
	if len(again) != len(due) {
		t.Fatalf("past-due query must be idempotent")
	}

	c.ConfirmPastDue([]model.TaskID{due[0].ID, due[1].ID, "task_nope"})
	if got := len(c.PastDue()); got != 2 {
		t.Errorf("expected 2 remaining past due, got %d", got)
	}
	snap, _ := store.Load()
	if !snap.Status[due[0].ID] || !snap.Status[due[1].ID] {
		t.Errorf("confirmations must persist: %v", snap.Status)
	}
}

func TestSnapshot_OrderedRenderReady(t *testing.T) {
	clk := clock.NewFakeClock(localDate(7, 0))
	c, _ := newTestController(t, clk)
	if err := c.StartDay(7, 0, false); err != nil {
		t.Fatalf("start day: %v", err)
	}

	snap := c.Snapshot()
	if snap.State != StateActive {
		t.Errorf("expected active state, got %s", snap.State)
	}
	for i := 1; i < len(snap.Tasks); i++ {
		if snap.Tasks[i-1].OffsetMinutes > snap.Tasks[i].OffsetMinutes {
			t.Fatalf("snapshot tasks not ordered by offset: %v", snap.Tasks)
		}
	}
	wake := localDate(7, 0).UnixMilli()
	for _, tv := range snap.Tasks {
		want := wake + int64(tv.OffsetMinutes)*60_000
		if tv.FireAtMillis != want {
			t.Errorf("fireAt for %s = %d, want %d", tv.ID, tv.FireAtMillis, want)
		}
	}
}

func TestController_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	store, err := state.NewStore(dir, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	clk := clock.NewFakeClock(localDate(7, 0))
	c := NewController(Options{Store: store, Clock: clk})
	if err := c.StartDay(7, 0, false); err != nil {
		t.Fatalf("start day: %v", err)
	}
	if err := c.SetTaskDone("task_def_1", true); err != nil {
		t.Fatalf("set done: %v", err)
	}
	c.Scheduler().CancelAll()

	// Same process boundary as a fresh launch a few hours later.
	clk2 := clock.NewFakeClock(localDate(10, 30))
	store2, err := state.NewStore(dir, nil)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	c2 := NewController(Options{Store: store2, Clock: clk2})
	t.Cleanup(c2.Scheduler().CancelAll)
	c2.Startup()

	if got := c2.State(); got != StateActive {
		t.Fatalf("expected active after restart, got %s", got)
	}
	if !c2.Snapshot().Tasks[0].Done {
		t.Errorf("done status lost across restart")
	}
	// Only the 720-minute task is still ahead of 10:30.
	if got := len(c2.Scheduler().Pending()); got != 1 {
		t.Errorf("expected 1 pending reminder after restart, got %d", got)
	}
	if got := len(c2.PastDue()); got != 3 {
		t.Errorf("expected 3 past-due after restart (offsets 5,30,180), got %d", got)
	}
}
