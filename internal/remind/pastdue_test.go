package remind

import (
	"reflect"
	"testing"
	"time"

	"github.com/tannershotme/daily-v2/internal/model"
)

func TestFindPastDue_ScenarioAtWakeAndMidMorning(t *testing.T) {
	wakeTime := time.Date(2026, 8, 31, 7, 0, 0, 0, time.Local)
	wake := wakeTime.UnixMilli()
	tasks := []model.Task{
		{ID: "t180", Label: "late morning", OffsetMinutes: 180},
		{ID: "t0", Label: "at wake", OffsetMinutes: 0},
		{ID: "t5", Label: "shortly after", OffsetMinutes: 5},
	}

	t.Run("nothing past due at 07:00", func(t *testing.T) {
		due := FindPastDue(wake, wake, tasks, nil)
		if len(due) != 0 {
			t.Fatalf("expected no past-due tasks, got %v", due)
		}
	})

	t.Run("all past due in offset order at 10:30", func(t *testing.T) {
		now := wakeTime.Add(3*time.Hour + 30*time.Minute).UnixMilli()
		due := FindPastDue(wake, now, tasks, nil)
		var ids []model.TaskID
		for _, d := range due {
			ids = append(ids, d.ID)
		}
		want := []model.TaskID{"t0", "t5", "t180"}
		if !reflect.DeepEqual(ids, want) {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	})
}

func TestFindPastDue_Idempotent(t *testing.T) {
	wake := time.Date(2026, 8, 31, 7, 0, 0, 0, time.Local).UnixMilli()
	now := wake + 6*60*60_000
	tasks := []model.Task{
		{ID: "t0", OffsetMinutes: 0},
		{ID: "t30", OffsetMinutes: 30},
	}
	done := map[model.TaskID]bool{"t30": true}

	first := FindPastDue(wake, now, tasks, done)
	second := FindPastDue(wake, now, tasks, done)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results, got %v then %v", first, second)
	}
	if len(first) != 1 || first[0].ID != "t0" {
		t.Fatalf("done tasks must be excluded, got %v", first)
	}
}

func TestFindPastDue_UnsetWakeTime(t *testing.T) {
	due := FindPastDue(0, time.Now().UnixMilli(), []model.Task{{ID: "t0"}}, nil)
	if due != nil {
		t.Fatalf("expected nil for unset wake time, got %v", due)
	}
}

func TestFindPastDue_ExactFireTimeIsNotPastDue(t *testing.T) {
	wake := time.Date(2026, 8, 31, 7, 0, 0, 0, time.Local).UnixMilli()
	tasks := []model.Task{{ID: "t5", OffsetMinutes: 5}}
	now := wake + 5*60_000
	if due := FindPastDue(wake, now, tasks, nil); len(due) != 0 {
		t.Fatalf("fireAt == now must not be past due, got %v", due)
	}
	if due := FindPastDue(wake, now+1, tasks, nil); len(due) != 1 {
		t.Fatalf("fireAt < now must be past due, got %v", due)
	}
}
