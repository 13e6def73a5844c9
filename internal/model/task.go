package model

import (
	"sort"

	"github.com/google/uuid"
)

type TaskID string

// Task is a single routine item, due OffsetMinutes after the wake-time
// anchor. Identity is ID; editing label or offset never changes it.
type Task struct {
	ID            TaskID `json:"id"`
	Label         string `json:"label"`
	OffsetMinutes int    `json:"offsetMinutes"`
}

func NewTaskID() TaskID {
	return TaskID("task_" + uuid.NewString())
}

// FireAt returns the absolute reminder time in epoch milliseconds for a
// task relative to a wake anchor.
func FireAt(wakeMillis int64, t Task) int64 {
	return wakeMillis + int64(t.OffsetMinutes)*60_000
}

// SortByOffset orders tasks ascending by offset, stable so tasks sharing
// an offset keep their configured order.
func SortByOffset(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	copy(out, tasks)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OffsetMinutes < out[j].OffsetMinutes
	})
	return out
}

// DefaultTasks seeds a fresh install.
func DefaultTasks() []Task {
	return []Task{
		{ID: "task_def_1", Label: "Take Vitamin D & K2", OffsetMinutes: 0},
		{ID: "task_def_2", Label: "Hydrate: 500ml Water + Electrolytes", OffsetMinutes: 5},
		{ID: "task_def_3", Label: "Breakfast & Probiotics", OffsetMinutes: 30},
		{ID: "task_def_4", Label: "Mid-morning: Magnesium Glycinate", OffsetMinutes: 180},
		{ID: "task_def_5", Label: "Evening: Omega-3 Fish Oil", OffsetMinutes: 720},
	}
}
