package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type TaskID string

// NewTaskID generates a new unique TaskID
func NewTaskID() TaskID {
	return TaskID(uuid.New().String())
}

type TaskStatus string

const (
	TaskPending  TaskStatus = "pending"
	TaskReminded TaskStatus = "reminded"
	TaskDone     TaskStatus = "done"
)

// Validate checks if the status is known
func (s TaskStatus) Validate() error {
	switch s {
	case TaskPending, TaskReminded, TaskDone:
		return nil
	default:
		return goerr.New("invalid task status", goerr.V("status", s))
	}
}

// CanTransition reports whether a task in status s may move to next. Only
// pending tasks move; reminded and done are terminal.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	return s == TaskPending && (next == TaskReminded || next == TaskDone)
}

// Task is one delegated item the assistant holds for a user
type Task struct {
	ID      TaskID
	Address Address
	Summary string

	// DueAt is when the reminder should fire. Nil means not decided yet; such
	// a task stays pending until rescheduled.
	DueAt *time.Time

	// Scratch is the first-step nudge attached when the reminder was sent
	Scratch string

	Status TaskStatus

	// IsPreview marks the synthetic demo reminder created next to a user's
	// first task. It is not a commitment the user stated.
	IsPreview bool

	CreatedAt time.Time
}

// NewTask returns a pending task owned by addr
func NewTask(addr Address, summary string, dueAt *time.Time, now time.Time) *Task {
	return &Task{
		ID:        NewTaskID(),
		Address:   addr,
		Summary:   summary,
		DueAt:     dueAt,
		Status:    TaskPending,
		CreatedAt: now,
	}
}

// IsDue reports whether a pending task should be reminded at now
func (t *Task) IsDue(now time.Time) bool {
	return t.Status == TaskPending && t.DueAt != nil && !t.DueAt.After(now)
}

// SortByDue orders tasks ascending by due time. Tasks without a due time go
// last; ties are broken by creation time.
func SortByDue(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch {
		case a.DueAt == nil && b.DueAt == nil:
			return a.CreatedAt.Before(b.CreatedAt)
		case a.DueAt == nil:
			return false
		case b.DueAt == nil:
			return true
		case a.DueAt.Equal(*b.DueAt):
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.DueAt.Before(*b.DueAt)
		}
	})
}

// SortByCreatedDesc orders tasks newest first
func SortByCreatedDesc(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}
