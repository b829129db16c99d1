package repository

import (
	"context"
	"time"

	"github.com/m-mizutani/lily/pkg/model"
)

// TaskOrder selects the sort order of ListTasks
type TaskOrder int

const (
	// OrderByDueAsc sorts by due time ascending, tasks without due time last
	OrderByDueAsc TaskOrder = iota
	// OrderByCreatedDesc sorts newest first
	OrderByCreatedDesc
)

// ListTasksInput is the query of ListTasks
type ListTasksInput struct {
	Address model.Address
	Status  model.TaskStatus
	Order   TaskOrder
	Limit   int
}

// Repository defines the interface for users, tasks and conversation turns
type Repository interface {
	// EnsureUser creates the user if absent. An existing user is never overwritten.
	EnsureUser(ctx context.Context, addr model.Address) error

	// GetUser retrieves a user. Returns model.ErrUserNotFound when absent.
	GetUser(ctx context.Context, addr model.Address) (*model.User, error)

	// UpdateUserMemory replaces the memory note of the user
	UpdateUserMemory(ctx context.Context, addr model.Address, memory string) error

	// MarkFirstTaskSent sets the first-task flag of the user
	MarkFirstTaskSent(ctx context.Context, addr model.Address) error

	// PutTask saves a task
	PutTask(ctx context.Context, task *model.Task) error

	// ListTasks retrieves tasks of one user in one status
	ListTasks(ctx context.Context, input ListTasksInput) ([]*model.Task, error)

	// ListDueTasks retrieves pending tasks of all users whose due time is not after now, earliest first
	ListDueTasks(ctx context.Context, now time.Time, limit int) ([]*model.Task, error)

	// CompleteTask moves a pending task to done
	CompleteTask(ctx context.Context, id model.TaskID) error

	// RescheduleTask sets a new due time on a pending task
	RescheduleTask(ctx context.Context, id model.TaskID, dueAt time.Time) error

	// MarkTaskReminded moves a pending task to reminded and stores the scratch
	MarkTaskReminded(ctx context.Context, id model.TaskID, scratch string) error

	// PutTurns appends turns to the conversation log
	PutTurns(ctx context.Context, turns ...*model.Turn) error

	// ListRecentTurns retrieves the newest limit turns of a user in chronological order
	ListRecentTurns(ctx context.Context, addr model.Address, limit int) ([]*model.Turn, error)

	Close() error
}
