package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lily/pkg/model"
)

// Memory is an in-process Repository for tests and local chat sessions
type Memory struct {
	mu    sync.RWMutex
	users map[model.Address]*model.User
	tasks map[model.TaskID]*model.Task
	turns map[model.Address][]*model.Turn
	now   func() time.Time
}

var _ Repository = (*Memory)(nil)

// NewMemory creates an empty in-memory repository
func NewMemory() *Memory {
	return &Memory{
		users: make(map[model.Address]*model.User),
		tasks: make(map[model.TaskID]*model.Task),
		turns: make(map[model.Address][]*model.Turn),
		now:   time.Now,
	}
}

func (r *Memory) EnsureUser(ctx context.Context, addr model.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[addr]; ok {
		return nil
	}
	r.users[addr] = &model.User{Address: addr, CreatedAt: r.now()}
	return nil
}

func (r *Memory) GetUser(ctx context.Context, addr model.Address) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[addr]
	if !ok {
		return nil, goerr.Wrap(model.ErrUserNotFound, "failed to get user", goerr.V("address", addr))
	}
	copied := *user
	return &copied, nil
}

func (r *Memory) UpdateUserMemory(ctx context.Context, addr model.Address, memory string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[addr]
	if !ok {
		return goerr.Wrap(model.ErrUserNotFound, "failed to update memory", goerr.V("address", addr))
	}
	user.Memory = memory
	return nil
}

func (r *Memory) MarkFirstTaskSent(ctx context.Context, addr model.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[addr]
	if !ok {
		return goerr.Wrap(model.ErrUserNotFound, "failed to mark first task", goerr.V("address", addr))
	}
	user.FirstTaskSent = true
	return nil
}

func (r *Memory) PutTask(ctx context.Context, task *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *task
	r.tasks[task.ID] = &copied
	return nil
}

func (r *Memory) ListTasks(ctx context.Context, input ListTasksInput) ([]*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tasks []*model.Task
	for _, t := range r.tasks {
		if t.Address == input.Address && t.Status == input.Status {
			copied := *t
			tasks = append(tasks, &copied)
		}
	}

	switch input.Order {
	case OrderByCreatedDesc:
		model.SortByCreatedDesc(tasks)
	default:
		model.SortByDue(tasks)
	}

	return truncate(tasks, input.Limit), nil
}

func (r *Memory) ListDueTasks(ctx context.Context, now time.Time, limit int) ([]*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tasks []*model.Task
	for _, t := range r.tasks {
		if t.IsDue(now) {
			copied := *t
			tasks = append(tasks, &copied)
		}
	}
	model.SortByDue(tasks)

	return truncate(tasks, limit), nil
}

func (r *Memory) CompleteTask(ctx context.Context, id model.TaskID) error {
	return r.transition(id, model.TaskDone, func(t *model.Task) {})
}

func (r *Memory) RescheduleTask(ctx context.Context, id model.TaskID, dueAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return goerr.Wrap(model.ErrTaskNotFound, "failed to reschedule task", goerr.V("id", id))
	}
	if task.Status != model.TaskPending {
		return goerr.Wrap(model.ErrTaskNotPending, "failed to reschedule task", goerr.V("id", id), goerr.V("status", task.Status))
	}
	task.DueAt = &dueAt
	return nil
}

func (r *Memory) MarkTaskReminded(ctx context.Context, id model.TaskID, scratch string) error {
	return r.transition(id, model.TaskReminded, func(t *model.Task) {
		t.Scratch = scratch
	})
}

func (r *Memory) transition(id model.TaskID, next model.TaskStatus, apply func(*model.Task)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return goerr.Wrap(model.ErrTaskNotFound, "failed to update task", goerr.V("id", id))
	}
	if !task.Status.CanTransition(next) {
		return goerr.Wrap(model.ErrTaskNotPending, "failed to update task",
			goerr.V("id", id), goerr.V("status", task.Status), goerr.V("next", next))
	}
	task.Status = next
	apply(task)
	return nil
}

func (r *Memory) PutTurns(ctx context.Context, turns ...*model.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, turn := range turns {
		copied := *turn
		r.turns[turn.Address] = append(r.turns[turn.Address], &copied)
	}
	return nil
}

func (r *Memory) ListRecentTurns(ctx context.Context, addr model.Address, limit int) ([]*model.Turn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	turns := make([]*model.Turn, len(r.turns[addr]))
	for i, turn := range r.turns[addr] {
		copied := *turn
		turns[i] = &copied
	}
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].CreatedAt.Before(turns[j].CreatedAt)
	})

	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

func (r *Memory) Close() error {
	return nil
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
