package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lily/pkg/metrics"
	"github.com/m-mizutani/lily/pkg/model"
	"github.com/m-mizutani/lily/pkg/repository"
	"github.com/m-mizutani/lily/pkg/utils/logging"
)

// DefaultBatchSize is the number of due tasks handled by one sweep
const DefaultBatchSize = 20

// Scratcher writes the first-step nudge for a task summary
type Scratcher interface {
	Generate(ctx context.Context, summary string) (string, error)
}

// Sender delivers text to the channel of an address
type Sender interface {
	Send(ctx context.Context, addr model.Address, text string) error
}

// Sweeper delivers reminders for due tasks
type Sweeper struct {
	repo      repository.Repository
	scratcher Scratcher
	sender    Sender
	metrics   *metrics.Metrics
	batchSize int
	now       func() time.Time
}

type Option func(*Sweeper)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		s.batchSize = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

func New(repo repository.Repository, scratcher Scratcher, sender Sender, opts ...Option) *Sweeper {
	s := &Sweeper{
		repo:      repo,
		scratcher: scratcher,
		sender:    sender,
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FormatReminder renders the message delivered for task
func FormatReminder(task *model.Task, scratch string) string {
	if task.IsPreview {
		return fmt.Sprintf("Here's a preview of what a real reminder feels like 👇\n\n📋 %s\n%s\n\n"+
			"That's a scratch — just enough to get you started, not a whole plan.\n"+
			"I'll send you one like this at the actual reminder time ✨", task.Summary, scratch)
	}
	return fmt.Sprintf("Hey — %s\n\n%s", task.Summary, scratch)
}

// Run reminds due tasks and returns how many were delivered and marked. A
// failing task is logged and left for the next run; only a failed due-task
// query is returned as error.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	tasks, err := s.repo.ListDueTasks(ctx, s.now(), s.batchSize)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list due tasks")
	}

	processed := 0
	for _, task := range tasks {
		logger := logging.From(ctx).With("task_id", task.ID, "address", task.Address)
		taskCtx := logging.With(ctx, logger)

		label := metrics.ResultSuccess
		if err := s.remind(taskCtx, task); err != nil {
			if errors.Is(err, model.ErrTaskNotPending) {
				label = metrics.ResultSkipped
				logger.Info("task closed before it was marked reminded", "error", err)
			} else {
				label = metrics.ResultError
				logger.Error("failed to remind task", "error", err)
			}
		} else {
			processed++
		}
		s.metrics.SweepTask(label)
	}

	if len(tasks) > 0 {
		logging.From(ctx).Info("sweep finished", "due", len(tasks), "processed", processed)
	}
	return processed, nil
}

func (s *Sweeper) remind(ctx context.Context, task *model.Task) error {
	scratch, err := s.scratcher.Generate(ctx, task.Summary)
	if err != nil {
		return err
	}

	if err := s.sender.Send(ctx, task.Address, FormatReminder(task, scratch)); err != nil {
		return goerr.Wrap(err, "failed to send reminder")
	}

	// the reminder is out; a store failure here leaves the task pending and
	// it is delivered again by the next run
	if err := s.repo.MarkTaskReminded(ctx, task.ID, scratch); err != nil {
		return goerr.Wrap(err, "failed to mark task reminded")
	}
	return nil
}
