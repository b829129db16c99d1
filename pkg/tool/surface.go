package tool

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lily/pkg/metrics"
	"github.com/m-mizutani/lily/pkg/model"
	"github.com/m-mizutani/lily/pkg/repository"
	"github.com/m-mizutani/lily/pkg/utils/logging"
	"google.golang.org/genai"
)

const (
	// PreviewDelay is how long after the first task its preview reminder is due
	PreviewDelay = 10 * time.Second

	listLimit = 10

	msgNoMatch       = "no matching task found"
	msgNotPending    = "that task was already closed"
	msgFetchFailed   = "Could not fetch the link"
	readLinkYouTube  = "youtube"
	readLinkWebpage  = "webpage"
	readLinkErrorTyp = "error"
)

// Surface executes tool requests on behalf of one user address at a time
type Surface struct {
	repo    repository.Repository
	fetcher Fetcher
	metrics *metrics.Metrics
	loc     *time.Location
	now     func() time.Time
}

type Option func(*Surface)

func WithFetcher(fetcher Fetcher) Option {
	return func(s *Surface) {
		s.fetcher = fetcher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Surface) {
		s.metrics = m
	}
}

// WithLocation sets the zone used for datetimes without offset
func WithLocation(loc *time.Location) Option {
	return func(s *Surface) {
		s.loc = loc
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Surface) {
		s.now = now
	}
}

func New(repo repository.Repository, opts ...Option) *Surface {
	s := &Surface{
		repo:    repo,
		fetcher: NewFetcher(),
		loc:     time.UTC,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the zone used to interpret and render datetimes
func (s *Surface) Location() *time.Location {
	return s.loc
}

func errorResult(msg string) map[string]any {
	return map[string]any{"error": msg}
}

// Execute decodes fc and runs it for addr. Invalid arguments and unknown
// tools are reported in the response; store failures are returned as error.
// The context logger is expected to carry the address already.
func (s *Surface) Execute(ctx context.Context, addr model.Address, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	logger := logging.From(ctx).With("tool", fc.Name)
	logger.Debug("tool call", "args", fc.Args)

	resp := &genai.FunctionResponse{ID: fc.ID, Name: fc.Name}

	req, err := Decode(fc, s.loc)
	if err != nil {
		s.metrics.ToolCall(fc.Name, err)
		logger.Warn("invalid tool call", "error", err)
		resp.Response = errorResult(err.Error())
		return resp, nil
	}

	result, err := s.Run(ctx, addr, req)
	s.metrics.ToolCall(fc.Name, err)
	if err != nil {
		return nil, err
	}

	logger.Debug("tool result", "result", result)
	resp.Response = result
	return resp, nil
}

// Run performs a decoded request for addr
func (s *Surface) Run(ctx context.Context, addr model.Address, req Request) (map[string]any, error) {
	switch r := req.(type) {
	case *CreateTask:
		return s.createTask(ctx, addr, r)
	case *CompleteTask:
		return s.completeTask(ctx, addr, r)
	case *UpdateTask:
		return s.updateTask(ctx, addr, r)
	case *ListTasks:
		return s.listTasks(ctx, addr)
	case *SaveMemo:
		return s.saveMemo(ctx, addr, r)
	case *ReadLink:
		return s.readLink(ctx, r), nil
	default:
		return nil, goerr.Wrap(ErrUnknownTool, "unhandled tool request", goerr.V("request", req))
	}
}

func (s *Surface) formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.In(s.loc).Format(time.RFC3339)
}

func (s *Surface) createTask(ctx context.Context, addr model.Address, req *CreateTask) (map[string]any, error) {
	now := s.now()
	task := model.NewTask(addr, req.Summary, req.DueAt, now)
	if err := s.repo.PutTask(ctx, task); err != nil {
		return nil, goerr.Wrap(err, "failed to create task", goerr.V("address", addr))
	}

	preview, err := s.createPreview(ctx, addr, req.Summary, now)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"created":    true,
		"summary":    task.Summary,
		"reminderAt": s.formatTime(task.DueAt),
		"preview":    preview,
	}, nil
}

// createPreview adds the demo reminder for a user's first task. The flag is
// read then written without a lock; two concurrent first tasks can both add
// a preview.
func (s *Surface) createPreview(ctx context.Context, addr model.Address, summary string, now time.Time) (bool, error) {
	user, err := s.repo.GetUser(ctx, addr)
	if errors.Is(err, model.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, goerr.Wrap(err, "failed to get user", goerr.V("address", addr))
	}
	if user.FirstTaskSent {
		return false, nil
	}

	due := now.Add(PreviewDelay)
	preview := model.NewTask(addr, summary, &due, now)
	preview.IsPreview = true
	if err := s.repo.PutTask(ctx, preview); err != nil {
		return false, goerr.Wrap(err, "failed to create preview task", goerr.V("address", addr))
	}
	if err := s.repo.MarkFirstTaskSent(ctx, addr); err != nil {
		return false, goerr.Wrap(err, "failed to mark first task", goerr.V("address", addr))
	}

	logging.From(ctx).Info("preview reminder scheduled", "address", addr, "task_id", preview.ID)
	return true, nil
}

// candidates returns the user's pending tasks most recent first, without
// preview tasks since they are not something the user asked for
func (s *Surface) candidates(ctx context.Context, addr model.Address) ([]*model.Task, error) {
	tasks, err := s.repo.ListTasks(ctx, repository.ListTasksInput{
		Address: addr,
		Status:  model.TaskPending,
		Order:   repository.OrderByCreatedDesc,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list pending tasks", goerr.V("address", addr))
	}

	filtered := tasks[:0]
	for _, t := range tasks {
		if !t.IsPreview {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

func (s *Surface) completeTask(ctx context.Context, addr model.Address, req *CompleteTask) (map[string]any, error) {
	tasks, err := s.candidates(ctx, addr)
	if err != nil {
		return nil, err
	}

	match := FindBestMatch(tasks, req.Hint)
	if match == nil {
		return errorResult(msgNoMatch), nil
	}

	if err := s.repo.CompleteTask(ctx, match.ID); err != nil {
		if errors.Is(err, model.ErrTaskNotPending) {
			return errorResult(msgNotPending), nil
		}
		return nil, goerr.Wrap(err, "failed to complete task", goerr.V("task_id", match.ID))
	}

	return map[string]any{"completed": match.Summary}, nil
}

func (s *Surface) updateTask(ctx context.Context, addr model.Address, req *UpdateTask) (map[string]any, error) {
	tasks, err := s.candidates(ctx, addr)
	if err != nil {
		return nil, err
	}

	match := FindBestMatch(tasks, req.Hint)
	if match == nil {
		return errorResult(msgNoMatch), nil
	}

	if err := s.repo.RescheduleTask(ctx, match.ID, req.DueAt); err != nil {
		if errors.Is(err, model.ErrTaskNotPending) {
			return errorResult(msgNotPending), nil
		}
		return nil, goerr.Wrap(err, "failed to reschedule task", goerr.V("task_id", match.ID))
	}

	return map[string]any{
		"updated": match.Summary,
		"oldTime": s.formatTime(match.DueAt),
		"newTime": s.formatTime(&req.DueAt),
	}, nil
}

func (s *Surface) listTasks(ctx context.Context, addr model.Address) (map[string]any, error) {
	tasks, err := s.repo.ListTasks(ctx, repository.ListTasksInput{
		Address: addr,
		Status:  model.TaskPending,
		Order:   repository.OrderByDueAsc,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list tasks", goerr.V("address", addr))
	}

	items := make([]map[string]any, 0, listLimit)
	for _, t := range tasks {
		if t.IsPreview {
			continue
		}
		items = append(items, map[string]any{
			"summary":    t.Summary,
			"reminderAt": s.formatTime(t.DueAt),
		})
		if len(items) == listLimit {
			break
		}
	}

	return map[string]any{"tasks": items}, nil
}

func (s *Surface) saveMemo(ctx context.Context, addr model.Address, req *SaveMemo) (map[string]any, error) {
	user, err := s.repo.GetUser(ctx, addr)
	if err != nil && !errors.Is(err, model.ErrUserNotFound) {
		return nil, goerr.Wrap(err, "failed to get user", goerr.V("address", addr))
	}
	if user == nil {
		if err := s.repo.EnsureUser(ctx, addr); err != nil {
			return nil, goerr.Wrap(err, "failed to create user", goerr.V("address", addr))
		}
	}

	if err := s.repo.UpdateUserMemory(ctx, addr, user.AppendMemory(req.Memo)); err != nil {
		return nil, goerr.Wrap(err, "failed to save memo", goerr.V("address", addr))
	}

	return map[string]any{"saved": req.Memo}, nil
}

func (s *Surface) readLink(ctx context.Context, req *ReadLink) map[string]any {
	if IsVideoLink(req.URL) {
		return map[string]any{"type": readLinkYouTube, "url": req.URL}
	}

	content, err := s.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		logging.From(ctx).Warn("failed to read link", "url", req.URL, "error", err)
		return map[string]any{"type": readLinkErrorTyp, "message": msgFetchFailed}
	}

	return map[string]any{"type": readLinkWebpage, "content": content}
}
