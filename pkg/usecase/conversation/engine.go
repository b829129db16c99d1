package conversation

import (
	"context"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lily/pkg/adapter"
	"github.com/m-mizutani/lily/pkg/metrics"
	"github.com/m-mizutani/lily/pkg/model"
	"github.com/m-mizutani/lily/pkg/repository"
	"github.com/m-mizutani/lily/pkg/tool"
	"github.com/m-mizutani/lily/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

//go:embed prompt/system.md
var systemPrompt string

const (
	pendingLimit   = 20
	historyLimit   = 20
	completedLimit = 5

	// maxToolRounds is the number of requests allowed to call tools before
	// a final answer without tools is forced
	maxToolRounds = 3

	// FallbackReply is sent when the model returns no text
	FallbackReply = "Got it 👍"
)

// Engine turns one inbound message into a reply, letting the model mutate
// the user's tasks and memory through the tool surface
type Engine struct {
	repo    repository.Repository
	gemini  adapter.Gemini
	tools   *tool.Surface
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func New(repo repository.Repository, gemini adapter.Gemini, tools *tool.Surface, opts ...Option) *Engine {
	e := &Engine{
		repo:   repo,
		gemini: gemini,
		tools:  tools,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type snapshot struct {
	pending   []*model.Task
	completed []*model.Task
	turns     []*model.Turn
	memory    string
}

func (e *Engine) fetch(ctx context.Context, addr model.Address) (*snapshot, error) {
	var s snapshot
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		tasks, err := e.repo.ListTasks(ctx, repository.ListTasksInput{
			Address: addr,
			Status:  model.TaskPending,
			Order:   repository.OrderByDueAsc,
			Limit:   pendingLimit,
		})
		if err != nil {
			return goerr.Wrap(err, "failed to list pending tasks")
		}
		s.pending = tasks
		return nil
	})

	eg.Go(func() error {
		turns, err := e.repo.ListRecentTurns(ctx, addr, historyLimit)
		if err != nil {
			return goerr.Wrap(err, "failed to list recent turns")
		}
		s.turns = turns
		return nil
	})

	eg.Go(func() error {
		user, err := e.repo.GetUser(ctx, addr)
		if errors.Is(err, model.ErrUserNotFound) {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to get user")
		}
		s.memory = user.Memory
		return nil
	})

	eg.Go(func() error {
		tasks, err := e.repo.ListTasks(ctx, repository.ListTasksInput{
			Address: addr,
			Status:  model.TaskDone,
			Order:   repository.OrderByCreatedDesc,
			Limit:   completedLimit,
		})
		if err != nil {
			return goerr.Wrap(err, "failed to list completed tasks")
		}
		s.completed = tasks
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, goerr.Wrap(err, "failed to fetch conversation context", goerr.V("address", addr))
	}
	return &s, nil
}

// Process produces the reply to content sent by addr and records both turns
func (e *Engine) Process(ctx context.Context, addr model.Address, content model.Content) (string, error) {
	started := time.Now()
	logger := logging.From(ctx).With("address", addr)
	ctx = logging.With(ctx, logger)

	snap, err := e.fetch(ctx, addr)
	if err != nil {
		return "", err
	}

	contextBlock := BuildContext(e.now(), e.tools.Location(), snap.memory, snap.pending, snap.completed)
	contents := []*genai.Content{
		genai.NewContentFromText(contextBlock, genai.RoleUser),
	}
	for _, turn := range snap.turns {
		contents = append(contents, historyContent(turn))
	}
	contents = append(contents, formatContent(content))

	reply, err := e.generate(ctx, addr, contents)
	if err != nil {
		return "", err
	}
	if reply == "" {
		reply = FallbackReply
	}

	turns := model.NewTurnPair(addr, content.Transcript(), reply, e.now())
	if err := e.repo.PutTurns(ctx, turns...); err != nil {
		return "", goerr.Wrap(err, "failed to save conversation turns", goerr.V("address", addr))
	}

	e.metrics.ObserveReply(time.Since(started))
	logger.Debug("reply generated", "kind", content.Kind, "reply", reply)
	return reply, nil
}

// generate runs the tool loop and returns the trimmed text of the final response
func (e *Engine) generate(ctx context.Context, addr model.Address, contents []*genai.Content) (string, error) {
	decls, err := tool.Declarations()
	if err != nil {
		return "", err
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, ""),
		Tools:             []*genai.Tool{decls},
	}

	for round := 0; ; round++ {
		if round == maxToolRounds {
			// tools stay declared since the history carries function calls
			config = &genai.GenerateContentConfig{
				SystemInstruction: config.SystemInstruction,
				Tools:             config.Tools,
				ToolConfig: &genai.ToolConfig{
					FunctionCallingConfig: &genai.FunctionCallingConfig{
						Mode: genai.FunctionCallingConfigModeNone,
					},
				},
			}
		}

		resp, err := e.gemini.GenerateContent(ctx, contents, config)
		if err != nil {
			return "", goerr.Wrap(err, "failed to generate reply", goerr.V("round", round))
		}

		// calls returned despite mode NONE are not executed
		if round == maxToolRounds {
			return replyText(resp), nil
		}

		var responses []*genai.Part
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			contents = append(contents, candidate.Content)

			for _, part := range candidate.Content.Parts {
				if part.FunctionCall == nil {
					continue
				}
				funcResp := e.executeTool(ctx, addr, *part.FunctionCall)
				responses = append(responses, &genai.Part{FunctionResponse: funcResp})
			}
		}

		if len(responses) == 0 {
			return replyText(resp), nil
		}

		contents = append(contents, &genai.Content{
			Role:  genai.RoleUser,
			Parts: responses,
		})
	}
}

// executeTool runs one call. A store failure is reported back to the model
// so the conversation can continue.
func (e *Engine) executeTool(ctx context.Context, addr model.Address, fc genai.FunctionCall) *genai.FunctionResponse {
	resp, err := e.tools.Execute(ctx, addr, fc)
	if err != nil {
		logging.From(ctx).Error("tool execution failed", "tool", fc.Name, "error", err)
		return &genai.FunctionResponse{
			ID:       fc.ID,
			Name:     fc.Name,
			Response: map[string]any{"error": err.Error()},
		}
	}
	return resp
}

func replyText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Thought || part.Text == "" {
			continue
		}
		b.WriteString(part.Text)
	}
	return strings.TrimSpace(b.String())
}

func historyContent(turn *model.Turn) *genai.Content {
	if turn.Role == model.RoleAssistant {
		return genai.NewContentFromText(turn.Content, genai.RoleModel)
	}
	return genai.NewContentFromText(turn.Content, genai.RoleUser)
}

func formatContent(content model.Content) *genai.Content {
	if !content.IsMedia() {
		return genai.NewContentFromText(content.Text, genai.RoleUser)
	}
	return genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromBytes(content.Data, content.MIMEType),
	}, genai.RoleUser)
}
