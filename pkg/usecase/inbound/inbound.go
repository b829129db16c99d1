package inbound

import (
	"context"
	"mime"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lily/pkg/adapter"
	"github.com/m-mizutani/lily/pkg/metrics"
	"github.com/m-mizutani/lily/pkg/model"
	"github.com/m-mizutani/lily/pkg/repository"
	"github.com/m-mizutani/lily/pkg/utils/logging"
)

// Responder produces the reply to one inbound content unit
type Responder interface {
	Process(ctx context.Context, addr model.Address, content model.Content) (string, error)
}

// Message is one inbound message accepted by a webhook. Build is called in
// the background since it may download media.
type Message struct {
	Address model.Address
	Channel adapter.Channel
	Build   func(ctx context.Context) (model.Content, error)
}

// Pipeline handles inbound messages end to end: content, user, reply, delivery
type Pipeline struct {
	repo      repository.Repository
	responder Responder
	storage   adapter.Storage
	metrics   *metrics.Metrics
}

type Option func(*Pipeline)

// WithStorage archives inbound media to storage
func WithStorage(storage adapter.Storage) Option {
	return func(p *Pipeline) {
		p.storage = storage
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func New(repo repository.Repository, responder Responder, opts ...Option) *Pipeline {
	p := &Pipeline{
		repo:      repo,
		responder: responder,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle processes msg and sends the reply over its channel
func (p *Pipeline) Handle(ctx context.Context, msg Message) (err error) {
	channel := string(msg.Channel.Name())
	defer func() {
		p.metrics.InboundMessage(channel, err)
	}()

	logger := logging.From(ctx).With("address", msg.Address, "channel", channel)
	ctx = logging.With(ctx, logger)

	content, err := msg.Build(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to build inbound content", goerr.V("address", msg.Address))
	}
	logger.Info("inbound message", "kind", content.Kind)

	if content.IsMedia() {
		p.archive(ctx, msg.Address, content)
	}

	if err := p.repo.EnsureUser(ctx, msg.Address); err != nil {
		return goerr.Wrap(err, "failed to ensure user", goerr.V("address", msg.Address))
	}

	reply, err := p.responder.Process(ctx, msg.Address, content)
	if err != nil {
		return err
	}

	if err := msg.Channel.Send(ctx, msg.Address.Recipient(), reply); err != nil {
		return goerr.Wrap(err, "failed to send reply", goerr.V("address", msg.Address))
	}
	return nil
}

// archive stores media best effort; failures are logged only
func (p *Pipeline) archive(ctx context.Context, addr model.Address, content model.Content) {
	if p.storage == nil {
		return
	}

	key := MediaKey(addr, content.MIMEType)
	if err := p.put(ctx, key, content); err != nil {
		logging.From(ctx).Warn("failed to archive media", "key", key, "error", err)
		return
	}
	logging.From(ctx).Debug("media archived", "key", key, "size", len(content.Data))
}

func (p *Pipeline) put(ctx context.Context, key string, content model.Content) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	w, err := p.storage.Put(ctx, key, content.MIMEType)
	if err != nil {
		return err
	}
	if _, err := w.Write(content.Data); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write media", goerr.V("key", key))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to close media writer", goerr.V("key", key))
	}
	return nil
}

// MediaKey returns the archive object key for a media item sent by addr
func MediaKey(addr model.Address, mimeType string) string {
	ext := ""
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	return "media/" + addr.String() + "/" + uuid.NewString() + ext
}
