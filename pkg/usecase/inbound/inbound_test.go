package inbound_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lily/pkg/adapter"
	"github.com/m-mizutani/lily/pkg/model"
	"github.com/m-mizutani/lily/pkg/repository"
	"github.com/m-mizutani/lily/pkg/usecase/inbound"
)

type mockResponder struct {
	reply    string
	err      error
	received []model.Content
}

func (m *mockResponder) Process(ctx context.Context, addr model.Address, content model.Content) (string, error) {
	m.received = append(m.received, content)
	return m.reply, m.err
}

type outbound struct {
	to   string
	text string
}

type mockChannel struct {
	kind model.ChannelKind
	sent []outbound
}

func (m *mockChannel) Name() model.ChannelKind { return m.kind }

func (m *mockChannel) Send(ctx context.Context, to, text string) error {
	m.sent = append(m.sent, outbound{to: to, text: text})
	return nil
}

func (m *mockChannel) FetchMedia(ctx context.Context, mediaID string) (*adapter.Media, error) {
	return nil, errors.New("not supported")
}

type mockStorage struct {
	err     error
	objects map[string][]byte
	types   map[string]string
}

func newMockStorage() *mockStorage {
	return &mockStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *mockStorage) Put(ctx context.Context, key, contentType string) (io.WriteCloser, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.types[key] = contentType
	return &mockWriter{storage: m, key: key}, nil
}

type mockWriter struct {
	bytes.Buffer
	storage *mockStorage
	key     string
}

func (w *mockWriter) Close() error {
	w.storage.objects[w.key] = w.Bytes()
	return nil
}

func textMessage(addr model.Address, ch adapter.Channel, text string) inbound.Message {
	return inbound.Message{
		Address: addr,
		Channel: ch,
		Build: func(ctx context.Context) (model.Content, error) {
			return model.NewTextContent(text), nil
		},
	}
}

func TestHandle(t *testing.T) {
	repo := repository.NewMemory()
	responder := &mockResponder{reply: "Got it 👍"}
	ch := &mockChannel{kind: model.ChannelTelegram}
	addr := model.NewTelegramAddress("4242")

	p := inbound.New(repo, responder)
	gt.NoError(t, p.Handle(context.Background(), textMessage(addr, ch, "remind me to call Tom")))

	user, err := repo.GetUser(context.Background(), addr)
	gt.NoError(t, err)
	gt.Equal(t, user.Address, addr)

	gt.A(t, responder.received).Length(1)
	gt.Equal(t, responder.received[0].Text, "remind me to call Tom")

	gt.A(t, ch.sent).Length(1)
	gt.Equal(t, ch.sent[0].to, "4242")
	gt.Equal(t, ch.sent[0].text, "Got it 👍")
}

func TestHandleKeepsExistingUser(t *testing.T) {
	repo := repository.NewMemory()
	addr := model.NewWhatsAppAddress("15550001111")
	ctx := context.Background()

	gt.NoError(t, repo.EnsureUser(ctx, addr))
	gt.NoError(t, repo.UpdateUserMemory(ctx, addr, "prefers morning reminders"))

	p := inbound.New(repo, &mockResponder{reply: "hey"})
	gt.NoError(t, p.Handle(ctx, textMessage(addr, &mockChannel{kind: model.ChannelWhatsApp}, "hi")))

	user, err := repo.GetUser(ctx, addr)
	gt.NoError(t, err)
	gt.Equal(t, user.Memory, "prefers morning reminders")
}

func TestHandleFailures(t *testing.T) {
	addr := model.NewWhatsAppAddress("15550001111")

	t.Run("build failure", func(t *testing.T) {
		responder := &mockResponder{reply: "hey"}
		ch := &mockChannel{kind: model.ChannelWhatsApp}
		p := inbound.New(repository.NewMemory(), responder)

		err := p.Handle(context.Background(), inbound.Message{
			Address: addr,
			Channel: ch,
			Build: func(ctx context.Context) (model.Content, error) {
				return model.Content{}, errors.New("media download failed")
			},
		})
		gt.Error(t, err)
		gt.A(t, responder.received).Length(0)
		gt.A(t, ch.sent).Length(0)
	})

	t.Run("engine failure sends nothing", func(t *testing.T) {
		ch := &mockChannel{kind: model.ChannelWhatsApp}
		p := inbound.New(repository.NewMemory(), &mockResponder{err: errors.New("model unavailable")})

		gt.Error(t, p.Handle(context.Background(), textMessage(addr, ch, "hi")))
		gt.A(t, ch.sent).Length(0)
	})
}

func TestHandleArchivesMedia(t *testing.T) {
	addr := model.NewTelegramAddress("4242")
	storage := newMockStorage()
	responder := &mockResponder{reply: "Nice photo"}
	p := inbound.New(repository.NewMemory(), responder, inbound.WithStorage(storage))

	msg := inbound.Message{
		Address: addr,
		Channel: &mockChannel{kind: model.ChannelTelegram},
		Build: func(ctx context.Context) (model.Content, error) {
			return model.NewMediaContent(model.ContentImage, []byte("png-bytes"), "image/png"), nil
		},
	}
	gt.NoError(t, p.Handle(context.Background(), msg))

	gt.Equal(t, len(storage.objects), 1)
	for key, data := range storage.objects {
		gt.True(t, strings.HasPrefix(key, "media/tg_4242/"))
		gt.True(t, strings.HasSuffix(key, ".png"))
		gt.Equal(t, data, []byte("png-bytes"))
		gt.Equal(t, storage.types[key], "image/png")
	}

	// text is never archived
	gt.NoError(t, p.Handle(context.Background(), textMessage(addr, &mockChannel{kind: model.ChannelTelegram}, "hi")))
	gt.Equal(t, len(storage.objects), 1)
}

func TestHandleArchiveFailureDoesNotBlock(t *testing.T) {
	storage := newMockStorage()
	storage.err = errors.New("bucket not found")
	ch := &mockChannel{kind: model.ChannelWhatsApp}
	p := inbound.New(repository.NewMemory(), &mockResponder{reply: "Got it"}, inbound.WithStorage(storage))

	err := p.Handle(context.Background(), inbound.Message{
		Address: model.NewWhatsAppAddress("15550001111"),
		Channel: ch,
		Build: func(ctx context.Context) (model.Content, error) {
			return model.NewMediaContent(model.ContentFile, []byte("%PDF"), "application/pdf"), nil
		},
	})
	gt.NoError(t, err)
	gt.A(t, ch.sent).Length(1)
}
