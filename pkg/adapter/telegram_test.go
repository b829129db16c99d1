package adapter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lily/pkg/adapter"
	"github.com/m-mizutani/lily/pkg/model"
)

func newTelegramServer(t *testing.T) *httptest.Server {
	files := map[string]string{
		"VOICE":  "voice/file_1.oga",
		"PHOTO3": "photos/file_3.JPG",
		"DOC":    "documents/report.xyz",
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/botBOT/getFile":
			path, ok := files[r.URL.Query().Get("file_id")]
			if !ok {
				_, _ = w.Write([]byte(`{"ok":false,"description":"file not found"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok":     true,
				"result": map[string]string{"file_path": path},
			})
		case "/file/botBOT/voice/file_1.oga":
			_, _ = w.Write([]byte("voice"))
		case "/file/botBOT/photos/file_3.JPG":
			_, _ = w.Write([]byte("photo"))
		case "/file/botBOT/documents/report.xyz":
			_, _ = w.Write([]byte("doc"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestTelegramFetchMedia(t *testing.T) {
	srv := newTelegramServer(t)
	defer srv.Close()
	tg := adapter.NewTelegram("BOT", adapter.WithTelegramURL(srv.URL))
	ctx := context.Background()

	media, err := tg.FetchMedia(ctx, "VOICE")
	gt.NoError(t, err)
	gt.Equal(t, string(media.Data), "voice")
	gt.Equal(t, media.MIMEType, "audio/ogg")

	media, err = tg.FetchMedia(ctx, "PHOTO3")
	gt.NoError(t, err)
	gt.Equal(t, media.MIMEType, "image/jpeg")

	media, err = tg.FetchMedia(ctx, "DOC")
	gt.NoError(t, err)
	gt.Equal(t, media.MIMEType, "application/octet-stream")

	_, err = tg.FetchMedia(ctx, "UNKNOWN")
	gt.Error(t, err)
}

func TestTelegramNormalize(t *testing.T) {
	srv := newTelegramServer(t)
	defer srv.Close()
	tg := adapter.NewTelegram("BOT", adapter.WithTelegramURL(srv.URL))
	ctx := context.Background()

	parse := func(body string) *adapter.TelegramMessage {
		var update adapter.TelegramUpdate
		gt.NoError(t, json.Unmarshal([]byte(body), &update))
		return update.Message
	}

	t.Run("largest photo", func(t *testing.T) {
		msg := parse(`{"message":{"chat":{"id":-100200},"photo":[{"file_id":"PHOTO1"},{"file_id":"PHOTO2"},{"file_id":"PHOTO3"}]}}`)
		gt.Equal(t, msg.Address(), model.Address("tg_-100200"))
		gt.Equal(t, msg.ChatID(), "-100200")

		content, err := tg.Normalize(ctx, msg)
		gt.NoError(t, err)
		gt.Equal(t, content.Kind, model.ContentImage)
		gt.Equal(t, string(content.Data), "photo")
	})

	t.Run("voice", func(t *testing.T) {
		content, err := tg.Normalize(ctx, parse(`{"message":{"chat":{"id":1},"voice":{"file_id":"VOICE"}}}`))
		gt.NoError(t, err)
		gt.Equal(t, content.Kind, model.ContentAudio)
	})

	t.Run("text", func(t *testing.T) {
		content, err := tg.Normalize(ctx, parse(`{"message":{"chat":{"id":1},"text":"remind me at 5"}}`))
		gt.NoError(t, err)
		gt.Equal(t, content.Text, "remind me at 5")
	})

	t.Run("sticker is unsupported", func(t *testing.T) {
		content, err := tg.Normalize(ctx, parse(`{"message":{"chat":{"id":1},"sticker":{"file_id":"S"}}}`))
		gt.NoError(t, err)
		gt.Equal(t, content.Text, "[Received an unsupported message type]")
	})

	t.Run("missing update message", func(t *testing.T) {
		gt.True(t, parse(`{"edited_message":{"chat":{"id":1}}}`) == nil)
	})
}

func TestTelegramFetchMediaTooLarge(t *testing.T) {
	srv := newTelegramServer(t)
	defer srv.Close()
	tg := adapter.NewTelegram("BOT",
		adapter.WithTelegramURL(srv.URL),
		adapter.WithTelegramMediaLimit(3),
	)

	_, err := tg.FetchMedia(context.Background(), "VOICE")
	gt.Error(t, err)

	media, err := tg.FetchMedia(context.Background(), "DOC")
	gt.NoError(t, err)
	gt.Equal(t, string(media.Data), "doc")
}
