package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/m-mizutani/lily/pkg/adapter"
	"github.com/m-mizutani/lily/pkg/model"
	"github.com/m-mizutani/lily/pkg/usecase/inbound"
	"github.com/m-mizutani/lily/pkg/utils/logging"
)

func (s *Server) handleWhatsAppVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && s.verifyToken != "" && compareTokens(q.Get("hub.verify_token"), s.verifyToken) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, q.Get("hub.challenge"))
		return
	}

	writeJSON(r.Context(), w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
}

// decodeWebhook reads a webhook body. A malformed body is logged and
// reported as false; the caller still acknowledges it so the platform does
// not retry.
func decodeWebhook(r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(v); err != nil {
		logging.From(r.Context()).Warn("malformed webhook payload", "path", r.URL.Path, "error", err)
		return false
	}
	return true
}

func (s *Server) handleWhatsApp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload adapter.WhatsAppWebhook
	if !decodeWebhook(r, &payload) {
		writeOK(ctx, w)
		return
	}

	// status updates carry no message
	msg := payload.FirstMessage()
	if msg == nil {
		writeOK(ctx, w)
		return
	}

	s.dispatch(ctx, inbound.Message{
		Address: msg.Address(),
		Channel: s.whatsapp,
		Build: func(ctx context.Context) (model.Content, error) {
			return s.whatsapp.Normalize(ctx, msg)
		},
	})
	writeOK(ctx, w)
}

func (s *Server) handleTelegram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.telegramSecret != "" && !compareTokens(r.Header.Get(telegramSecretHeader), s.telegramSecret) {
		writeJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	var update adapter.TelegramUpdate
	if !decodeWebhook(r, &update) {
		writeOK(ctx, w)
		return
	}

	msg := update.Message
	if msg == nil {
		writeOK(ctx, w)
		return
	}

	s.dispatch(ctx, inbound.Message{
		Address: msg.Address(),
		Channel: s.telegram,
		Build: func(ctx context.Context) (model.Content, error) {
			return s.telegram.Normalize(ctx, msg)
		},
	})
	writeOK(ctx, w)
}
