package server

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/lily/pkg/adapter"
	"github.com/m-mizutani/lily/pkg/usecase/inbound"
	"github.com/m-mizutani/lily/pkg/utils/async"
	"github.com/m-mizutani/lily/pkg/utils/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// maxWebhookBody bounds webhook payloads; media arrives by reference
	maxWebhookBody = 1 << 20

	telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// InboundHandler processes one accepted inbound message
type InboundHandler interface {
	Handle(ctx context.Context, msg inbound.Message) error
}

// Sweeper runs one reminder sweep
type Sweeper interface {
	Run(ctx context.Context) (int, error)
}

// Server serves channel webhooks, the sweep endpoint, health and metrics
type Server struct {
	mux      *http.ServeMux
	executor *async.Executor
	inbound  InboundHandler

	whatsapp    *adapter.WhatsApp
	verifyToken string

	telegram       *adapter.Telegram
	telegramSecret string

	sweeper     Sweeper
	sweepSecret string

	gatherer prometheus.Gatherer
}

type Option func(*Server)

// WithWhatsApp enables the WhatsApp webhook. verifyToken answers the subscription handshake.
func WithWhatsApp(wa *adapter.WhatsApp, verifyToken string) Option {
	return func(s *Server) {
		s.whatsapp = wa
		s.verifyToken = verifyToken
	}
}

// WithTelegram enables the Telegram webhook. A non-empty secret must match
// the secret token header of every update.
func WithTelegram(tg *adapter.Telegram, secret string) Option {
	return func(s *Server) {
		s.telegram = tg
		s.telegramSecret = secret
	}
}

// WithSweep enables the sweep endpoint guarded by a bearer secret
func WithSweep(sweeper Sweeper, secret string) Option {
	return func(s *Server) {
		s.sweeper = sweeper
		s.sweepSecret = secret
	}
}

// WithExecutor sets the executor running inbound messages after acknowledgment
func WithExecutor(x *async.Executor) Option {
	return func(s *Server) {
		s.executor = x
	}
}

// WithGatherer exposes collectors of g on /metrics
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

func New(handler InboundHandler, opts ...Option) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		inbound: handler,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.executor == nil {
		s.executor = async.New()
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.whatsapp != nil {
		s.mux.HandleFunc("GET /webhook/whatsapp", s.handleWhatsAppVerify)
		s.mux.HandleFunc("POST /webhook/whatsapp", s.handleWhatsApp)
	}
	if s.telegram != nil {
		s.mux.HandleFunc("POST /webhook/telegram", s.handleTelegram)
	}
	if s.sweeper != nil {
		s.mux.HandleFunc("GET /api/cron/sweep", s.handleSweep)
		s.mux.HandleFunc("POST /api/cron/sweep", s.handleSweep)
	}
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

// Executor returns the executor running background work, for shutdown
func (s *Server) Executor() *async.Executor {
	return s.executor
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	logger := logging.From(r.Context()).With("request_id", uuid.NewString())
	r = r.WithContext(logging.With(r.Context(), logger))

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)

	logger.Debug("request handled",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration", time.Since(started),
	)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.From(ctx).Warn("failed to write response", "error", err)
	}
}

func writeOK(ctx context.Context, w http.ResponseWriter) {
	writeJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

// compareTokens hashes both inputs so the comparison time does not depend on length
func compareTokens(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(r.Context(), w)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || s.sweepSecret == "" || !compareTokens(token, s.sweepSecret) {
		writeJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	processed, err := s.sweeper.Run(ctx)
	if err != nil {
		logging.From(ctx).Error("sweep failed", "error", err)
		writeJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
		return
	}

	writeJSON(ctx, w, http.StatusOK, map[string]int{"processed": processed})
}

// dispatch acknowledges the webhook and hands msg to the executor
func (s *Server) dispatch(ctx context.Context, msg inbound.Message) {
	s.executor.Submit(ctx, "inbound:"+msg.Address.String(), func(ctx context.Context) error {
		return s.inbound.Handle(ctx, msg)
	})
}
