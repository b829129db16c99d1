package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lily/pkg/adapter"
	"github.com/m-mizutani/lily/pkg/metrics"
	"github.com/m-mizutani/lily/pkg/server"
	"github.com/m-mizutani/lily/pkg/tool"
	"github.com/m-mizutani/lily/pkg/usecase/conversation"
	"github.com/m-mizutani/lily/pkg/usecase/inbound"
	"github.com/m-mizutani/lily/pkg/usecase/scratch"
	"github.com/m-mizutani/lily/pkg/usecase/sweep"
	"github.com/m-mizutani/lily/pkg/utils/async"
	"github.com/m-mizutani/lily/pkg/utils/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"
)

const (
	shutdownTimeout = 30 * time.Second
	// backgroundTimeout bounds one inbound message: media download, model rounds and delivery
	backgroundTimeout = 5 * time.Minute
)

func serveCommand() *cli.Command {
	var cfg config

	flags := []cli.Flag{}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, channelFlags(&cfg)...)
	flags = append(flags, serverFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve channel webhooks and the sweep endpoint",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			return runServe(ctx, &cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config) error {
	logger := logging.From(ctx)

	if cfg.sweepSecret == "" {
		return goerr.New("sweep-secret is required")
	}
	if cfg.whatsappVerifyToken == "" {
		return goerr.New("whatsapp-verify-token is required")
	}
	wa, err := cfg.newWhatsApp()
	if err != nil {
		return err
	}
	tg, err := cfg.newTelegram()
	if err != nil {
		return err
	}
	loc, err := cfg.location()
	if err != nil {
		return err
	}

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Warn("failed to close repository", "error", err)
		}
	}()

	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	surface := tool.New(repo, tool.WithLocation(loc), tool.WithMetrics(m))
	engine := conversation.New(repo, gemini, surface, conversation.WithMetrics(m))

	pipelineOpts := []inbound.Option{inbound.WithMetrics(m)}
	if cfg.mediaBucket != "" {
		storage, err := cfg.newStorage(ctx)
		if err != nil {
			return err
		}
		pipelineOpts = append(pipelineOpts, inbound.WithStorage(storage))
	}
	pipeline := inbound.New(repo, engine, pipelineOpts...)

	router := adapter.NewRouter(wa, tg)
	sweeper := sweep.New(repo, scratch.New(gemini), router, sweep.WithMetrics(m))

	srv := server.New(pipeline,
		server.WithWhatsApp(wa, cfg.whatsappVerifyToken),
		server.WithTelegram(tg, cfg.telegramSecret),
		server.WithSweep(sweeper, cfg.sweepSecret),
		server.WithGatherer(registry),
		server.WithExecutor(async.New(async.WithTimeout(backgroundTimeout))),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.sweepSchedule != "" {
		scheduler, err := newSweepScheduler(ctx, cfg.sweepSchedule, sweeper)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() {
			<-scheduler.Stop().Done()
		}()
		logger.Info("sweep scheduled", "schedule", cfg.sweepSchedule)
	}

	httpServer := &http.Server{
		Addr:              cfg.addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		logger.Info("starting server", "addr", cfg.addr, "store", cfg.store, "timezone", loc.String())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return goerr.Wrap(err, "server failed", goerr.V("addr", cfg.addr))
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "failed to shutdown server")
	}
	if err := srv.Executor().Wait(shutdownCtx); err != nil {
		return goerr.Wrap(err, "background work did not finish")
	}
	return nil
}

// newSweepScheduler runs sweeper on schedule. A sweep still running when the
// next one is due is skipped.
func newSweepScheduler(ctx context.Context, schedule string, sweeper *sweep.Sweeper) (*cron.Cron, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	scheduler := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	logger := logging.From(ctx)
	_, err := scheduler.AddFunc(schedule, func() {
		n, err := sweeper.Run(ctx)
		if err != nil {
			logger.Error("scheduled sweep failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("scheduled sweep done", "processed", n)
		}
	})
	if err != nil {
		return nil, goerr.Wrap(err, "invalid sweep schedule", goerr.V("schedule", schedule))
	}
	return scheduler, nil
}
