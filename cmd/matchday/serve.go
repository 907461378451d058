package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/edvart/matchday/internal/aggregate"
	"github.com/edvart/matchday/internal/auth"
	"github.com/edvart/matchday/internal/broadcast"
	"github.com/edvart/matchday/internal/config"
	"github.com/edvart/matchday/internal/live"
	"github.com/edvart/matchday/internal/notify"
	"github.com/edvart/matchday/internal/push"
	"github.com/edvart/matchday/internal/standings"
	"github.com/edvart/matchday/internal/store"
	"github.com/edvart/matchday/internal/web"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and live broadcast server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(serve)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *logrus.Logger, st *store.SQLiteStore) error {
	hub := broadcast.NewHub(log)

	table := standings.NewEngine(st, hub, log)
	agg := aggregate.NewEngine(st, table, log)
	svc := live.NewService(st, agg, table, hub, log)

	reporters := auth.NewReporterConfig(cfg.ReporterTokens)
	if reporters.Open() {
		log.Warn("REPORTER_TOKENS not set, mutation routes are open")
	}

	var workers sync.WaitGroup

	// Push notifications to match followers
	pushService := push.NewService(st, push.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		VAPIDSubject:    cfg.VAPIDSubject,
	}, log)
	if pushService.Enabled() {
		sub := hub.Subscribe()
		notifier := push.NewNotifier(pushService, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			notifier.Run(ctx, sub.Messages())
		}()
	} else {
		log.Info("VAPID keys not configured, push notifications disabled")
	}

	// Outbound relay to webhook and AMQP sinks
	var sinks []notify.Sink
	if cfg.NotifyWebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.NotifyWebhookURL))
	}
	if cfg.NotifyAMQPURL != "" {
		amqpSink := notify.NewAMQPSink(cfg.NotifyAMQPURL, cfg.NotifyAMQPExchange)
		defer amqpSink.Close()
		sinks = append(sinks, amqpSink)
	}
	relay := notify.NewRelay(log, cfg.NotifyQueueSize, cfg.NotifyTimeout, sinks...)
	if relay.Enabled() {
		sub := hub.Subscribe()
		workers.Add(1)
		go func() {
			defer workers.Done()
			relay.Run(ctx, sub.Messages())
		}()
	}

	server := web.NewServer(web.Deps{
		Store:     st,
		Live:      svc,
		Standings: table,
		Hub:       hub,
		Push:      pushService,
		Reporters: reporters,
		Logger:    log,
	}, web.Config{
		CORSAllowOrigins:  cfg.CORSAllowOrigins,
		RateLimitEnabled:  cfg.RateLimitEnabled,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	})

	// No WriteTimeout: event streams stay open.
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case serveErr = <-errCh:
	}

	// Closing the hub ends every stream so Shutdown does not wait on them.
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown error")
	}

	workers.Wait()
	log.Info("server stopped")
	return serveErr
}
