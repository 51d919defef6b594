// Command gatewaylogsd runs the full Gateway Logs Pipeline: ingress,
// normalizer consumer, and the submission API, as one process. Grounded on
// the teacher's cmd/api/main.go for the http.Server + signal.Notify +
// Shutdown(ctx) graceful-shutdown idiom, and cmd/socket-gateway/main.go for
// the plain select-on-signal-channel loop shape for the background
// consumer goroutines.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/architus/gateway-logs-pipeline/internal/activeguild"
	"github.com/architus/gateway-logs-pipeline/internal/auditlog"
	"github.com/architus/gateway-logs-pipeline/internal/backoff"
	"github.com/architus/gateway-logs-pipeline/internal/batcher"
	"github.com/architus/gateway-logs-pipeline/internal/bus"
	"github.com/architus/gateway-logs-pipeline/internal/canonical"
	"github.com/architus/gateway-logs-pipeline/internal/config"
	"github.com/architus/gateway-logs-pipeline/internal/connection"
	"github.com/architus/gateway-logs-pipeline/internal/featuregate"
	"github.com/architus/gateway-logs-pipeline/internal/idgen"
	"github.com/architus/gateway-logs-pipeline/internal/ingress"
	"github.com/architus/gateway-logs-pipeline/internal/logging"
	"github.com/architus/gateway-logs-pipeline/internal/normalizer"
	"github.com/architus/gateway-logs-pipeline/internal/publisher"
	"github.com/architus/gateway-logs-pipeline/internal/rawframe"
	"github.com/architus/gateway-logs-pipeline/internal/searchindex"
	"github.com/architus/gateway-logs-pipeline/internal/submission"
	"github.com/architus/gateway-logs-pipeline/internal/uptime"
)

func main() {
	cfg := config.Get()
	logger := logging.Init(logging.Config{Level: cfg.Logging.Level, JSON: cfg.Logging.JSON || cfg.IsProduction()})
	logger = logger.With("component", "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ids, err := idgen.NewDeterministic([]byte(cfg.Normalizer.IDSecret))
	if err != nil {
		logger.Error("invalid id secret", "error", err)
		os.Exit(1)
	}

	theBus, err := bus.NewPubSubBus(ctx, cfg.Bus.ProjectID, cfg.Bus.TopicID, bus.WithSubscription(cfg.Bus.SubscriptionID))
	if err != nil {
		logger.Error("failed to connect to bus", "error", err)
		os.Exit(1)
	}
	defer theBus.Close()

	dial := func(ctx context.Context) (bus.Publisher, error) { return theBus, nil }
	factory := publisher.New(dial, cfg.Publisher.PublishConcurrency, backoffFromPublisher(cfg))

	table := normalizer.NewTable()

	gw := ingress.New(table, factory, ingress.Config{
		URL:                cfg.Ingress.URL,
		QueueSize:          cfg.Ingress.QueueSize,
		PublishConcurrency: cfg.Ingress.PublishConcurrency,
		DialBackoff:        backoffFromIngress(cfg),
		Logger:             logger,
	})

	fgate := featuregate.New(featuregate.Config{
		BaseURL: cfg.FeatureGate.BaseURL,
		APIKey:  cfg.FeatureGate.APIKey,
		Timeout: time.Duration(cfg.FeatureGate.TimeoutSec) * time.Second,
	})

	var guildCache activeguild.Cache
	if cfg.ActiveGuild.Feature != "" {
		if rc := os.Getenv("GATEWAYLOGS_REDIS_ADDR"); rc != "" {
			guildCache = activeguild.NewRedisCache(redis.NewClient(&redis.Options{Addr: rc}), "", 0)
		}
	}

	guilds := activeguild.New(fgate, activeguild.Config{
		Feature:          cfg.ActiveGuild.Feature,
		BatchSize:        cfg.ActiveGuild.BatchSize,
		EvictionDuration: time.Duration(cfg.ActiveGuild.EvictionDurationMin) * time.Minute,
		EagerLoadBackoff: backoffFromActiveGuild(cfg),
		Logger:           logger,
		Cache:            guildCache,
	})

	uptimeClient := uptime.New(uptime.Config{
		BaseURL: cfg.Uptime.BaseURL,
		APIKey:  cfg.Uptime.APIKey,
		Timeout: time.Duration(cfg.Uptime.TimeoutSec) * time.Second,
	})

	auditClient := auditlog.NewGatewayClient(auditlog.GatewayClientConfig{
		BaseURL: cfg.Ingress.URL,
		Token:   cfg.Ingress.Token,
	})
	auditSearcher := auditlog.New(auditClient.FetchPage, auditlog.Config{
		InitialBackoff:     time.Duration(cfg.AuditLog.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:         time.Duration(cfg.AuditLog.MaxBackoffSec) * time.Second,
		Deadline:           time.Duration(cfg.AuditLog.DeadlineSec) * time.Second,
		DefaultPageSize:    cfg.AuditLog.DefaultPageSize,
		IgnoreThreshold:    time.Duration(cfg.AuditLog.IgnoreThresholdSec) * time.Second,
		RateLimitPerSecond: float64(cfg.AuditLog.RateLimitPerSecond),
		RateLimitBurst:     cfg.AuditLog.RateLimitBurst,
	})

	indexClient := searchindex.New(searchindex.Config{
		BaseURL: cfg.SearchIndex.BaseURL,
		Index:   cfg.SearchIndex.Index,
		APIKey:  cfg.SearchIndex.APIKey,
		Timeout: time.Duration(cfg.SearchIndex.TimeoutSec) * time.Second,
	})

	bulkBatcher := batcher.New(indexClient, batcher.Config{
		DebounceSize:   cfg.Batcher.DebounceSize,
		DebouncePeriod: time.Duration(cfg.Batcher.DebouncePeriodMs) * time.Millisecond,
		BulkBackoff:    backoffFromBatcher(cfg),
		Logger:         logger,
	})
	defer bulkBatcher.Close()

	submissionSvc := &submission.BatcherService{Batcher: bulkBatcher}

	tracker := connection.New(uint64(time.Now().UnixNano()), 5*time.Second)
	defer tracker.Close()

	go forwardUptimeBatches(ctx, tracker, guilds, uptimeClient)
	go consumeNormalized(ctx, theBus, table, guilds, auditSearcher, ids, bulkBatcher, logger, cfg)
	go reconcileLoop(ctx, guilds, time.Duration(cfg.ActiveGuild.ReconcileIntervalSec)*time.Second)

	go func() {
		if err := gw.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("ingress exited", "error", err)
		}
	}()

	grpcServer := grpc.NewServer()
	submission.RegisterServer(grpcServer, submissionSvc)
	grpcLis, err := net.Listen("tcp", cfg.Submission.GRPCAddr)
	if err != nil {
		logger.Error("failed to bind grpc listener", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Error("grpc server stopped", "error", err)
		}
	}()

	router := mux.NewRouter()
	router.HandleFunc("/submit", submission.HTTPHandler(submissionSvc)).Methods(http.MethodPost)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.HandleFunc("/debug/activeguild", func(w http.ResponseWriter, r *http.Request) {
		total, active := guilds.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"total": total, "active": active})
	})

	httpServer := &http.Server{
		Addr:         cfg.Submission.HTTPAddr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("http admin surface listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}
	grpcServer.GracefulStop()
	logger.Info("shutdown complete")
}

// consumeNormalized drains the durable bus, runs each frame through the
// normalizer, gates on the Active-Guild Set, and submits the result to the
// batcher — the Normalizer Consumer of spec.md §4.4.
func consumeNormalized(
	ctx context.Context,
	b bus.Subscriber,
	table *normalizer.Table,
	guilds *activeguild.Set,
	searcher *auditlog.Searcher,
	ids *idgen.Deterministic,
	bulkBatcher *batcher.Batcher,
	logger *slog.Logger,
	cfg *config.Config,
) {
	err := b.Receive(ctx, func(ctx context.Context, frame rawframe.Frame) error {
		if !guilds.IsActive(ctx, frame.GuildID) {
			return nil // Fatal-Drop-equivalent: not in the active set, ack and discard
		}

		nctx := normalizer.Context{
			Logger:    logger,
			BotUserID: cfg.Normalizer.BotUserID,
			AuditLog:  searcher,
			IDs:       ids,
		}

		event, err := table.Dispatch(ctx, frame, nctx)
		if err != nil {
			switch {
			case errors.Is(err, normalizer.ErrDrop):
				return nil
			case errors.Is(err, normalizer.ErrFatal):
				logger.Warn("dropping frame: fatal normalization error", "error", err, "event_type", frame.EventType)
				return nil
			default:
				return err // transient: leave unacked, bus redelivers
			}
		}

		return submitCanonical(ctx, bulkBatcher, event)
	})
	if err != nil && ctx.Err() == nil {
		logger.Error("bus receive loop exited", "error", err)
	}
}

func submitCanonical(ctx context.Context, b *batcher.Batcher, event canonical.Event) error {
	return b.Submit(ctx, event)
}

// forwardUptimeBatches relays debounced connectivity batches to both the
// Active-Guild Set (so is_active gating reflects current connectivity) and
// the uptime sink. Active-set edges are drained so the Set's edge channel
// never fills, and are otherwise discarded.
func forwardUptimeBatches(ctx context.Context, tracker *connection.Tracker, guilds *activeguild.Set, client *uptime.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-tracker.Batches():
			if !ok {
				return
			}
			guilds.ApplyConnectionBatch(b)
			client.GatewaySubmit(ctx, uptime.Submission{
				Type:      uptime.BatchType(b.Type),
				Guilds:    b.Guilds,
				Timestamp: b.Timestamp,
				Session:   b.Session,
			})
		case edge, ok := <-guilds.Edges():
			if !ok {
				return
			}
			_ = edge // edges are observability-only; the uptime sink derives state from batches, not edges
		}
	}
}

func reconcileLoop(ctx context.Context, guilds *activeguild.Set, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			guilds.Reconcile(ctx)
		}
	}
}

func backoffFromIngress(cfg *config.Config) backoff.Config {
	return backoff.Config{
		Initial:    time.Duration(cfg.Ingress.DialBackoffInitialMs) * time.Millisecond,
		Max:        time.Duration(cfg.Ingress.DialBackoffMaxSec) * time.Second,
		Multiplier: 2,
	}
}

func backoffFromPublisher(cfg *config.Config) backoff.Config {
	return backoff.Config{
		Initial:    time.Duration(cfg.Publisher.ReconnectBackoffInitialMs) * time.Millisecond,
		Max:        time.Duration(cfg.Publisher.ReconnectBackoffMaxSec) * time.Second,
		Multiplier: 2,
	}
}

func backoffFromActiveGuild(cfg *config.Config) backoff.Config {
	return backoff.Config{
		Initial:    200 * time.Millisecond,
		Max:        time.Duration(cfg.ActiveGuild.EagerLoadBackoffMaxSec) * time.Second,
		Multiplier: 2,
	}
}

func backoffFromBatcher(cfg *config.Config) backoff.Config {
	return backoff.Config{
		Initial:    time.Duration(cfg.Batcher.BulkBackoffInitialMs) * time.Millisecond,
		Max:        time.Duration(cfg.Batcher.BulkBackoffMaxSec) * time.Second,
		Multiplier: 2,
		MaxElapsed: 30 * time.Second,
	}
}

