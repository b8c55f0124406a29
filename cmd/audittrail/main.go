package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/audittrail/internal/capture"
	"github.com/gosuda/audittrail/internal/config"
	"github.com/gosuda/audittrail/internal/ingest"
	auditslack "github.com/gosuda/audittrail/internal/messenger/slack"
	"github.com/gosuda/audittrail/internal/notify"
	"github.com/gosuda/audittrail/internal/server"
	"github.com/gosuda/audittrail/internal/store/postgres"
	redisstore "github.com/gosuda/audittrail/internal/store/redis"
	"github.com/gosuda/audittrail/internal/tracing"
)

const serviceName = "audittrail"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	setupLogging(cfg.Log)

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracer, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName: serviceName,
		Environment: cfg.Tracing.Environment,
		Endpoint:    cfg.Tracing.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracer(flushCtx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	// Connect to PostgreSQL.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), cfg.Capture.Table) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Capture.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		log.Info().Str("table", cfg.Capture.Table).Msg("audit table ready")
	}

	// Entity types without a static schema resolve it from the catalog.
	policies, err := config.LoadPolicies(ctx, cfg.Capture.PolicyFile, cfg.Capture.DefaultLanguage, store.Schema())
	if err != nil {
		return err
	}
	log.Info().Strs("entity_types", policies.Set.Types()).Msg("audit policies loaded")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engineOpts := []capture.Option{
		capture.WithActorResolver(capture.NewActorResolver(capture.ConsoleActorID(cfg.Capture.ConsoleActorID))),
		capture.WithRemarkParam(cfg.Capture.RemarkParam),
		capture.WithBenchmark(cfg.Capture.Benchmark),
		capture.WithLogger(log.Logger),
		capture.WithMetrics(capture.NewMetrics(reg)),
		capture.WithTracer(tracing.GetTracer("github.com/gosuda/audittrail/internal/capture")),
	}

	health := map[string]server.Pinger{"postgres": store}

	// Connect to Redis. Without it there is no event intake channel and no
	// live trail feed.
	var pubsub *redisstore.PubSub
	if cfg.Redis.Addr != "" {
		pubsub, err = redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer pubsub.Close()

		health["redis"] = pubsub
		engineOpts = append(engineOpts, capture.WithListener(redisstore.NewEntryPublisher(pubsub)))
	}

	var notifications *notify.Async
	if cfg.Slack.BotToken != "" {
		messengers := notify.NewRegistry()
		messengers.Register(auditslack.NewSlackMessenger(slacklib.New(cfg.Slack.BotToken)))

		notifier := notify.New(messengers, policies.Set, notify.Rules(policies.Notify),
			notify.Target{Platform: "slack", Channel: cfg.Slack.Channel})
		notifications = notify.NewAsync(notifier, notify.DefaultSendTimeout, log.Logger)
		engineOpts = append(engineOpts, capture.WithListener(notifications))
		log.Info().Str("channel", cfg.Slack.Channel).Msg("slack notifications enabled")
	}

	engine := capture.New(store.Audit(), policies.Schema, engineOpts...)
	dispatcher := ingest.NewDispatcher(engine, policies.Set)

	deps := server.Deps{
		Trail:    store.Audit(),
		Events:   dispatcher,
		Policies: policies.Set,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Health:   health,
		Logger:   log.Logger,
	}

	if pubsub != nil {
		deps.Live = pubsub

		consumer := ingest.NewConsumer(pubsub, dispatcher, cfg.Capture.EventsChannel, cfg.Capture.DefaultLanguage, log.Logger)
		go func() {
			if runErr := consumer.Run(ctx); runErr != nil {
				log.Error().Err(runErr).Msg("event consumer stopped")
			}
		}()
	}

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, deps)

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}
	if notifications != nil {
		notifications.Wait()
	}

	log.Info().Msg("stopped")
	return nil
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" || cfg.Format == "console" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
