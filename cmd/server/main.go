package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"sellsync/internal/broker"
	"sellsync/internal/hrsync"
	"sellsync/internal/hrsync/dedupe"
	"sellsync/internal/hrsync/metrics"
	"sellsync/internal/hrsync/store"
	"sellsync/internal/jwttoken"
	"sellsync/internal/platform/config"
	"sellsync/internal/platform/httpserver"
	"sellsync/internal/platform/logger"
	"sellsync/internal/platform/postgres"
	platformredis "sellsync/internal/platform/redis"
	httptransport "sellsync/internal/transport/http"
)

// main wires dependencies and keeps the lifecycle small: the HTTP surface and
// the event listener run side by side until a shutdown signal arrives, at
// which point the listener finishes its in-flight message and the server
// drains.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	pgStore := store.NewPostgres(db)
	if err := pgStore.EnsureSchema(ctx); err != nil {
		log.Error("schema migration failed", "error", err)
		os.Exit(1)
	}

	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	if err := broker.EnsureTopics(ctx, cfg.Brokers, cfg.Topic, cfg.DLQTopic); err != nil {
		log.Error("topic provisioning failed", "error", err)
		os.Exit(1)
	}

	consumer, err := broker.NewKafkaConsumer(cfg.Brokers, cfg.Group, cfg.Topic, log)
	if err != nil {
		log.Error("broker unavailable", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	publisher, err := broker.NewKafkaPublisher(cfg.Brokers)
	if err != nil {
		log.Error("broker publisher unavailable", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	retrier, err := hrsync.NewRetrier(pgStore,
		hrsync.WithAttempts(cfg.RetryAttempts),
		hrsync.WithBackoff(cfg.RetryBackoff),
		hrsync.WithRetrierLogger(log),
	)
	if err != nil {
		log.Error("retrier setup failed", "error", err)
		os.Exit(1)
	}

	engine, err := hrsync.NewEngine(retrier, cfg.DomainScope, hrsync.WithEngineLogger(log))
	if err != nil {
		log.Error("engine setup failed", "error", err)
		os.Exit(1)
	}

	filter := hrsync.NewScopeFilter(cfg.DomainScope, log)
	syncMetrics := metrics.New(prometheus.DefaultRegisterer)

	listenerOpts := []hrsync.ListenerOption{
		hrsync.WithListenerLogger(log),
		hrsync.WithMetrics(syncMetrics),
		hrsync.WithDeadLetter(broker.NewStampedPublisher(publisher, cfg.Origin), cfg.DLQTopic),
	}
	if redisClient != nil {
		listenerOpts = append(listenerOpts,
			hrsync.WithDeduper(dedupe.NewRedis(redisClient.Client, 24*time.Hour)))
	}

	listener, err := hrsync.NewListener(consumer, filter, engine, listenerOpts...)
	if err != nil {
		log.Error("listener setup failed", "error", err)
		os.Exit(1)
	}

	checks := map[string]httptransport.HealthCheck{
		"postgres": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = redisClient.Health
	}

	jwtService := jwttoken.NewService(cfg.JWTSigningKey, "sellsync", "sellsync")
	handler := httptransport.NewHandler(listener, jwtService, checks, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Info("starting sellsync", "addr", cfg.Addr, "topic", cfg.Topic, "scope", cfg.DomainScope)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("sellsync terminated", "error", err)
		os.Exit(1)
	}
	log.Info("sellsync stopped")
}
