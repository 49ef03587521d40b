package internal

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Serve wires the whole pipeline together and blocks until the
// process receives an interrupt.
func Serve(logLevel zerolog.Level) {
	zerolog.SetGlobalLevel(logLevel)
	cfg := LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	status := NewStatus()
	health := NewHealth()

	hub := NewHub()
	go hub.Run()

	dispatcher, cleanup, err := newDispatcher(ctx, cfg, status, health, hub)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialise dispatcher")
		return
	}
	defer cleanup()

	deadLetter, err := NewDeadLetter(ctx, cfg.DeadLetterURL)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialise dead letter queue")
		return
	}

	consumer := NewConsumer(cfg, dispatcher, status, health, deadLetter)
	if err := consumer.Start(); err != nil {
		// The restart endpoint is the recovery lever; keep serving.
		log.Error().Err(err).Msg("failed to start consumer")
	}

	pub, err := NewPublisher(cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialise publisher")
		return
	}
	defer pub.Close()

	server := NewServer(status, consumer, pub, dispatcher, hub)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Router(),
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shut down http server")
	}

	if err := consumer.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		log.Error().Err(err).Msg("failed to stop consumer")
	}
}

// newDispatcher builds the handler stack from whatever backends are
// configured. Unconfigured backends surface as handler errors at
// dispatch time rather than refusing to boot.
func newDispatcher(ctx context.Context, cfg Config, status *Status, health *Health, hub *Hub) (*Dispatcher, func(), error) {
	var store *LogStore
	if cfg.DatabaseURL != "" {
		var err error
		store, err = NewLogStore(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
	}

	kafka, err := newKafkaClient(cfg.KafkaBrokers)
	if err != nil {
		return nil, nil, err
	}

	exporter, err := NewExporter(ctx, cfg.ExportBucket)
	if err != nil {
		return nil, nil, err
	}

	handlers := NewHandlers(store, kafka, exporter, cfg.EventsTopic)
	registry, err := NewRegistry(handlers.Routes())
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if store != nil {
			store.Close()
		}
		if kafka != nil {
			kafka.Close()
		}
	}

	return NewDispatcher(registry, status, health, hub, cfg.HandlerTimeout), cleanup, nil
}
