package internal

import (
	"context"
	"os"

	"github.com/queryinside/pipeline/shared/streaming"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Local dispatches envelope JSON files straight through the
// dispatcher, no broker required.
func Local(path string, logLevel zerolog.Level) {
	zerolog.SetGlobalLevel(logLevel)
	cfg := LoadConfig()

	ctx := context.Background()

	status := NewStatus()
	health := NewHealth()

	dispatcher, cleanup, err := newDispatcher(ctx, cfg, status, health, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialise dispatcher")
		return
	}
	defer cleanup()

	process(ctx, path, dispatcher)

	snapshot := status.Snapshot()
	log.Info().
		Int64("processed", snapshot.TotalProcessed).
		Interface("errors", snapshot.Errors).
		Msg("done")
}

func process(ctx context.Context, path string, dispatcher *Dispatcher) {
	file, err := os.Open(path)
	if err != nil {
		log.Error().Err(err).Msg("failed to open file")
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		log.Error().Err(err).Msg("failed to stat file")
		return
	}

	if stat.IsDir() {
		files, err := file.ReadDir(0)
		if err != nil {
			log.Error().Err(err).Msg("failed to read directory")
			return
		}

		for _, f := range files {
			process(ctx, path+"/"+f.Name(), dispatcher)
		}
	} else {
		processFile(ctx, path, dispatcher)
	}
}

func processFile(ctx context.Context, path string, dispatcher *Dispatcher) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Msg("failed to read file")
		return
	}

	envelope, err := streaming.ParseEnvelope(data)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to parse envelope")
		return
	}

	dispatcher.Dispatch(ctx, envelope)
}
