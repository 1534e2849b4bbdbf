package main

import (
	"fmt"
	"log/slog"

	"github.com/skypro1111/stream-diarizer/internal/config"
	"github.com/skypro1111/stream-diarizer/internal/diarization"
	"github.com/skypro1111/stream-diarizer/internal/inference"
	"github.com/skypro1111/stream-diarizer/internal/metrics"
	"github.com/skypro1111/stream-diarizer/internal/stream"
	"github.com/skypro1111/stream-diarizer/internal/transcription"
)

// pipeline is the collaborator stack shared by serve and replay
type pipeline struct {
	models      *inference.Models
	invoker     *inference.Invoker
	transcriber transcription.Transcriber
	diarizer    *diarization.Client
}

func newTranscriber(cfg config.TranscriptionConfig) (transcription.Transcriber, error) {
	switch cfg.Backend {
	case config.BackendOpenAI:
		return transcription.NewOpenAIClient(transcription.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.Endpoint,
			Model:   cfg.Model,
		})
	case config.BackendHTTP:
		return transcription.NewClient(transcription.Config{
			Endpoint:      cfg.Endpoint,
			APIKey:        cfg.APIKey,
			Model:         cfg.Model,
			Timeout:       cfg.GetTimeoutDuration(),
			MaxRetries:    cfg.MaxRetries,
			MaxConcurrent: cfg.MaxConcurrent,
			RetryBackoff:  cfg.GetRetryBackoffDuration(),
		})
	default:
		return nil, fmt.Errorf("unknown transcription backend %q", cfg.Backend)
	}
}

func newPipeline(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*pipeline, error) {
	transcriber, err := newTranscriber(cfg.Transcription)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcriber: %w", err)
	}

	diarizer, err := diarization.NewClient(diarization.Config{
		Endpoint:       cfg.Diarization.Endpoint,
		ConfigEndpoint: cfg.Diarization.ConfigEndpoint,
		APIKey:         cfg.Diarization.APIKey,
		Timeout:        cfg.Diarization.GetTimeoutDuration(),
		Labels:         cfg.Diarization.Labels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create diarizer: %w", err)
	}

	models, err := inference.NewModels(transcriber, diarizer, logger.With(slog.String("component", "models")))
	if err != nil {
		return nil, err
	}

	return &pipeline{
		models:      models,
		invoker:     inference.NewInvoker(models, m, logger.With(slog.String("component", "invoker"))),
		transcriber: transcriber,
		diarizer:    diarizer,
	}, nil
}

// close waits for in-flight transcription requests where the backend tracks them
func (p *pipeline) close() error {
	if c, ok := p.transcriber.(*transcription.Client); ok {
		return c.Close()
	}
	return nil
}

func sessionConfig(cfg *config.Config) stream.SessionConfig {
	return stream.SessionConfig{
		Chunking:         cfg.Audio.Chunking(),
		DefaultLanguage:  cfg.Session.DefaultLanguage,
		DropOverlapWords: cfg.Session.DropOverlapWords,
		IdleTimeout:      cfg.Session.GetIdleTimeoutDuration(),
	}
}
