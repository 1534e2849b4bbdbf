package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/skypro1111/stream-diarizer/internal/config"
	"github.com/skypro1111/stream-diarizer/internal/metrics"
	"github.com/skypro1111/stream-diarizer/internal/server"
	"github.com/skypro1111/stream-diarizer/internal/stream"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the UDP ingest and HTTP API service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			configPath, _ := cmd.Flags().GetString("config")
			return runServe(cfg, configPath)
		},
	}
}

func runServe(cfg *config.Config, configPath string) error {
	logger := initLogger(cfg.Logging)
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", configPath),
	)

	logger.Info("Configuration loaded",
		slog.Bool("udp_enabled", cfg.Server.Enabled),
		slog.Int("udp_port", cfg.Server.UDPPort),
		slog.Bool("http_enabled", cfg.HTTP.Enabled),
		slog.Int("http_port", cfg.HTTP.Port),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("chunk_duration", cfg.Audio.ChunkDuration),
		slog.Float64("overlap_duration", cfg.Audio.OverlapDuration),
		slog.String("transcription_backend", cfg.Transcription.Backend),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("diarization_endpoint", cfg.Diarization.Endpoint),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	events := stream.NewBroadcaster(appMetrics, logger.With(slog.String("component", "events")))

	pipe, err := newPipeline(cfg, appMetrics, logger)
	if err != nil {
		return err
	}

	loadCtx, loadCancel := context.WithTimeout(ctx, cfg.Diarization.GetTimeoutDuration())
	err = pipe.models.Load(loadCtx, func(component, status string) {
		events.Publish(stream.ProgressEvent(component, status))
	})
	loadCancel()
	if err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}

	session, err := stream.NewSession(sessionConfig(cfg), pipe.invoker, events, appMetrics,
		logger.With(slog.String("component", "session")))
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	sessionDone := make(chan error, 1)
	go func() { sessionDone <- session.Run(ctx) }()

	var udpServer *server.UDPServer
	if cfg.Server.Enabled {
		udpServer = server.NewUDPServer(&cfg.Server, session, appMetrics, logger.With(slog.String("component", "udp")))
		if err := udpServer.Start(); err != nil {
			return fmt.Errorf("failed to start UDP server: %w", err)
		}
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(server.HTTPOptions{
			Config:      &cfg.HTTP,
			EventBuffer: cfg.Session.EventBuffer,
			Session:     session,
			Events:      events,
			UDP:         udpServer,
			Models:      pipe.models,
			Gatherer:    prometheus.DefaultGatherer,
			Metrics:     appMetrics,
			Logger:      logger.With(slog.String("component", "http")),
		})
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-sessionDone:
		logger.Error("Session loop exited", slog.Any("error", err))
	}

	logger.Info("Starting graceful shutdown...")

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
		shutdownCancel()
	}

	if udpServer != nil {
		if err := udpServer.Stop(); err != nil {
			logger.Error("Error stopping UDP server", slog.String("error", err.Error()))
		}
	}

	// flush a live session before the loop goes away
	if session.Info().State == stream.StateStreaming {
		stopCtx, stopCancel := context.WithTimeout(ctx, cfg.Transcription.GetTimeoutDuration())
		if err := session.Stop(stopCtx, ""); err != nil {
			logger.Warn("Failed to stop session on shutdown", slog.String("error", err.Error()))
		}
		stopCancel()
	}

	cancel()
	<-session.Done()
	events.Close()

	if err := pipe.close(); err != nil {
		logger.Warn("Transcription client did not drain", slog.String("error", err.Error()))
	}

	info := session.Info()
	logger.Info("Service stopped",
		slog.Uint64("chunks_completed", info.ChunksCompleted),
		slog.Uint64("chunks_failed", info.ChunksFailed),
		slog.Int("segments", info.Segments),
	)
	return nil
}
