package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/skypro1111/stream-diarizer/internal/config"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "stream-diarizer"
	serviceVersion    = "1.0.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Streaming speaker-attributed transcription service",
		Version:       serviceVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", defaultConfigPath, "Path to configuration file")
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to .env file with secret overrides")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newSendCmd())
	rootCmd.AddCommand(newTokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads .env overrides and the config file. Defaults are used when
// the config flag was left unset and the default file does not exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}

	if cmd.Flags().Changed("config") || !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg = config.Default()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("default configuration invalid: %w", err)
	}
	return cfg, nil
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output io.Writer
	switch {
	case cfg.Output == "stderr":
		output = os.Stderr
	case cfg.IsFile():
		output = &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	default:
		output = os.Stdout
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
