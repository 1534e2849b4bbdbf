package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/skypro1111/stream-diarizer/internal/audio"
	"github.com/skypro1111/stream-diarizer/internal/stream"
	"github.com/skypro1111/stream-diarizer/internal/transcript"
)

func newReplayCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "replay <file.wav>",
		Short: "Stream a WAV file through a session and print the transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			formatName, _ := cmd.Flags().GetString("format")
			format, err := transcript.ParseFormat(formatName)
			if err != nil {
				return err
			}
			language, _ := cmd.Flags().GetString("language")
			batch, _ := cmd.Flags().GetDuration("batch")
			realtime, _ := cmd.Flags().GetBool("realtime")
			if batch <= 0 {
				return fmt.Errorf("batch must be positive, got %s", batch)
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			samples, rate, err := audio.DecodeWAV(data)
			if err != nil {
				return fmt.Errorf("failed to decode %s: %w", args[0], err)
			}
			if rate != cfg.Audio.SampleRate {
				return fmt.Errorf("%s is %d Hz, expected %d Hz", args[0], rate, cfg.Audio.SampleRate)
			}

			// progress goes to stderr so stdout carries only the transcript
			cfg.Logging.Output = "stderr"
			logger := initLogger(cfg.Logging)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			pipe, err := newPipeline(cfg, nil, logger)
			if err != nil {
				return err
			}
			defer pipe.close()

			if err := pipe.models.Load(ctx, nil); err != nil {
				return fmt.Errorf("failed to load models: %w", err)
			}

			sink := stream.SinkFunc(func(e stream.Event) {
				switch e.Type {
				case stream.EventPartial:
					logger.Info("Partial transcript",
						slog.Int("chunk_index", e.Chunk.Index),
						slog.Int("segments", len(e.Segments)),
						slog.Float64("offset", e.Offset),
					)
				case stream.EventError:
					logger.Error("Chunk failed",
						slog.String("component", e.Component),
						slog.String("error", e.Error),
					)
				}
			})

			session, err := stream.NewSession(sessionConfig(cfg), pipe.invoker, sink, nil, logger)
			if err != nil {
				return err
			}
			go session.Run(ctx)

			if err := replay(ctx, session, samples, rate, language, batch, realtime); err != nil {
				return err
			}

			return transcript.Render(os.Stdout, session.Transcript(), format)
		},
	}

	c.Flags().String("format", "text", "Output format: text, markdown, srt, vtt or json")
	c.Flags().String("language", "", "Language code passed to transcription")
	c.Flags().Duration("batch", time.Second, "Audio fed per batch")
	c.Flags().Bool("realtime", false, "Pace batches at playback speed")
	return c
}

func replay(ctx context.Context, session *stream.Session, samples []float32, rate int,
	language string, batch time.Duration, realtime bool) error {
	if err := session.Start(ctx, language); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	step := int(batch.Seconds() * float64(rate))
	if step < 1 {
		step = 1
	}

	for pos := 0; pos < len(samples); pos += step {
		end := min(pos+step, len(samples))
		if err := session.Feed(ctx, samples[pos:end], ""); err != nil {
			return fmt.Errorf("failed to feed session: %w", err)
		}
		if realtime {
			select {
			case <-time.After(batch):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if err := session.Stop(ctx, ""); err != nil {
		return fmt.Errorf("failed to stop session: %w", err)
	}
	return nil
}
