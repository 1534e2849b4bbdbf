package inference

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skypro1111/stream-diarizer/internal/audio"
	"github.com/skypro1111/stream-diarizer/internal/metrics"
	"github.com/skypro1111/stream-diarizer/internal/transcript"
)

// Invoker runs both collaborators on the same chunk concurrently
type Invoker struct {
	models  *Models
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewInvoker creates an invoker over a loaded Models handle. m may be nil.
func NewInvoker(models *Models, m *metrics.Metrics, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		models:  models,
		metrics: m,
		logger:  logger,
	}
}

// Invoke transcribes and diarizes chunk in parallel and returns the paired
// chunk-local results. Any failure is returned as *InferenceError naming the
// component that failed first.
func (i *Invoker) Invoke(ctx context.Context, chunk *audio.Chunk, language string) (transcript.RawResult, error) {
	var (
		words     []transcript.Word
		intervals []transcript.SpeakerInterval
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		start := time.Now()
		out, err := i.models.Transcriber().Transcribe(gctx, chunk.Samples, chunk.SampleRate, language)
		i.metrics.RecordInference(ComponentTranscription, time.Since(start).Seconds(), err)
		if err != nil {
			return &InferenceError{Component: ComponentTranscription, ChunkIndex: chunk.Index, Err: err}
		}
		words = out
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		out, err := i.models.Diarizer().Diarize(gctx, chunk.Samples, chunk.SampleRate)
		i.metrics.RecordInference(ComponentDiarization, time.Since(start).Seconds(), err)
		if err != nil {
			return &InferenceError{Component: ComponentDiarization, ChunkIndex: chunk.Index, Err: err}
		}
		intervals = out
		return nil
	})

	if err := g.Wait(); err != nil {
		return transcript.RawResult{}, err
	}

	raw := transcript.RawResult{Words: words, Intervals: intervals}
	if err := raw.Validate(); err != nil {
		return transcript.RawResult{}, &InferenceError{
			Component:  ComponentValidation,
			ChunkIndex: chunk.Index,
			Err:        fmt.Errorf("malformed model output: %w", err),
		}
	}

	i.logger.Debug("Chunk inference complete",
		slog.String("chunk_id", chunk.ID),
		slog.Int("chunk_index", chunk.Index),
		slog.Int("words", len(words)),
		slog.Int("speaker_intervals", len(intervals)),
	)

	return raw, nil
}
