package inference

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/stream-diarizer/internal/transcript"
	"github.com/skypro1111/stream-diarizer/internal/transcription"
)

// Diarizer turns one chunk of audio into labeled, chunk-local speaker
// intervals
type Diarizer interface {
	Diarize(ctx context.Context, samples []float32, sampleRate int) ([]transcript.SpeakerInterval, error)
}

// labelLoader is implemented by diarizers whose label table is fetched
type labelLoader interface {
	Labels(ctx context.Context) (map[int]string, error)
}

// Load statuses reported through ProgressFunc
const (
	StatusLoading = "loading"
	StatusReady   = "ready"
	StatusError   = "error"
)

// ProgressFunc receives model loading progress for a component
type ProgressFunc func(component, status string)

// Models is the process-wide collaborator pair. It is loaded at most once,
// never torn down, and shared read-only by every chunk.
type Models struct {
	transcriber transcription.Transcriber
	diarizer    Diarizer
	logger      *slog.Logger

	once    sync.Once
	loadErr error
	loaded  bool
	mu      sync.RWMutex
}

// NewModels creates the collaborator handle
func NewModels(transcriber transcription.Transcriber, diarizer Diarizer, logger *slog.Logger) (*Models, error) {
	if transcriber == nil {
		return nil, fmt.Errorf("transcriber cannot be nil")
	}
	if diarizer == nil {
		return nil, fmt.Errorf("diarizer cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Models{
		transcriber: transcriber,
		diarizer:    diarizer,
		logger:      logger,
	}, nil
}

// Load prepares the collaborators. Only the first call does any work; later
// calls return its result. progress may be nil.
func (m *Models) Load(ctx context.Context, progress ProgressFunc) error {
	m.once.Do(func() {
		report := func(component, status string) {
			if progress != nil {
				progress(component, status)
			}
		}

		start := time.Now()
		// the transcription backends hold no state to load
		report(ComponentTranscription, StatusReady)

		report(ComponentDiarization, StatusLoading)
		if loader, ok := m.diarizer.(labelLoader); ok {
			labels, err := loader.Labels(ctx)
			if err != nil {
				report(ComponentDiarization, StatusError)
				m.setLoaded(fmt.Errorf("failed to load diarization labels: %w", err))
				return
			}
			m.logger.Info("Diarization labels loaded", slog.Int("classes", len(labels)))
		}
		report(ComponentDiarization, StatusReady)

		m.logger.Info("Models ready", slog.Duration("load_time", time.Since(start)))
		m.setLoaded(nil)
	})

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadErr
}

func (m *Models) setLoaded(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
	m.loaded = err == nil
}

// Loaded reports whether Load completed successfully
func (m *Models) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// Transcriber returns the speech recognition collaborator
func (m *Models) Transcriber() transcription.Transcriber {
	return m.transcriber
}

// Diarizer returns the speaker segmentation collaborator
func (m *Models) Diarizer() Diarizer {
	return m.diarizer
}
