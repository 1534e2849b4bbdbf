package transcription

import (
	"context"

	"github.com/skypro1111/stream-diarizer/internal/transcript"
)

// Transcriber turns one chunk of audio into timestamped words
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) ([]transcript.Word, error)
}

// Backend names accepted by configuration
const (
	BackendHTTP   = "http"
	BackendOpenAI = "openai"
)
