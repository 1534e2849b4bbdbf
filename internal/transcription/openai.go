package transcription

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/skypro1111/stream-diarizer/internal/audio"
	"github.com/skypro1111/stream-diarizer/internal/transcript"
)

// OpenAIConfig configures the OpenAI-compatible transcription backend
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // Optional, for self-hosted OpenAI-compatible servers
	Model   string
}

// OpenAIClient transcribes chunks through an OpenAI-compatible audio API with
// word-level timestamps
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates an OpenAI transcription backend
func NewOpenAIClient(config OpenAIConfig) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}

	model := config.Model
	if model == "" {
		model = openai.Whisper1
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

// Transcribe uploads one chunk as WAV and returns its words
func (c *OpenAIClient) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) ([]transcript.Word, error) {
	wav, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chunk: %w", err)
	}

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: uuid.NewString() + ".wav",
		Reader:   bytes.NewReader(wav),
		Language: language,
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai transcription failed: %w", err)
	}

	words := make([]transcript.Word, 0, len(resp.Words))
	for _, w := range resp.Words {
		words = append(words, transcript.Word{Text: w.Word, Start: w.Start, End: w.End})
	}
	return words, nil
}
