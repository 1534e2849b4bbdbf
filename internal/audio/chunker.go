package audio

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reference deployment constants
const (
	DefaultSampleRate      = 16000
	DefaultChunkDuration   = 30 * time.Second
	DefaultOverlapDuration = 5 * time.Second
)

// ChunkingConfig describes the fixed window geometry used to cut the stream
type ChunkingConfig struct {
	SampleRate      int
	ChunkDuration   time.Duration // Stream time covered by one chunk
	OverlapDuration time.Duration // Trailing context re-read by the next chunk
}

// DefaultChunkingConfig returns the 16 kHz / 30 s / 5 s geometry
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		SampleRate:      DefaultSampleRate,
		ChunkDuration:   DefaultChunkDuration,
		OverlapDuration: DefaultOverlapDuration,
	}
}

// Validate checks that the geometry can produce chunks
func (c ChunkingConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.ChunkSamples() <= 0 {
		return fmt.Errorf("chunk duration must cover at least one sample, got %v", c.ChunkDuration)
	}
	if c.OverlapDuration < 0 {
		return fmt.Errorf("overlap duration cannot be negative, got %v", c.OverlapDuration)
	}
	if c.OverlapDuration >= c.ChunkDuration {
		return fmt.Errorf("overlap duration (%v) must be shorter than chunk duration (%v)",
			c.OverlapDuration, c.ChunkDuration)
	}
	return nil
}

// ChunkSamples returns the number of samples that advance stream time per chunk
func (c ChunkingConfig) ChunkSamples() int {
	return int(int64(c.SampleRate) * int64(c.ChunkDuration) / int64(time.Second))
}

// OverlapSamples returns the number of trailing context samples per chunk
func (c ChunkingConfig) OverlapSamples() int {
	return int(int64(c.SampleRate) * int64(c.OverlapDuration) / int64(time.Second))
}

// WindowSamples returns the full chunk length including overlap
func (c ChunkingConfig) WindowSamples() int {
	return c.ChunkSamples() + c.OverlapSamples()
}

// Chunk is one window of audio submitted to inference
type Chunk struct {
	ID         string    `json:"chunk_id"`
	Index      int       `json:"index"`
	SampleRate int       `json:"sample_rate"`
	Samples    []float32 `json:"-"`
	Offset     float64   `json:"offset_seconds"` // Stream time of Samples[0]
	Stride     int       `json:"stride_samples"` // Samples that count as stream time
	Final      bool      `json:"final"`          // Stop-time flush, may be short
	CreatedAt  time.Time `json:"created_at"`
}

// NewChunk wraps extracted samples with identity and timeline metadata
func NewChunk(index int, samples []float32, sampleRate int, offset float64, stride int, final bool) *Chunk {
	return &Chunk{
		ID:         uuid.NewString(),
		Index:      index,
		SampleRate: sampleRate,
		Samples:    samples,
		Offset:     offset,
		Stride:     stride,
		Final:      final,
		CreatedAt:  time.Now(),
	}
}

// Duration returns the audio length of the chunk in seconds, overlap included
func (c *Chunk) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// StrideSeconds returns the stream time this chunk accounts for
func (c *Chunk) StrideSeconds() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(c.Stride) / float64(c.SampleRate)
}

// Info returns a copy of the chunk metadata without samples
func (c *Chunk) Info() ChunkInfo {
	return ChunkInfo{
		ID:       c.ID,
		Index:    c.Index,
		Offset:   c.Offset,
		Duration: c.Duration(),
		Final:    c.Final,
	}
}

// ChunkInfo is the sample-free view of a chunk carried on events
type ChunkInfo struct {
	ID       string  `json:"chunk_id"`
	Index    int     `json:"index"`
	Offset   float64 `json:"offset_seconds"`
	Duration float64 `json:"duration_seconds"`
	Final    bool    `json:"final"`
}
