package stream

import (
	"fmt"
	"sync"

	"github.com/skypro1111/stream-diarizer/internal/audio"
)

// Scheduler is single-flight admission control over chunk extraction. At most
// one chunk is in flight; audio arriving meanwhile accumulates in the buffer.
type Scheduler struct {
	config         audio.ChunkingConfig
	chunkSamples   int
	overlapSamples int

	buffer *audio.SampleBuffer

	busy           bool
	inflightStride int
	offset         int64 // Stream time of the buffer head, in samples
	nextIndex      int

	mu sync.Mutex
}

// SchedulerStats represents scheduler state for monitoring
type SchedulerStats struct {
	Busy          bool              `json:"busy"`
	OffsetSeconds float64           `json:"offset_seconds"`
	NextIndex     int               `json:"next_chunk_index"`
	Buffer        audio.BufferStats `json:"buffer"`
}

// NewScheduler creates a scheduler for the given window geometry
func NewScheduler(config audio.ChunkingConfig) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chunking config: %w", err)
	}
	return &Scheduler{
		config:         config,
		chunkSamples:   config.ChunkSamples(),
		overlapSamples: config.OverlapSamples(),
		buffer:         audio.NewSampleBuffer(config.SampleRate),
	}, nil
}

// OnAudio buffers samples and, if a full chunk is ready and nothing is in
// flight, extracts it and marks the scheduler busy. The caller owns dispatch
// of the returned chunk and must call Complete when it finishes.
func (s *Scheduler) OnAudio(samples []float32) (*audio.Chunk, bool) {
	s.buffer.Append(samples)
	return s.Next()
}

// Next extracts a chunk if one is ready and nothing is in flight
func (s *Scheduler) Next() (*audio.Chunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy || !s.buffer.Ready(s.chunkSamples, s.overlapSamples) {
		return nil, false
	}

	samples, err := s.buffer.TakeChunk(s.chunkSamples, s.overlapSamples)
	if err != nil {
		// only ErrInsufficientData is possible here; wait for more audio
		return nil, false
	}

	return s.dispatch(samples, s.chunkSamples, false), true
}

// Flush takes everything buffered as a final, possibly short, chunk. It
// returns false while a chunk is in flight or when nothing is buffered.
func (s *Scheduler) Flush() (*audio.Chunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return nil, false
	}

	rest := s.buffer.DrainRemainder()
	if len(rest) == 0 {
		return nil, false
	}

	return s.dispatch(rest, len(rest), true), true
}

func (s *Scheduler) dispatch(samples []float32, stride int, final bool) *audio.Chunk {
	chunk := audio.NewChunk(s.nextIndex, samples, s.config.SampleRate, s.seconds(s.offset), stride, final)
	s.nextIndex++
	s.busy = true
	s.inflightStride = stride
	return chunk
}

// Complete marks the in-flight chunk finished, successfully or not, and
// advances the offset by the chunk's stride, never by its overlap.
func (s *Scheduler) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.busy {
		return
	}
	s.busy = false
	s.offset += int64(s.inflightStride)
	s.inflightStride = 0
}

// Busy reports whether a chunk is in flight
func (s *Scheduler) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Offset returns the current stream offset in seconds
func (s *Scheduler) Offset() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seconds(s.offset)
}

// Buffered returns the number of samples waiting in the buffer
func (s *Scheduler) Buffered() int {
	return s.buffer.Len()
}

// Reset clears the buffer, offset and chunk numbering
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer.Reset()
	s.busy = false
	s.inflightStride = 0
	s.offset = 0
	s.nextIndex = 0
}

// GetStats returns current scheduler statistics
func (s *Scheduler) GetStats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SchedulerStats{
		Busy:          s.busy,
		OffsetSeconds: s.seconds(s.offset),
		NextIndex:     s.nextIndex,
		Buffer:        s.buffer.GetStats(),
	}
}

func (s *Scheduler) seconds(samples int64) float64 {
	return float64(samples) / float64(s.config.SampleRate)
}
