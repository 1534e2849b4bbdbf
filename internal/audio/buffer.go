package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInsufficientData is returned when a chunk is requested before enough
// samples have been buffered. Callers treat it as "wait for more audio".
var ErrInsufficientData = errors.New("insufficient buffered audio")

// SampleBuffer is an append-only buffer of float32 samples that is drained by
// prefix. Samples are never reordered.
type SampleBuffer struct {
	sampleRate int

	// samples[head:] is the live region; samples[:head] has been drained
	// and is reclaimed by compact.
	samples []float32
	head    int

	// Statistics
	appended    uint64
	drained     uint64
	compactions uint64
	lastAppend  time.Time

	mu sync.RWMutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	SampleRate      int     `json:"sample_rate"`
	Buffered        int     `json:"buffered_samples"`
	BufferedSeconds float64 `json:"buffered_seconds"`
	Capacity        int     `json:"capacity_samples"`
	Appended        uint64  `json:"appended_samples"`
	Drained         uint64  `json:"drained_samples"`
	Compactions     uint64  `json:"compactions"`
}

// NewSampleBuffer creates an empty buffer for audio at the given sample rate
func NewSampleBuffer(sampleRate int) *SampleBuffer {
	return &SampleBuffer{
		sampleRate: sampleRate,
		samples:    make([]float32, 0, sampleRate*4), // Pre-allocate 4 seconds
	}
}

// Append concatenates a batch of samples to the tail of the buffer.
func (b *SampleBuffer) Append(samples []float32) {
	if len(samples) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.compact(len(samples))
	b.samples = append(b.samples, samples...)
	b.appended += uint64(len(samples))
	b.lastAppend = time.Now()
}

// compact moves the live region to the front of the backing array when the
// drained prefix is at least as large as the live region and the pending
// append would otherwise grow the array. Each sample is moved at most once per
// doubling, which keeps Append amortized O(n).
func (b *SampleBuffer) compact(incoming int) {
	if b.head == 0 {
		return
	}
	live := len(b.samples) - b.head
	if len(b.samples)+incoming <= cap(b.samples) && b.head < live {
		return
	}
	n := copy(b.samples, b.samples[b.head:])
	b.samples = b.samples[:n]
	b.head = 0
	b.compactions++
}

// Len returns the number of buffered samples
func (b *SampleBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples) - b.head
}

// Ready reports whether a full chunk (chunk plus overlap) is buffered
func (b *SampleBuffer) Ready(chunkSamples, overlapSamples int) bool {
	return b.Len() >= chunkSamples+overlapSamples
}

// TakeChunk returns a copy of the first chunkSamples+overlapSamples samples and
// drops the first chunkSamples from the buffer. The overlap stays buffered and
// becomes the head of the next chunk.
func (b *SampleBuffer) TakeChunk(chunkSamples, overlapSamples int) ([]float32, error) {
	if chunkSamples <= 0 || overlapSamples < 0 {
		return nil, fmt.Errorf("invalid chunk geometry: chunk=%d, overlap=%d", chunkSamples, overlapSamples)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	need := chunkSamples + overlapSamples
	have := len(b.samples) - b.head
	if have < need {
		return nil, fmt.Errorf("%w: need %d samples, have %d", ErrInsufficientData, need, have)
	}

	chunk := make([]float32, need)
	copy(chunk, b.samples[b.head:b.head+need])

	b.head += chunkSamples
	b.drained += uint64(chunkSamples)

	return chunk, nil
}

// DrainRemainder returns everything currently buffered and clears the buffer.
// It is used at stream termination to flush a final partial chunk.
func (b *SampleBuffer) DrainRemainder() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	have := len(b.samples) - b.head
	if have == 0 {
		b.samples = b.samples[:0]
		b.head = 0
		return nil
	}

	rest := make([]float32, have)
	copy(rest, b.samples[b.head:])

	b.drained += uint64(have)
	b.samples = b.samples[:0]
	b.head = 0

	return rest
}

// Reset clears all state
func (b *SampleBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = make([]float32, 0, b.sampleRate*4)
	b.head = 0
	b.appended = 0
	b.drained = 0
	b.compactions = 0
	b.lastAppend = time.Time{}
}

// SampleRate returns the configured sample rate
func (b *SampleBuffer) SampleRate() int {
	return b.sampleRate
}

// LastAppend returns the time of the last non-empty append
func (b *SampleBuffer) LastAppend() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastAppend
}

// GetStats returns current buffer statistics
func (b *SampleBuffer) GetStats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	buffered := len(b.samples) - b.head
	seconds := float64(0)
	if b.sampleRate > 0 {
		seconds = float64(buffered) / float64(b.sampleRate)
	}

	return BufferStats{
		SampleRate:      b.sampleRate,
		Buffered:        buffered,
		BufferedSeconds: seconds,
		Capacity:        cap(b.samples),
		Appended:        b.appended,
		Drained:         b.drained,
		Compactions:     b.compactions,
	}
}
