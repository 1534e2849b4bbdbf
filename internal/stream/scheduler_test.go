package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/stream-diarizer/internal/audio"
)

// small geometry: 100 Hz, 3 s chunks, 1 s overlap
func smallChunking() audio.ChunkingConfig {
	return audio.ChunkingConfig{
		SampleRate:      100,
		ChunkDuration:   3 * time.Second,
		OverlapDuration: time.Second,
	}
}

func TestNewSchedulerValidates(t *testing.T) {
	_, err := NewScheduler(audio.ChunkingConfig{SampleRate: 100, ChunkDuration: time.Second, OverlapDuration: time.Second})
	assert.Error(t, err)

	s, err := NewScheduler(smallChunking())
	require.NoError(t, err)
	assert.False(t, s.Busy())
	assert.Equal(t, 0.0, s.Offset())
}

func TestSchedulerWaitsForFullWindow(t *testing.T) {
	s, err := NewScheduler(smallChunking())
	require.NoError(t, err)

	_, ok := s.OnAudio(make([]float32, 399))
	assert.False(t, ok)
	assert.Equal(t, 399, s.Buffered())

	chunk, ok := s.OnAudio(make([]float32, 1))
	require.True(t, ok)
	assert.Len(t, chunk.Samples, 400)
	assert.Equal(t, 300, chunk.Stride)
	assert.Equal(t, 0, chunk.Index)
	assert.Equal(t, 0.0, chunk.Offset)
	assert.False(t, chunk.Final)
	assert.True(t, s.Busy())
	assert.Equal(t, 100, s.Buffered(), "overlap stays buffered")
}

func TestSchedulerBuffersWhileBusy(t *testing.T) {
	s, err := NewScheduler(smallChunking())
	require.NoError(t, err)

	_, ok := s.OnAudio(make([]float32, 400))
	require.True(t, ok)

	// enough for two more windows, but one chunk is in flight
	_, ok = s.OnAudio(make([]float32, 700))
	assert.False(t, ok)
	assert.Equal(t, 800, s.Buffered())

	s.Complete()
	assert.False(t, s.Busy())

	chunk, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, 1, chunk.Index)
	assert.Equal(t, 3.0, chunk.Offset)
}

func TestSchedulerSingleFlightConcurrent(t *testing.T) {
	s, err := NewScheduler(smallChunking())
	require.NoError(t, err)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		chunks []*audio.Chunk
	)

	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if chunk, ok := s.OnAudio(make([]float32, 37)); ok {
					mu.Lock()
					chunks = append(chunks, chunk)
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	// 16*50*37 samples is enough for dozens of windows; none completes
	assert.Len(t, chunks, 1)
	assert.Equal(t, 16*50*37-300, s.Buffered())
}

func TestSchedulerOffsetAdvancesByStride(t *testing.T) {
	s, err := NewScheduler(smallChunking())
	require.NoError(t, err)

	const n = 7
	chunk, ok := s.OnAudio(make([]float32, 300*n+100))
	require.True(t, ok, "chunk 0")

	for i := 0; i < n; i++ {
		if i > 0 {
			chunk, ok = s.Next()
			require.True(t, ok, "chunk %d", i)
		}
		assert.Equal(t, i, chunk.Index)
		assert.InDelta(t, float64(i)*3, chunk.Offset, 1e-9)
		_, again := s.Next()
		assert.False(t, again, "second chunk while %d is in flight", i)
		s.Complete()
	}

	assert.InDelta(t, n*3.0, s.Offset(), 1e-9)
	_, ok = s.Next()
	assert.False(t, ok)
	assert.Equal(t, 100, s.Buffered())
}

func TestSchedulerCompleteWithoutChunkIsNoop(t *testing.T) {
	s, err := NewScheduler(smallChunking())
	require.NoError(t, err)

	s.Complete()
	assert.Equal(t, 0.0, s.Offset())
}

func TestSchedulerFlush(t *testing.T) {
	s, err := NewScheduler(smallChunking())
	require.NoError(t, err)

	_, ok := s.Flush()
	assert.False(t, ok, "nothing buffered")

	s.OnAudio(make([]float32, 450))
	_, ok = s.Flush()
	assert.False(t, ok, "chunk in flight")

	s.Complete()
	chunk, ok := s.Flush()
	require.True(t, ok)
	assert.True(t, chunk.Final)
	assert.Len(t, chunk.Samples, 150)
	assert.Equal(t, 3.0, chunk.Offset)
	assert.True(t, s.Busy())
	assert.Equal(t, 0, s.Buffered())
}

func TestSchedulerReset(t *testing.T) {
	s, err := NewScheduler(smallChunking())
	require.NoError(t, err)

	s.OnAudio(make([]float32, 500))
	s.Complete()
	s.Reset()

	stats := s.GetStats()
	assert.False(t, stats.Busy)
	assert.Equal(t, 0.0, stats.OffsetSeconds)
	assert.Equal(t, 0, stats.NextIndex)
	assert.Equal(t, 0, stats.Buffer.Buffered)
}
