package audio

import (
	"errors"
	"math/rand"
	"testing"
)

func ramp(start, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(start + i)
	}
	return out
}

func TestNewSampleBuffer(t *testing.T) {
	buffer := NewSampleBuffer(16000)

	if buffer == nil {
		t.Fatal("NewSampleBuffer returned nil")
	}

	if buffer.SampleRate() != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", buffer.SampleRate())
	}

	if buffer.Len() != 0 {
		t.Errorf("Expected initial size 0, got %d", buffer.Len())
	}

	if buffer.Ready(1, 0) {
		t.Error("Empty buffer should not be ready")
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	buffer := NewSampleBuffer(100)

	buffer.Append(ramp(0, 7))
	buffer.Append(nil)
	buffer.Append(ramp(7, 13))

	if buffer.Len() != 20 {
		t.Fatalf("Expected 20 samples, got %d", buffer.Len())
	}

	rest := buffer.DrainRemainder()
	for i, s := range rest {
		if s != float32(i) {
			t.Fatalf("Sample %d out of order: got %v", i, s)
		}
	}
}

func TestTakeChunkRetainsOverlap(t *testing.T) {
	buffer := NewSampleBuffer(10)
	buffer.Append(ramp(0, 40))

	chunk, err := buffer.TakeChunk(30, 5)
	if err != nil {
		t.Fatalf("TakeChunk failed: %v", err)
	}

	if len(chunk) != 35 {
		t.Errorf("Expected chunk of 35 samples, got %d", len(chunk))
	}
	if chunk[0] != 0 || chunk[34] != 34 {
		t.Errorf("Unexpected chunk bounds: first=%v last=%v", chunk[0], chunk[34])
	}

	// 40 - 30 dropped; the 5 overlap samples plus 5 newer ones remain
	if buffer.Len() != 10 {
		t.Errorf("Expected 10 samples after take, got %d", buffer.Len())
	}

	next := buffer.DrainRemainder()
	if next[0] != 30 {
		t.Errorf("Expected overlap to head the buffer (30), got %v", next[0])
	}
}

func TestTakeChunkInsufficientData(t *testing.T) {
	buffer := NewSampleBuffer(10)
	buffer.Append(ramp(0, 34))

	if buffer.Ready(30, 5) {
		t.Error("Buffer with 34 samples should not be ready for 30+5")
	}

	_, err := buffer.TakeChunk(30, 5)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData, got %v", err)
	}

	if buffer.Len() != 34 {
		t.Errorf("Failed take must not drain, got %d samples", buffer.Len())
	}
}

func TestTakeChunkInvalidGeometry(t *testing.T) {
	buffer := NewSampleBuffer(10)
	buffer.Append(ramp(0, 10))

	if _, err := buffer.TakeChunk(0, 1); err == nil {
		t.Error("Expected error for zero chunk size")
	}
	if _, err := buffer.TakeChunk(1, -1); err == nil {
		t.Error("Expected error for negative overlap")
	}
}

func TestLengthAccounting(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	buffer := NewSampleBuffer(100)

	const chunkSamples, overlapSamples = 300, 50
	appended, drained, next := 0, 0, 0

	for i := 0; i < 500; i++ {
		n := rng.Intn(120)
		buffer.Append(ramp(next, n))
		next += n
		appended += n

		for buffer.Ready(chunkSamples, overlapSamples) {
			chunk, err := buffer.TakeChunk(chunkSamples, overlapSamples)
			if err != nil {
				t.Fatalf("TakeChunk failed: %v", err)
			}
			if len(chunk) != chunkSamples+overlapSamples {
				t.Fatalf("Short chunk: %d", len(chunk))
			}
			if int(chunk[0]) != drained {
				t.Fatalf("Chunk starts at %v, expected %d", chunk[0], drained)
			}
			drained += chunkSamples
		}

		if buffer.Len() != appended-drained {
			t.Fatalf("Iteration %d: expected %d buffered, got %d", i, appended-drained, buffer.Len())
		}
	}

	stats := buffer.GetStats()
	if stats.Appended != uint64(appended) {
		t.Errorf("Expected %d appended, got %d", appended, stats.Appended)
	}
	if stats.Drained != uint64(drained) {
		t.Errorf("Expected %d drained, got %d", drained, stats.Drained)
	}
}

func TestCompactionBoundsCapacity(t *testing.T) {
	buffer := NewSampleBuffer(100) // 400 samples pre-allocated

	for i := 0; i < 1000; i++ {
		buffer.Append(ramp(0, 100))
		if buffer.Ready(300, 50) {
			if _, err := buffer.TakeChunk(300, 50); err != nil {
				t.Fatalf("TakeChunk failed: %v", err)
			}
		}
	}

	stats := buffer.GetStats()
	if stats.Compactions == 0 {
		t.Error("Expected drained prefix to be compacted")
	}
	if stats.Capacity > 4*(300+50+100) {
		t.Errorf("Backing array grew unbounded: capacity %d", stats.Capacity)
	}
}

func TestDrainRemainderClears(t *testing.T) {
	buffer := NewSampleBuffer(10)

	if rest := buffer.DrainRemainder(); rest != nil {
		t.Errorf("Expected nil remainder from empty buffer, got %d samples", len(rest))
	}

	buffer.Append(ramp(0, 12))
	if _, err := buffer.TakeChunk(5, 2); err != nil {
		t.Fatalf("TakeChunk failed: %v", err)
	}

	rest := buffer.DrainRemainder()
	if len(rest) != 7 {
		t.Errorf("Expected 7 remaining samples, got %d", len(rest))
	}
	if buffer.Len() != 0 {
		t.Errorf("Expected empty buffer after drain, got %d", buffer.Len())
	}
}

func TestSampleBufferReset(t *testing.T) {
	buffer := NewSampleBuffer(10)
	buffer.Append(ramp(0, 50))

	buffer.Reset()

	if buffer.Len() != 0 {
		t.Errorf("Expected empty buffer after reset, got %d", buffer.Len())
	}
	if !buffer.LastAppend().IsZero() {
		t.Error("Expected last append time to be cleared")
	}
	if stats := buffer.GetStats(); stats.Appended != 0 || stats.Drained != 0 {
		t.Errorf("Expected counters cleared, got %+v", stats)
	}
}
