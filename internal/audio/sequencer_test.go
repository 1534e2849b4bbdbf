package audio

import (
	"testing"
)

func flatten(batches [][]float32) []float32 {
	var out []float32
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}

func TestSequencerInOrder(t *testing.T) {
	seq := NewSequencer(0)

	for i := uint32(0); i < 5; i++ {
		out, err := seq.Push(i, []float32{float32(i)})
		if err != nil {
			t.Fatalf("Push(%d) failed: %v", i, err)
		}
		if len(out) != 1 || out[0][0] != float32(i) {
			t.Errorf("Push(%d) expected immediate release, got %v", i, out)
		}
	}

	stats := seq.GetStats()
	if stats.TotalPackets != 5 || stats.LostPackets != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.LastSequence != 4 {
		t.Errorf("Expected last sequence 4, got %d", stats.LastSequence)
	}
}

func TestSequencerReorders(t *testing.T) {
	seq := NewSequencer(20)

	var released []float32
	for _, n := range []uint32{1, 3, 2, 4} {
		out, err := seq.Push(n, []float32{float32(n)})
		if err != nil {
			t.Fatalf("Push(%d) failed: %v", n, err)
		}
		released = append(released, flatten(out)...)
	}

	want := []float32{1, 2, 3, 4}
	if len(released) != len(want) {
		t.Fatalf("Expected %v, got %v", want, released)
	}
	for i := range want {
		if released[i] != want[i] {
			t.Errorf("Position %d: expected %v, got %v", i, want[i], released[i])
		}
	}
}

func TestSequencerRejectsDuplicate(t *testing.T) {
	seq := NewSequencer(20)

	if _, err := seq.Push(10, []float32{1}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if _, err := seq.Push(10, []float32{1}); err == nil {
		t.Error("Expected error for duplicate packet")
	}
	if _, err := seq.Push(9, []float32{1}); err == nil {
		t.Error("Expected error for old packet")
	}
}

func TestSequencerSkipsLargeGap(t *testing.T) {
	seq := NewSequencer(5)

	if _, err := seq.Push(0, []float32{0}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	out, err := seq.Push(10, []float32{10})
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if got := flatten(out); len(got) != 1 || got[0] != 10 {
		t.Errorf("Expected gap skip to release packet 10, got %v", got)
	}

	stats := seq.GetStats()
	if stats.LostPackets != 9 {
		t.Errorf("Expected 9 lost packets, got %d", stats.LostPackets)
	}
	if stats.PendingSeqs != 0 {
		t.Errorf("Expected nothing pending, got %d", stats.PendingSeqs)
	}
}

func TestSequencerReset(t *testing.T) {
	seq := NewSequencer(20)
	seq.Push(5, []float32{5})
	seq.Push(7, []float32{7})

	seq.Reset()

	out, err := seq.Push(100, []float32{100})
	if err != nil {
		t.Fatalf("Push after reset failed: %v", err)
	}
	if len(out) != 1 {
		t.Errorf("Expected restart at new sequence, got %v", out)
	}
	if stats := seq.GetStats(); stats.TotalPackets != 1 {
		t.Errorf("Expected counters cleared, got %+v", stats)
	}
}

func TestSequencerDrain(t *testing.T) {
	seq := NewSequencer(20)

	seq.Push(0, []float32{0})
	// 1 and 3 never arrive
	seq.Push(4, []float32{4})
	seq.Push(2, []float32{2})

	got := flatten(seq.Drain())
	if len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Fatalf("Expected drained [2 4], got %v", got)
	}

	stats := seq.GetStats()
	if stats.LostPackets != 2 {
		t.Errorf("Expected 2 lost packets, got %d", stats.LostPackets)
	}
	if stats.PendingSeqs != 0 {
		t.Errorf("Expected nothing pending after drain, got %d", stats.PendingSeqs)
	}

	if out := seq.Drain(); len(out) != 0 {
		t.Errorf("Expected empty second drain, got %v", out)
	}
}
