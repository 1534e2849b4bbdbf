package audio

import (
	"fmt"
	"slices"
	"sync"
)

// Sequencer restores datagram order for sequenced audio payloads before they
// reach a SampleBuffer. Late packets inside the gap window are slotted back in;
// a gap larger than maxGap is declared lost and skipped.
type Sequencer struct {
	started     bool
	lastSeq     uint32 // Last released sequence number
	expectedSeq uint32 // Next sequence number to release
	pending     map[uint32][]float32
	maxGap      uint32

	totalPackets uint32
	lostCount    uint32

	mu sync.Mutex
}

// SequencerStats represents reordering statistics for monitoring
type SequencerStats struct {
	TotalPackets uint32  `json:"total_packets"`
	LostPackets  uint32  `json:"lost_packets"`
	LossRate     float64 `json:"loss_rate"`
	PendingSeqs  int     `json:"pending_sequences"`
	LastSequence uint32  `json:"last_sequence"`
}

// NewSequencer creates a sequencer that waits for up to maxGap missing packets
func NewSequencer(maxGap uint32) *Sequencer {
	if maxGap == 0 {
		maxGap = 20
	}
	return &Sequencer{
		pending: make(map[uint32][]float32),
		maxGap:  maxGap,
	}
}

// Push accepts one sequenced payload and returns the samples that are now
// releasable in order. The returned batches must be appended in order.
func (s *Sequencer) Push(sequence uint32, samples []float32) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalPackets++

	if !s.started {
		s.started = true
		s.expectedSeq = sequence
		s.lastSeq = sequence - 1
	}

	switch {
	case sequence == s.expectedSeq:
		s.pending[sequence] = samples

	case sequence > s.expectedSeq:
		s.pending[sequence] = samples
		if sequence-s.expectedSeq > s.maxGap {
			// Give up on the missing run and resume from the earliest
			// packet we actually hold.
			next := sequence
			for seq := range s.pending {
				if seq >= s.expectedSeq && seq < next {
					next = seq
				}
			}
			s.lostCount += next - s.expectedSeq
			s.expectedSeq = next
		}

	default:
		return nil, fmt.Errorf("ignoring old/duplicate packet: seq=%d, lastSeq=%d", sequence, s.lastSeq)
	}

	return s.release(), nil
}

// release pops consecutive pending packets starting at expectedSeq
func (s *Sequencer) release() [][]float32 {
	var out [][]float32
	for {
		samples, ok := s.pending[s.expectedSeq]
		if !ok {
			return out
		}
		delete(s.pending, s.expectedSeq)
		out = append(out, samples)
		s.lastSeq = s.expectedSeq
		s.expectedSeq++
	}
}

// Drain releases every held-back packet in sequence order, counting the
// missing sequences between them as lost. Used at end of stream.
func (s *Sequencer) Drain() [][]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	seqs := make([]uint32, 0, len(s.pending))
	for seq := range s.pending {
		seqs = append(seqs, seq)
	}
	slices.Sort(seqs)

	out := make([][]float32, 0, len(seqs))
	for _, seq := range seqs {
		if seq < s.expectedSeq {
			continue
		}
		s.lostCount += seq - s.expectedSeq
		out = append(out, s.pending[seq])
		s.lastSeq = seq
		s.expectedSeq = seq + 1
	}
	s.pending = make(map[uint32][]float32)
	return out
}

// Reset clears all sequencing state
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.started = false
	s.lastSeq = 0
	s.expectedSeq = 0
	s.pending = make(map[uint32][]float32)
	s.totalPackets = 0
	s.lostCount = 0
}

// GetStats returns current sequencing statistics
func (s *Sequencer) GetStats() SequencerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	lossRate := float64(0)
	if s.totalPackets > 0 {
		lossRate = float64(s.lostCount) / float64(s.totalPackets) * 100
	}

	return SequencerStats{
		TotalPackets: s.totalPackets,
		LostPackets:  s.lostCount,
		LossRate:     lossRate,
		PendingSeqs:  len(s.pending),
		LastSequence: s.lastSeq,
	}
}
