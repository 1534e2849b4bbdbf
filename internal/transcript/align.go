package transcript

// AlignOptions tunes how chunk-local results are placed on the timeline
type AlignOptions struct {
	// DropOverlapWords discards words whose chunk-local midpoint lies at or
	// after Stride, i.e. inside the trailing overlap that the next chunk
	// re-reads. Ignored for final chunks.
	DropOverlapWords bool
	Stride           float64 // Chunk-local seconds that count as stream time
	Final            bool
}

// Align shifts every word and speaker interval of raw by offset seconds.
// The input is not modified. Aligning an already aligned result shifts it
// twice.
func Align(raw RawResult, offset float64) AlignedResult {
	return AlignWith(raw, offset, AlignOptions{})
}

// AlignWith is Align with overlap handling options
func AlignWith(raw RawResult, offset float64, opts AlignOptions) AlignedResult {
	dropOverlap := opts.DropOverlapWords && !opts.Final && opts.Stride > 0

	words := make([]Word, 0, len(raw.Words))
	for _, w := range raw.Words {
		if dropOverlap && w.Midpoint() >= opts.Stride {
			continue
		}
		w.Start += offset
		w.End += offset
		words = append(words, w)
	}

	intervals := make([]SpeakerInterval, len(raw.Intervals))
	for i, s := range raw.Intervals {
		s.Start += offset
		s.End += offset
		intervals[i] = s
	}

	return AlignedResult{
		Words:     words,
		Intervals: intervals,
		Offset:    offset,
	}
}
