package transcript

import (
	"sort"
	"strings"
)

// Merger groups words into speaker segments. The current speaker is carried
// across calls so a speaker talking over a chunk boundary is not split.
// A Merger is owned by a single goroutine.
type Merger struct {
	current string
	started bool
}

// NewMerger creates a merger with no current speaker
func NewMerger() *Merger {
	return &Merger{current: NoSpeaker}
}

// CurrentSpeaker returns the speaker of the last merged word
func (m *Merger) CurrentSpeaker() string {
	return m.current
}

// Reset forgets the carried speaker
func (m *Merger) Reset() {
	m.current = NoSpeaker
	m.started = false
}

// Resolve returns the label of the first interval, in supplied order, whose
// closed range contains t, or NoSpeaker.
func Resolve(intervals []SpeakerInterval, t float64) string {
	for _, s := range intervals {
		if s.Contains(t) {
			return s.Label
		}
	}
	return NoSpeaker
}

// Merge attributes the words of an aligned result to speakers and returns the
// new segments in time order. A segment boundary is placed only where the
// resolved speaker changes.
func (m *Merger) Merge(result AlignedResult) []Segment {
	if len(result.Words) == 0 {
		return nil
	}

	words := make([]Word, len(result.Words))
	copy(words, result.Words)
	sort.SliceStable(words, func(i, j int) bool {
		return words[i].Start < words[j].Start
	})

	var (
		segments []Segment
		texts    []string
		seg      Segment
	)

	flush := func() {
		if len(texts) == 0 {
			return
		}
		seg.Text = strings.Join(texts, " ")
		segments = append(segments, seg)
		texts = texts[:0]
	}

	first := true
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		speaker := Resolve(result.Intervals, w.Midpoint())

		if first || speaker != m.current {
			flush()
			seg = Segment{
				Speaker:   speaker,
				Start:     w.Start,
				Continues: first && m.started && speaker == m.current,
			}
		}

		texts = append(texts, text)
		seg.End = w.End
		m.current = speaker
		m.started = true
		first = false
	}
	flush()

	return segments
}
