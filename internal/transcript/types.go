package transcript

import (
	"fmt"
	"math"
)

// NoSpeaker is the label of words whose midpoint falls in no speaker interval.
// It never equals a model label.
const NoSpeaker = ""

// Word is one transcribed token. Times are seconds, chunk-local until aligned.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Midpoint returns the time used for speaker attribution
func (w Word) Midpoint() float64 {
	return (w.Start + w.End) / 2
}

// SpeakerInterval attributes a span of audio to one speaker
type SpeakerInterval struct {
	ID         int     `json:"id"`
	Label      string  `json:"label"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Contains reports whether t lies in the closed interval [Start, End]
func (s SpeakerInterval) Contains(t float64) bool {
	return s.Start <= t && t <= s.End
}

// RawResult is the paired, chunk-local output of one inference pass
type RawResult struct {
	Words     []Word            `json:"words"`
	Intervals []SpeakerInterval `json:"intervals"`
}

// Validate rejects malformed collaborator output
func (r RawResult) Validate() error {
	for i, w := range r.Words {
		if err := checkSpan(w.Start, w.End); err != nil {
			return fmt.Errorf("word %d (%q): %w", i, w.Text, err)
		}
	}
	for i, s := range r.Intervals {
		if err := checkSpan(s.Start, s.End); err != nil {
			return fmt.Errorf("speaker interval %d (%s): %w", i, s.Label, err)
		}
	}
	return nil
}

func checkSpan(start, end float64) error {
	if math.IsNaN(start) || math.IsNaN(end) || math.IsInf(start, 0) || math.IsInf(end, 0) {
		return fmt.Errorf("non-finite timestamp [%v, %v]", start, end)
	}
	if end < start {
		return fmt.Errorf("inverted timestamp [%v, %v]", start, end)
	}
	return nil
}

// AlignedResult is a RawResult shifted onto the stream timeline
type AlignedResult struct {
	Words     []Word            `json:"words"`
	Intervals []SpeakerInterval `json:"intervals"`
	Offset    float64           `json:"offset"`
}

// Segment is a run of consecutive words attributed to the same speaker
type Segment struct {
	Speaker string  `json:"speaker,omitempty"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`

	// Continues is set when the segment carries on the speaker that ended
	// the previous merge, so it extends the previous block rather than
	// starting a new one.
	Continues bool `json:"continues,omitempty"`
}
