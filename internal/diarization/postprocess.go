package diarization

import (
	"fmt"
	"math"

	"github.com/skypro1111/stream-diarizer/internal/transcript"
)

// Logits are per-frame class scores, indexed [frame][class]
type Logits [][]float32

// Interval is a run of frames assigned to one class id. Times are
// chunk-local seconds.
type Interval struct {
	ID         int     `json:"id"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// PostProcess converts logits for a chunk of numSamples samples into speaker
// intervals. Each frame takes the argmax of its softmax; consecutive frames
// with the same id form one interval whose confidence is the mean winning
// probability.
func PostProcess(logits Logits, numSamples, sampleRate int) ([]Interval, error) {
	if len(logits) == 0 {
		return nil, nil
	}
	if numSamples <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid chunk geometry: samples=%d, rate=%d", numSamples, sampleRate)
	}

	ratio := float64(numSamples) / float64(len(logits)) / float64(sampleRate)

	type run struct {
		id         int
		start, end int
		score      float64
	}
	var runs []run

	current := -1
	for i, frame := range logits {
		score, id, err := argmaxSoftmax(frame)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		if id != current {
			current = id
			runs = append(runs, run{id: id, start: i, end: i + 1, score: score})
			continue
		}
		last := &runs[len(runs)-1]
		last.end = i + 1
		last.score += score
	}

	out := make([]Interval, len(runs))
	for i, r := range runs {
		out[i] = Interval{
			ID:         r.id,
			Start:      float64(r.start) * ratio,
			End:        float64(r.end) * ratio,
			Confidence: r.score / float64(r.end-r.start),
		}
	}
	return out, nil
}

// argmaxSoftmax returns the highest softmax probability of a frame and its
// class index
func argmaxSoftmax(frame []float32) (float64, int, error) {
	if len(frame) == 0 {
		return 0, 0, fmt.Errorf("empty frame")
	}

	maxLogit := math.Inf(-1)
	best := 0
	for i, v := range frame {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, 0, fmt.Errorf("non-finite logit at class %d", i)
		}
		if f > maxLogit {
			maxLogit = f
			best = i
		}
	}

	var sum float64
	for _, v := range frame {
		sum += math.Exp(float64(v) - maxLogit)
	}
	// the winning class contributes exp(0) = 1
	return 1 / sum, best, nil
}

// Label resolves interval ids through the model's id to label table. An id
// missing from the table is an error.
func Label(intervals []Interval, labels map[int]string) ([]transcript.SpeakerInterval, error) {
	out := make([]transcript.SpeakerInterval, len(intervals))
	for i, iv := range intervals {
		label, ok := labels[iv.ID]
		if !ok {
			return nil, fmt.Errorf("unknown speaker class id %d", iv.ID)
		}
		out[i] = transcript.SpeakerInterval{
			ID:         iv.ID,
			Label:      label,
			Start:      iv.Start,
			End:        iv.End,
			Confidence: iv.Confidence,
		}
	}
	return out, nil
}
