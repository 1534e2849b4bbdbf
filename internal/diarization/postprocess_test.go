package diarization

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostProcessRunLength(t *testing.T) {
	logits := Logits{
		{5, 0, 0},
		{5, 0, 0},
		{0, 5, 0},
		{0, 5, 0},
		{0, 5, 0},
		{0, 0, 5},
		{5, 0, 0},
		{5, 0, 0},
		{5, 0, 0},
		{5, 0, 0},
	}

	// 10 frames over 1 second of 16 kHz audio: 0.1 s per frame
	intervals, err := PostProcess(logits, 16000, 16000)
	require.NoError(t, err)
	require.Len(t, intervals, 4)

	wantIDs := []int{0, 1, 2, 0}
	wantBounds := [][2]float64{{0, 0.2}, {0.2, 0.5}, {0.5, 0.6}, {0.6, 1.0}}
	for i, iv := range intervals {
		assert.Equal(t, wantIDs[i], iv.ID)
		assert.InDelta(t, wantBounds[i][0], iv.Start, 1e-9)
		assert.InDelta(t, wantBounds[i][1], iv.End, 1e-9)
	}

	// softmax(5, 0, 0) for the winner
	p := 1 / (1 + 2*math.Exp(-5))
	for _, iv := range intervals {
		assert.InDelta(t, p, iv.Confidence, 1e-6)
	}
}

func TestPostProcessConfidenceIsMean(t *testing.T) {
	logits := Logits{
		{2, 0},
		{4, 0},
	}

	intervals, err := PostProcess(logits, 320, 16000)
	require.NoError(t, err)
	require.Len(t, intervals, 1)

	p1 := 1 / (1 + math.Exp(-2))
	p2 := 1 / (1 + math.Exp(-4))
	assert.InDelta(t, (p1+p2)/2, intervals[0].Confidence, 1e-6)
	assert.InDelta(t, 0.02, intervals[0].End, 1e-9)
}

func TestPostProcessErrors(t *testing.T) {
	_, err := PostProcess(Logits{{1, 0}}, 0, 16000)
	assert.Error(t, err)

	_, err = PostProcess(Logits{{}}, 100, 16000)
	assert.Error(t, err)

	_, err = PostProcess(Logits{{float32(math.NaN()), 0}}, 100, 16000)
	assert.Error(t, err)

	intervals, err := PostProcess(nil, 100, 16000)
	assert.NoError(t, err)
	assert.Empty(t, intervals)
}

func TestLabel(t *testing.T) {
	labels := map[int]string{0: "NO_SPEAKER", 1: "SPEAKER_1"}

	out, err := Label([]Interval{{ID: 1, Start: 0, End: 1, Confidence: 0.8}}, labels)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "SPEAKER_1", out[0].Label)
	assert.Equal(t, 0.8, out[0].Confidence)

	_, err = Label([]Interval{{ID: 7}}, labels)
	assert.ErrorContains(t, err, "unknown speaker class id 7")
}
