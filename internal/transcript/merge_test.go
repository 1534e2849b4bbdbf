package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordsFor builds one word per label, each one second long, with intervals
// that cover exactly that word.
func wordsFor(labels ...string) AlignedResult {
	var result AlignedResult
	for i, label := range labels {
		start := float64(i)
		result.Words = append(result.Words, Word{Text: "w", Start: start, End: start + 1})
		if label != NoSpeaker {
			result.Intervals = append(result.Intervals, SpeakerInterval{Label: label, Start: start + 0.1, End: start + 0.9})
		}
	}
	return result
}

func speakers(segments []Segment) []string {
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = s.Speaker
	}
	return out
}

func TestMergeGroupsBySpeakerRuns(t *testing.T) {
	m := NewMerger()

	segments := m.Merge(wordsFor("A", "A", "A", "B", "B", "A"))

	require.Len(t, segments, 3)
	assert.Equal(t, []string{"A", "B", "A"}, speakers(segments))
	assert.Equal(t, "w w w", segments[0].Text)
	assert.Equal(t, "w w", segments[1].Text)
	assert.Equal(t, "w", segments[2].Text)
	assert.Equal(t, 0.0, segments[0].Start)
	assert.Equal(t, 3.0, segments[0].End)
	assert.Equal(t, 5.0, segments[2].Start)
}

func TestMergeNoSpeakerStartsNewSegment(t *testing.T) {
	m := NewMerger()

	segments := m.Merge(wordsFor("A", NoSpeaker, NoSpeaker, "A"))

	require.Len(t, segments, 3)
	assert.Equal(t, []string{"A", NoSpeaker, "A"}, speakers(segments))
	assert.Equal(t, "w w", segments[1].Text)
}

func TestMergeFirstListedIntervalWins(t *testing.T) {
	m := NewMerger()

	segments := m.Merge(AlignedResult{
		Words: []Word{{Text: "overlap", Start: 8.5, End: 9.5}},
		Intervals: []SpeakerInterval{
			{Label: "A", Start: 0, End: 10},
			{Label: "B", Start: 8, End: 20},
		},
	})

	require.Len(t, segments, 1)
	assert.Equal(t, "A", segments[0].Speaker)
}

func TestMergeIntervalBoundsInclusive(t *testing.T) {
	intervals := []SpeakerInterval{{Label: "A", Start: 1, End: 2}}

	assert.Equal(t, "A", Resolve(intervals, 1))
	assert.Equal(t, "A", Resolve(intervals, 2))
	assert.Equal(t, NoSpeaker, Resolve(intervals, 2.0001))
	assert.Equal(t, NoSpeaker, Resolve(nil, 1))
}

func TestMergeSortsWordsByStart(t *testing.T) {
	m := NewMerger()

	segments := m.Merge(AlignedResult{
		Words: []Word{
			{Text: "second", Start: 1, End: 2},
			{Text: "first", Start: 0, End: 1},
			{Text: "third", Start: 2, End: 3},
		},
		Intervals: []SpeakerInterval{{Label: "A", Start: 0, End: 3}},
	})

	require.Len(t, segments, 1)
	assert.Equal(t, "first second third", segments[0].Text)
}

func TestMergeTrimsAndSkipsEmptyTokens(t *testing.T) {
	m := NewMerger()

	segments := m.Merge(AlignedResult{
		Words: []Word{
			{Text: " Hello", Start: 0, End: 1},
			{Text: "  ", Start: 1, End: 2},
			{Text: " there.", Start: 2, End: 3},
		},
	})

	require.Len(t, segments, 1)
	assert.Equal(t, "Hello there.", segments[0].Text)
	assert.Equal(t, NoSpeaker, segments[0].Speaker)
}

func TestMergeCarriesSpeakerAcrossChunks(t *testing.T) {
	m := NewMerger()

	first := m.Merge(wordsFor("A", "B"))
	require.Len(t, first, 2)
	assert.Equal(t, "B", m.CurrentSpeaker())

	second := m.Merge(wordsFor("B", "B", "A"))
	require.Len(t, second, 2)
	assert.True(t, second[0].Continues, "B keeps talking across the boundary")
	assert.False(t, second[1].Continues)

	third := m.Merge(wordsFor("B"))
	require.Len(t, third, 1)
	assert.False(t, third[0].Continues, "speaker changed at the boundary")

	log := NewLog()
	log.Append(first...)
	log.Append(second...)
	log.Append(third...)
	assert.Equal(t, []string{"A", "B", "A", "B"}, speakers(log.Blocks()))
	assert.Equal(t, 5, log.Len())
}

func TestMergeFirstChunkNeverContinues(t *testing.T) {
	m := NewMerger()

	segments := m.Merge(wordsFor(NoSpeaker))

	require.Len(t, segments, 1)
	assert.False(t, segments[0].Continues)
}

func TestMergeEmptyKeepsSpeaker(t *testing.T) {
	m := NewMerger()
	m.Merge(wordsFor("A"))

	assert.Nil(t, m.Merge(AlignedResult{}))
	assert.Equal(t, "A", m.CurrentSpeaker())

	m.Reset()
	assert.Equal(t, NoSpeaker, m.CurrentSpeaker())
	segments := m.Merge(wordsFor("A"))
	assert.False(t, segments[0].Continues)
}

// The overlap region is re-read by the next chunk, so a word spoken inside it
// can be transcribed by both chunks.
func TestDuplicateWordAtChunkBoundary(t *testing.T) {
	chunk1 := RawResult{
		Words: []Word{
			{Text: "good", Start: 28.0, End: 28.6},
			{Text: "morning", Start: 30.5, End: 31.2}, // inside the overlap
		},
		Intervals: []SpeakerInterval{{Label: "A", Start: 0, End: 35}},
	}
	chunk2 := RawResult{
		Words: []Word{
			{Text: "morning", Start: 0.5, End: 1.2},
			{Text: "everyone", Start: 1.3, End: 2.0},
		},
		Intervals: []SpeakerInterval{{Label: "A", Start: 0, End: 35}},
	}

	t.Run("kept by default", func(t *testing.T) {
		m := NewMerger()
		log := NewLog()
		log.Append(m.Merge(Align(chunk1, 0))...)
		log.Append(m.Merge(Align(chunk2, 30))...)

		blocks := log.Blocks()
		require.Len(t, blocks, 1)
		assert.Equal(t, "good morning morning everyone", blocks[0].Text)
	})

	t.Run("dropped from overlap", func(t *testing.T) {
		m := NewMerger()
		log := NewLog()
		opts := AlignOptions{DropOverlapWords: true, Stride: 30}
		log.Append(m.Merge(AlignWith(chunk1, 0, opts))...)
		log.Append(m.Merge(AlignWith(chunk2, 30, opts))...)

		blocks := log.Blocks()
		require.Len(t, blocks, 1)
		assert.Equal(t, "good morning everyone", blocks[0].Text)
		assert.InDelta(t, 30.5, log.Segments()[1].Start, 1e-9)
	})
}
