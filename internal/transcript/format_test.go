package transcript

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSegments() []Segment {
	return []Segment{
		{Speaker: "A", Text: "hello there", Start: 0, End: 1.5},
		{Speaker: "A", Text: "how are you", Start: 30.2, End: 31, Continues: true},
		{Speaker: NoSpeaker, Text: "noise", Start: 3661.25, End: 3662},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"SRT", FormatSRT, false},
		{" vtt ", FormatVTT, false},
		{"md", FormatMarkdown, false},
		{"markdown", FormatMarkdown, false},
		{"json", FormatJSON, false},
		{"docx", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleSegments(), FormatText))

	want := "[00:00:00.000 --> 00:00:31.000] [A] hello there how are you\n" +
		"[01:01:01.250 --> 01:01:02.000] noise\n"
	assert.Equal(t, want, buf.String())
}

func TestRenderSRT(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleSegments(), FormatSRT))

	want := "1\n00:00:00,000 --> 00:00:31,000\nA: hello there how are you\n\n" +
		"2\n01:01:01,250 --> 01:01:02,000\nnoise\n\n"
	assert.Equal(t, want, buf.String())
}

func TestRenderVTT(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleSegments(), FormatVTT))

	assert.Contains(t, buf.String(), "WEBVTT\n\n00:00:00.000 --> 00:00:31.000\nA: hello there how are you\n")
}

func TestRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleSegments(), FormatMarkdown))

	want := "**A** _(00:00:00.000)_: hello there how are you\n\n_(01:01:01.250)_ noise\n"
	assert.Equal(t, want, buf.String())
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleSegments(), FormatJSON))

	var payload struct {
		Segments []Segment `json:"segments"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &payload))
	require.Len(t, payload.Segments, 2)
	assert.Equal(t, "hello there how are you", payload.Segments[0].Text)
	assert.False(t, payload.Segments[0].Continues)
}

func TestRenderUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Render(&buf, sampleSegments(), Format("pdf")))
}

func TestCoalesceRequiresSameSpeaker(t *testing.T) {
	blocks := Coalesce([]Segment{
		{Speaker: "A", Text: "one"},
		{Speaker: "B", Text: "two", Continues: true},
	})

	require.Len(t, blocks, 2)
	assert.False(t, blocks[1].Continues)
}

func TestLogReset(t *testing.T) {
	log := NewLog()
	log.Append(sampleSegments()...)
	log.Append()
	assert.Equal(t, 3, log.Len())

	log.Reset()
	assert.Equal(t, 0, log.Len())
	assert.Empty(t, log.Segments())
}
