package server

import (
	"context"
	"sync"

	"github.com/skypro1111/stream-diarizer/internal/stream"
	"github.com/skypro1111/stream-diarizer/internal/transcript"
)

// fakeController mimics the session lifecycle without running inference
type fakeController struct {
	mu        sync.Mutex
	state     stream.State
	language  string
	starts    int
	stops     int
	fed       []float32
	feedCalls int
	segments  []transcript.Segment
	stopped   chan struct{}
}

func newFakeController() *fakeController {
	return &fakeController{
		segments: []transcript.Segment{
			{Speaker: "SPEAKER_00", Text: "hello there", Start: 0.5, End: 1.5},
			{Speaker: "SPEAKER_01", Text: "general", Start: 2, End: 3},
		},
		stopped: make(chan struct{}, 16),
	}
}

func (f *fakeController) Start(ctx context.Context, language string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != stream.StateIdle {
		return stream.ErrInvalidState
	}
	f.state = stream.StateStreaming
	f.language = language
	f.starts++
	return nil
}

func (f *fakeController) Feed(ctx context.Context, samples []float32, language string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != stream.StateStreaming {
		return stream.ErrInvalidState
	}
	f.fed = append(f.fed, samples...)
	f.feedCalls++
	return nil
}

func (f *fakeController) Stop(ctx context.Context, language string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != stream.StateStreaming {
		return stream.ErrInvalidState
	}
	f.state = stream.StateIdle
	f.stops++
	f.stopped <- struct{}{}
	return nil
}

func (f *fakeController) Info() stream.SessionInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return stream.SessionInfo{
		State:           f.state,
		Language:        f.language,
		BufferedSamples: len(f.fed),
		Segments:        len(f.segments),
	}
}

func (f *fakeController) Transcript() []transcript.Segment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transcript.Segment(nil), f.segments...)
}

func (f *fakeController) samples() []float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float32(nil), f.fed...)
}

func (f *fakeController) counts() (starts, stops, feeds int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops, f.feedCalls
}
