package transcript

import (
	"strings"
	"sync"
)

// Log is the cumulative, append-only transcript of a session
type Log struct {
	segments []Segment
	mu       sync.RWMutex
}

// NewLog creates an empty transcript log
func NewLog() *Log {
	return &Log{}
}

// Append adds segments to the end of the log
func (l *Log) Append(segments ...Segment) {
	if len(segments) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.segments = append(l.segments, segments...)
}

// Segments returns a copy of all segments in emission order
func (l *Log) Segments() []Segment {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Segment, len(l.segments))
	copy(out, l.segments)
	return out
}

// Blocks returns the log with continuation segments folded into the block
// they continue, one block per speaker turn.
func (l *Log) Blocks() []Segment {
	return Coalesce(l.Segments())
}

// Len returns the number of segments
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.segments)
}

// Reset clears the log
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.segments = nil
}

// Coalesce folds every Continues segment into the preceding one
func Coalesce(segments []Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if s.Continues && len(out) > 0 && out[len(out)-1].Speaker == s.Speaker {
			last := &out[len(out)-1]
			last.Text = strings.TrimSpace(last.Text + " " + s.Text)
			last.End = s.End
			continue
		}
		s.Continues = false
		out = append(out, s)
	}
	return out
}
