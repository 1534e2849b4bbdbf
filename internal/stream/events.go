package stream

import (
	"time"

	"github.com/skypro1111/stream-diarizer/internal/audio"
	"github.com/skypro1111/stream-diarizer/internal/transcript"
)

// EventType identifies an event sent from a session to its host
type EventType string

const (
	EventProgress EventType = "progress"
	EventPartial  EventType = "partial"
	EventStopped  EventType = "stopped"
	EventError    EventType = "error"
)

// Progress statuses
const (
	StatusLoading   = "loading"
	StatusReady     = "ready"
	StatusStreaming = "streaming"
	StatusStopped   = "stopped"
	StatusError     = "error"
)

// Event is one notification from a session
type Event struct {
	Type      EventType            `json:"type"`
	SessionID string               `json:"session_id,omitempty"`
	Status    string               `json:"status,omitempty"`
	Component string               `json:"component,omitempty"`
	Segments  []transcript.Segment `json:"segments,omitempty"`
	Chunk     *audio.ChunkInfo     `json:"chunk,omitempty"`
	Offset    float64              `json:"offset_seconds"`
	Reason    string               `json:"reason,omitempty"`
	Error     string               `json:"error,omitempty"`
	Time      time.Time            `json:"time"`
}

// EventSink receives session events. Publish is called from the session
// goroutine and must not block.
type EventSink interface {
	Publish(Event)
}

// SinkFunc adapts a function to EventSink
type SinkFunc func(Event)

// Publish calls f(e)
func (f SinkFunc) Publish(e Event) {
	f(e)
}

// ProgressEvent builds a progress event for a component status change
func ProgressEvent(component, status string) Event {
	return Event{
		Type:      EventProgress,
		Component: component,
		Status:    status,
		Time:      time.Now(),
	}
}
