// Package stream drives one streaming transcription session. The Scheduler
// cuts overlapping chunks from buffered audio and keeps at most one in
// flight; the Session owns the start/stream/stop lifecycle in a single
// goroutine, runs inference, merges results into the transcript and reports
// progress through an EventSink. The Broadcaster fans events out to
// subscribers.
package stream
