package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/stream-diarizer/internal/audio"
	"github.com/skypro1111/stream-diarizer/internal/inference"
	"github.com/skypro1111/stream-diarizer/internal/metrics"
	"github.com/skypro1111/stream-diarizer/internal/transcript"
)

var (
	// ErrInvalidState is returned for an operation outside its lifecycle state
	ErrInvalidState = errors.New("invalid session state")

	// ErrSessionClosed is returned once the session loop has exited
	ErrSessionClosed = errors.New("session closed")
)

// Stop reasons
const (
	StopReasonClient = "client"
	StopReasonIdle   = "idle_timeout"
)

// State is the lifecycle state of a session
type State int

const (
	StateIdle State = iota
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Invoker runs inference on one chunk
type Invoker interface {
	Invoke(ctx context.Context, chunk *audio.Chunk, language string) (transcript.RawResult, error)
}

// InvokerFunc adapts a function to Invoker
type InvokerFunc func(ctx context.Context, chunk *audio.Chunk, language string) (transcript.RawResult, error)

// Invoke calls f
func (f InvokerFunc) Invoke(ctx context.Context, chunk *audio.Chunk, language string) (transcript.RawResult, error) {
	return f(ctx, chunk, language)
}

// SessionConfig contains session configuration
type SessionConfig struct {
	Chunking         audio.ChunkingConfig
	DefaultLanguage  string
	DropOverlapWords bool
	IdleTimeout      time.Duration // 0 disables the inactivity auto-stop
	MailboxSize      int
}

// SessionInfo is a point-in-time view of a session
type SessionInfo struct {
	ID              string    `json:"session_id,omitempty"`
	State           State     `json:"state"`
	Language        string    `json:"language,omitempty"`
	StartedAt       time.Time `json:"started_at,omitempty"`
	LastAudio       time.Time `json:"last_audio,omitempty"`
	OffsetSeconds   float64   `json:"offset_seconds"`
	BufferedSamples int       `json:"buffered_samples"`
	Busy            bool      `json:"busy"`
	Stopping        bool      `json:"stopping"`
	ChunksCompleted uint64    `json:"chunks_completed"`
	ChunksFailed    uint64    `json:"chunks_failed"`
	Segments        int       `json:"segments"`
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdFeed
	cmdStop
)

type command struct {
	kind     commandKind
	samples  []float32
	language string
	reply    chan error
}

type chunkResult struct {
	chunk *audio.Chunk
	raw   transcript.RawResult
	err   error
}

// Session is the start/stream/stop state machine. All mutable state is owned
// by the Run goroutine; the exported methods post commands to its mailbox.
type Session struct {
	config  SessionConfig
	invoker Invoker
	sink    EventSink
	metrics *metrics.Metrics
	logger  *slog.Logger

	commands chan command
	results  chan chunkResult
	done     chan struct{}

	// Owned by Run
	state       State
	scheduler   *Scheduler
	merger      *transcript.Merger
	id          string
	language    string
	startedAt   time.Time
	lastAudio   time.Time
	inflight    *audio.Chunk
	stopping    bool
	stopReason  string
	stopReply   chan error
	chunksOK    uint64
	chunksError uint64

	transcript *transcript.Log

	info   SessionInfo
	infoMu sync.RWMutex
}

// NewSession creates an idle session. sink and m may be nil.
func NewSession(config SessionConfig, invoker Invoker, sink EventSink, m *metrics.Metrics, logger *slog.Logger) (*Session, error) {
	if invoker == nil {
		return nil, fmt.Errorf("invoker cannot be nil")
	}

	scheduler, err := NewScheduler(config.Chunking)
	if err != nil {
		return nil, err
	}

	if config.MailboxSize <= 0 {
		config.MailboxSize = 64
	}
	if sink == nil {
		sink = SinkFunc(func(Event) {})
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		config:     config,
		invoker:    invoker,
		sink:       sink,
		metrics:    m,
		logger:     logger,
		commands:   make(chan command, config.MailboxSize),
		results:    make(chan chunkResult, 1),
		done:       make(chan struct{}),
		state:      StateIdle,
		scheduler:  scheduler,
		merger:     transcript.NewMerger(),
		transcript: transcript.NewLog(),
	}
	s.publishInfo()
	return s, nil
}

// Run owns the session state until ctx is canceled. It must be called exactly
// once.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	var tick <-chan time.Time
	if s.config.IdleTimeout > 0 {
		interval := s.config.IdleTimeout / 4
		if interval < 10*time.Millisecond {
			interval = 10 * time.Millisecond
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			if s.stopReply != nil {
				s.stopReply <- ctx.Err()
			}
			return ctx.Err()

		case cmd := <-s.commands:
			err := s.handle(ctx, cmd)
			s.publishInfo()
			// a stop replies when the final pass finishes
			if cmd.kind != cmdStop || err != nil {
				cmd.reply <- err
			}
			continue

		case res := <-s.results:
			s.complete(ctx, res)

		case now := <-tick:
			s.checkIdle(ctx, now)
		}

		s.publishInfo()
	}
}

// Start resets all streaming state and begins a new session
func (s *Session) Start(ctx context.Context, language string) error {
	return s.send(ctx, command{kind: cmdStart, language: language})
}

// Feed buffers a batch of samples and dispatches a chunk when one is ready
func (s *Session) Feed(ctx context.Context, samples []float32, language string) error {
	return s.send(ctx, command{kind: cmdFeed, samples: samples, language: language})
}

// Stop waits for any in-flight chunk, flushes the remaining audio through one
// final pass, and returns the session to Idle. It blocks until done.
func (s *Session) Stop(ctx context.Context, language string) error {
	return s.send(ctx, command{kind: cmdStop, language: language})
}

func (s *Session) send(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)

	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) handle(ctx context.Context, cmd command) error {
	switch cmd.kind {
	case cmdStart:
		return s.start(cmd.language)
	case cmdFeed:
		return s.feed(ctx, cmd.samples, cmd.language)
	case cmdStop:
		return s.stop(ctx, cmd.language, StopReasonClient, cmd.reply)
	default:
		return fmt.Errorf("unknown command %d", cmd.kind)
	}
}

func (s *Session) start(language string) error {
	if s.state != StateIdle {
		return fmt.Errorf("%w: start while %s", ErrInvalidState, s.state)
	}

	s.scheduler.Reset()
	s.merger.Reset()
	s.transcript.Reset()

	s.id = uuid.NewString()
	s.language = s.config.DefaultLanguage
	if language != "" {
		s.language = language
	}
	s.startedAt = time.Now()
	s.lastAudio = s.startedAt
	s.chunksOK = 0
	s.chunksError = 0
	s.state = StateStreaming

	s.metrics.RecordSessionStarted()
	s.logger.Info("Session started",
		slog.String("session_id", s.id),
		slog.String("language", s.language),
	)

	s.emit(Event{Type: EventProgress, Status: StatusStreaming})
	return nil
}

func (s *Session) feed(ctx context.Context, samples []float32, language string) error {
	if s.state != StateStreaming {
		return fmt.Errorf("%w: feed while %s", ErrInvalidState, s.state)
	}
	if s.stopping {
		return fmt.Errorf("%w: feed while stopping", ErrInvalidState)
	}

	if language != "" {
		s.language = language
	}
	if len(samples) > 0 {
		s.lastAudio = time.Now()
	}

	if chunk, ok := s.scheduler.OnAudio(samples); ok {
		s.dispatch(ctx, chunk)
	}
	s.metrics.SetSchedulerState(s.scheduler.Buffered(), s.scheduler.Offset())
	return nil
}

func (s *Session) stop(ctx context.Context, language, reason string, reply chan error) error {
	if s.state != StateStreaming {
		return fmt.Errorf("%w: stop while %s", ErrInvalidState, s.state)
	}
	if s.stopping {
		return fmt.Errorf("%w: stop already pending", ErrInvalidState)
	}

	if language != "" {
		s.language = language
	}
	s.stopping = true
	s.stopReason = reason
	s.stopReply = reply

	s.logger.Info("Session stopping",
		slog.String("session_id", s.id),
		slog.String("reason", reason),
		slog.Bool("chunk_in_flight", s.inflight != nil),
		slog.Int("buffered_samples", s.scheduler.Buffered()),
	)

	// with a chunk in flight the flush happens in complete
	if s.inflight == nil {
		s.flush(ctx)
	}
	return nil
}

// flush dispatches the remainder as the final chunk, or finishes the stop if
// nothing is buffered
func (s *Session) flush(ctx context.Context) {
	if chunk, ok := s.scheduler.Flush(); ok {
		s.dispatch(ctx, chunk)
		return
	}
	s.finishStop()
}

func (s *Session) dispatch(ctx context.Context, chunk *audio.Chunk) {
	s.inflight = chunk
	s.metrics.RecordChunkDispatched(chunk.Final, chunk.Duration())

	s.logger.Debug("Dispatching chunk",
		slog.String("session_id", s.id),
		slog.String("chunk_id", chunk.ID),
		slog.Int("chunk_index", chunk.Index),
		slog.Float64("offset", chunk.Offset),
		slog.Float64("duration", chunk.Duration()),
		slog.Bool("final", chunk.Final),
	)

	language := s.language
	go func() {
		raw, err := s.invoker.Invoke(ctx, chunk, language)
		select {
		case s.results <- chunkResult{chunk: chunk, raw: raw, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (s *Session) complete(ctx context.Context, res chunkResult) {
	if res.chunk != s.inflight {
		s.logger.Warn("Ignoring result for unknown chunk", slog.String("chunk_id", res.chunk.ID))
		return
	}

	s.scheduler.Complete()
	s.inflight = nil
	info := res.chunk.Info()

	if res.err != nil {
		s.chunksError++
		s.metrics.RecordChunkCompleted("failure")

		component := ""
		var infErr *inference.InferenceError
		if errors.As(res.err, &infErr) {
			component = infErr.Component
		}

		s.logger.Error("Chunk inference failed",
			slog.String("session_id", s.id),
			slog.String("chunk_id", info.ID),
			slog.Int("chunk_index", info.Index),
			slog.String("component", component),
			slog.String("error", res.err.Error()),
		)
		s.emit(Event{
			Type:      EventError,
			Component: component,
			Chunk:     &info,
			Error:     res.err.Error(),
		})
	} else {
		s.chunksOK++
		s.metrics.RecordChunkCompleted("success")

		aligned := transcript.AlignWith(res.raw, res.chunk.Offset, transcript.AlignOptions{
			DropOverlapWords: s.config.DropOverlapWords,
			Stride:           res.chunk.StrideSeconds(),
			Final:            res.chunk.Final,
		})
		segments := s.merger.Merge(aligned)
		s.transcript.Append(segments...)
		s.metrics.RecordTranscriptUpdate(len(aligned.Words), len(segments))

		s.logger.Info("Chunk transcribed",
			slog.String("session_id", s.id),
			slog.String("chunk_id", info.ID),
			slog.Int("chunk_index", info.Index),
			slog.Float64("offset", info.Offset),
			slog.Int("words", len(aligned.Words)),
			slog.Int("segments", len(segments)),
			slog.Bool("final", info.Final),
		)
		s.emit(Event{
			Type:     EventPartial,
			Segments: segments,
			Chunk:    &info,
		})
	}

	s.metrics.SetSchedulerState(s.scheduler.Buffered(), s.scheduler.Offset())

	if s.stopping {
		if res.chunk.Final {
			s.finishStop()
		} else {
			s.flush(ctx)
		}
		return
	}

	if next, ok := s.scheduler.Next(); ok {
		s.dispatch(ctx, next)
	}
}

func (s *Session) finishStop() {
	duration := time.Since(s.startedAt)

	s.logger.Info("Session stopped",
		slog.String("session_id", s.id),
		slog.String("reason", s.stopReason),
		slog.Duration("duration", duration),
		slog.Uint64("chunks_completed", s.chunksOK),
		slog.Uint64("chunks_failed", s.chunksError),
		slog.Int("segments", s.transcript.Len()),
	)

	s.emit(Event{
		Type:     EventStopped,
		Reason:   s.stopReason,
		Segments: s.transcript.Blocks(),
	})
	s.emit(Event{Type: EventProgress, Status: StatusStopped})
	s.metrics.RecordSessionStopped(s.stopReason, duration.Seconds())
	s.metrics.SetSchedulerState(0, 0)

	s.scheduler.Reset()
	s.merger.Reset()
	s.state = StateIdle
	s.stopping = false
	s.stopReason = ""

	s.publishInfo()
	if s.stopReply != nil {
		s.stopReply <- nil
		s.stopReply = nil
	}
}

func (s *Session) checkIdle(ctx context.Context, now time.Time) {
	if s.state != StateStreaming || s.stopping {
		return
	}
	if now.Sub(s.lastAudio) < s.config.IdleTimeout {
		return
	}

	s.logger.Warn("Session idle, stopping",
		slog.String("session_id", s.id),
		slog.Duration("idle", now.Sub(s.lastAudio)),
	)
	if err := s.stop(ctx, "", StopReasonIdle, nil); err != nil {
		s.logger.Error("Failed to stop idle session", slog.String("error", err.Error()))
	}
}

func (s *Session) emit(e Event) {
	e.SessionID = s.id
	e.Offset = s.scheduler.Offset()
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	s.sink.Publish(e)
}

func (s *Session) publishInfo() {
	stats := s.scheduler.GetStats()
	info := SessionInfo{
		State:           s.state,
		OffsetSeconds:   stats.OffsetSeconds,
		BufferedSamples: stats.Buffer.Buffered,
		Busy:            stats.Busy,
		Stopping:        s.stopping,
		ChunksCompleted: s.chunksOK,
		ChunksFailed:    s.chunksError,
		Segments:        s.transcript.Len(),
	}
	if s.state == StateStreaming {
		info.ID = s.id
		info.Language = s.language
		info.StartedAt = s.startedAt
		info.LastAudio = s.lastAudio
	}

	s.infoMu.Lock()
	s.info = info
	s.infoMu.Unlock()
}

// Info returns the latest session snapshot
func (s *Session) Info() SessionInfo {
	s.infoMu.RLock()
	defer s.infoMu.RUnlock()
	return s.info
}

// Transcript returns the transcript since the last Start as speaker blocks,
// with segments that continue across a chunk boundary folded together. It
// stays readable after the session stopped.
func (s *Session) Transcript() []transcript.Segment {
	return s.transcript.Blocks()
}

// Segments returns the segments as emitted per chunk, continuation segments
// included
func (s *Session) Segments() []transcript.Segment {
	return s.transcript.Segments()
}

// Done is closed when Run returns
func (s *Session) Done() <-chan struct{} {
	return s.done
}
