package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the diarization service.
// All Record/Set methods are no-ops on a nil *Metrics.
type Metrics struct {
	// UDP packet metrics
	PacketsReceived  prometheus.Counter
	PacketsProcessed prometheus.Counter
	PacketsLost      prometheus.Counter
	ParseErrors      prometheus.Counter
	QueueSize        prometheus.Gauge

	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsStopped *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	Streaming       prometheus.Gauge

	// Chunk scheduling metrics
	ChunksDispatched *prometheus.CounterVec
	ChunksCompleted  *prometheus.CounterVec
	ChunkDuration    prometheus.Histogram
	BufferedSamples  prometheus.Gauge
	StreamOffset     prometheus.Gauge

	// Inference metrics
	InferenceDuration *prometheus.HistogramVec
	InferenceFailures *prometheus.CounterVec

	// Transcript metrics
	SegmentsEmitted prometheus.Counter
	WordsEmitted    prometheus.Counter

	// Event delivery metrics
	EventsDropped prometheus.Counter
	Subscribers   prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// UDP packet metrics
		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "diarizer_packets_received_total",
			Help: "Total number of UDP packets received",
		}),
		PacketsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "diarizer_packets_processed_total",
			Help: "Total number of UDP packets successfully processed",
		}),
		PacketsLost: factory.NewCounter(prometheus.CounterOpts{
			Name: "diarizer_packets_lost_total",
			Help: "Total number of audio packets skipped as lost by the sequencer",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "diarizer_parse_errors_total",
			Help: "Total number of packet parsing errors",
		}),
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "diarizer_packet_queue_size",
			Help: "Current number of packets in processing queue",
		}),

		// Session metrics
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "diarizer_sessions_started_total",
			Help: "Total number of streaming sessions started",
		}),
		SessionsStopped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "diarizer_sessions_stopped_total",
			Help: "Total number of streaming sessions stopped, by reason",
		}, []string{"reason"}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "diarizer_session_duration_seconds",
			Help:    "Duration of streaming sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5 hours
		}),
		Streaming: factory.NewGauge(prometheus.GaugeOpts{
			Name: "diarizer_session_streaming",
			Help: "1 while a session is streaming, 0 when idle",
		}),

		// Chunk scheduling metrics
		ChunksDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "diarizer_chunks_dispatched_total",
			Help: "Total number of chunks handed to inference",
		}, []string{"kind"}),
		ChunksCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "diarizer_chunks_completed_total",
			Help: "Total number of chunks completed, by status",
		}, []string{"status"}),
		ChunkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "diarizer_chunk_duration_seconds",
			Help:    "Audio duration of dispatched chunks, overlap included",
			Buckets: prometheus.LinearBuckets(5, 5, 8), // 5s to 40s
		}),
		BufferedSamples: factory.NewGauge(prometheus.GaugeOpts{
			Name: "diarizer_buffered_samples",
			Help: "Samples currently buffered and not yet dispatched",
		}),
		StreamOffset: factory.NewGauge(prometheus.GaugeOpts{
			Name: "diarizer_stream_offset_seconds",
			Help: "Current stream time offset of the session",
		}),

		// Inference metrics
		InferenceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "diarizer_inference_duration_seconds",
			Help:    "Duration of collaborator calls per chunk",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}, []string{"component"}),
		InferenceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "diarizer_inference_failures_total",
			Help: "Total number of failed collaborator calls",
		}, []string{"component"}),

		// Transcript metrics
		SegmentsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "diarizer_segments_emitted_total",
			Help: "Total number of transcript segments emitted",
		}),
		WordsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "diarizer_words_emitted_total",
			Help: "Total number of aligned words merged into the transcript",
		}),

		// Event delivery metrics
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "diarizer_events_dropped_total",
			Help: "Total number of events dropped for slow subscribers",
		}),
		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "diarizer_event_subscribers",
			Help: "Current number of event subscribers",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "diarizer_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "diarizer_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "diarizer_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordPacketReceived increments the packets received counter
func (m *Metrics) RecordPacketReceived() {
	if m == nil {
		return
	}
	m.PacketsReceived.Inc()
}

// RecordPacketProcessed increments the packets processed counter
func (m *Metrics) RecordPacketProcessed() {
	if m == nil {
		return
	}
	m.PacketsProcessed.Inc()
}

// RecordPacketsLost adds sequencer-detected losses
func (m *Metrics) RecordPacketsLost(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PacketsLost.Add(float64(n))
}

// RecordParseError increments the parse errors counter
func (m *Metrics) RecordParseError() {
	if m == nil {
		return
	}
	m.ParseErrors.Inc()
}

// SetQueueSize sets the current queue size
func (m *Metrics) SetQueueSize(size int) {
	if m == nil {
		return
	}
	m.QueueSize.Set(float64(size))
}

// RecordSessionStarted counts a session start
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.Streaming.Set(1)
}

// RecordSessionStopped counts a session stop and records its duration
func (m *Metrics) RecordSessionStopped(reason string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SessionsStopped.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(durationSeconds)
	m.Streaming.Set(0)
}

// RecordChunkDispatched records a chunk handed to inference
func (m *Metrics) RecordChunkDispatched(final bool, durationSeconds float64) {
	if m == nil {
		return
	}
	kind := "full"
	if final {
		kind = "final"
	}
	m.ChunksDispatched.WithLabelValues(kind).Inc()
	m.ChunkDuration.Observe(durationSeconds)
}

// RecordChunkCompleted records a chunk outcome, "success" or "failure"
func (m *Metrics) RecordChunkCompleted(status string) {
	if m == nil {
		return
	}
	m.ChunksCompleted.WithLabelValues(status).Inc()
}

// SetSchedulerState publishes buffered samples and stream offset
func (m *Metrics) SetSchedulerState(buffered int, offsetSeconds float64) {
	if m == nil {
		return
	}
	m.BufferedSamples.Set(float64(buffered))
	m.StreamOffset.Set(offsetSeconds)
}

// RecordInference records one collaborator call
func (m *Metrics) RecordInference(component string, durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.InferenceDuration.WithLabelValues(component).Observe(durationSeconds)
	if err != nil {
		m.InferenceFailures.WithLabelValues(component).Inc()
	}
}

// RecordTranscriptUpdate counts merged words and emitted segments
func (m *Metrics) RecordTranscriptUpdate(words, segments int) {
	if m == nil {
		return
	}
	m.WordsEmitted.Add(float64(words))
	m.SegmentsEmitted.Add(float64(segments))
}

// RecordEventDropped counts an event not delivered to a slow subscriber
func (m *Metrics) RecordEventDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// SetSubscribers sets the current number of event subscribers
func (m *Metrics) SetSubscribers(count int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
