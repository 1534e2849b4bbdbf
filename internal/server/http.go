package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/stream-diarizer/internal/config"
	"github.com/skypro1111/stream-diarizer/internal/metrics"
	"github.com/skypro1111/stream-diarizer/internal/protocol"
	"github.com/skypro1111/stream-diarizer/internal/stream"
	"github.com/skypro1111/stream-diarizer/internal/transcript"
)

// ModelStatus reports whether the inference collaborators are ready
type ModelStatus interface {
	Loaded() bool
}

// HTTPOptions wires the HTTP server to the rest of the service. Only Config
// and Session are required.
type HTTPOptions struct {
	Config      *config.HTTPConfig
	EventBuffer int
	Session     Controller
	Events      *stream.Broadcaster
	UDP         *UDPServer
	Models      ModelStatus
	Gatherer    prometheus.Gatherer
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// HTTPServer provides the session API, event streams and monitoring endpoints
type HTTPServer struct {
	server   *http.Server
	engine   *gin.Engine
	opts     HTTPOptions
	logger   *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	startTime time.Time
}

type languageRequest struct {
	Language string `json:"language"`
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(opts HTTPOptions) *HTTPServer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		opts:      opts,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 16 * 1024,
		},
	}

	h.engine = gin.New()
	h.engine.Use(gin.Recovery(), h.requestLogger(), h.withMetrics())
	h.setupRoutes()

	h.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", opts.Config.Address, opts.Config.Port),
		Handler:           h.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		// no write timeout: /events and /ws stay open
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes() {
	h.engine.GET("/health", h.handleHealth)
	h.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.opts.Gatherer, promhttp.HandlerOpts{})))

	api := h.engine.Group("/")
	if h.opts.Config.AuthSecret != "" {
		api.Use(bearerAuth([]byte(h.opts.Config.AuthSecret)))
	}

	api.GET("/session", h.handleSession)
	api.POST("/session/start", h.handleStart)
	api.POST("/session/feed", h.handleFeed)
	api.POST("/session/stop", h.handleStop)
	api.GET("/transcript", h.handleTranscript)
	api.GET("/events", h.handleEvents)
	api.GET("/ws", h.handleWebSocket)
}

// Handler returns the HTTP handler, for embedding and tests
func (h *HTTPServer) Handler() http.Handler {
	return h.engine
}

// requestLogger tags each request with an id and logs it on completion
func (h *HTTPServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)

		c.Next()

		h.logger.Debug("HTTP request",
			slog.String("request_id", requestID),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}

// withMetrics records request counts, durations and errors per route
func (h *HTTPServer) withMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := c.Writer.Status()

		h.metrics.RecordHTTPRequest(c.Request.Method, endpoint, strconv.Itoa(status), time.Since(startTime).Seconds())

		if status >= 400 {
			errorType := "client_error"
			if status >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(c.Request.Method, endpoint, errorType)
		}
	}
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
		slog.Bool("auth", h.opts.Config.AuthSecret != ""),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(c *gin.Context) {
	info := h.opts.Session.Info()

	modelsStatus := "unknown"
	if h.opts.Models != nil {
		modelsStatus = stream.StatusLoading
		if h.opts.Models.Loaded() {
			modelsStatus = stream.StatusReady
		}
	}

	components := gin.H{
		"session": gin.H{
			"state":            info.State,
			"busy":             info.Busy,
			"buffered_samples": info.BufferedSamples,
		},
		"models": gin.H{"status": modelsStatus},
	}
	if h.opts.UDP != nil {
		stats := h.opts.UDP.GetStatistics()
		components["udp_server"] = gin.H{
			"packets_received":  stats.PacketsReceived,
			"packets_processed": stats.PacketsProcessed,
			"parse_errors":      stats.ParseErrors,
			"queue_size":        stats.QueueSize,
		}
	}
	if h.opts.Events != nil {
		components["events"] = gin.H{"subscribers": h.opts.Events.SubscriberCount()}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"uptime":     time.Since(h.startTime).String(),
		"service":    gin.H{"name": "stream-diarizer", "version": "1.0.0"},
		"components": components,
	})
}

// handleSession implements GET /session
func (h *HTTPServer) handleSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.opts.Session.Info())
}

// handleStart implements POST /session/start
func (h *HTTPServer) handleStart(c *gin.Context) {
	var req languageRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	if err := h.opts.Session.Start(c.Request.Context(), req.Language); err != nil {
		h.writeSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.opts.Session.Info())
}

// handleFeed implements POST /session/feed. The body is raw audio in the
// encoding named by ?encoding= (float32 by default).
func (h *HTTPServer) handleFeed(c *gin.Context) {
	encoding, err := parseEncoding(c.Query("encoding"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, int64(h.opts.Config.MaxBodyMB)<<20)
	data, err := io.ReadAll(body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("failed to read body: %v", err)})
		return
	}

	samples, err := protocol.DecodeSamples(data, encoding)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.opts.Session.Feed(c.Request.Context(), samples, c.Query("language")); err != nil {
		h.writeSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accepted_samples": len(samples),
		"session":          h.opts.Session.Info(),
	})
}

// handleStop implements POST /session/stop. It returns once the final chunk
// has been transcribed.
func (h *HTTPServer) handleStop(c *gin.Context) {
	var req languageRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	if err := h.opts.Session.Stop(c.Request.Context(), req.Language); err != nil {
		h.writeSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session":  h.opts.Session.Info(),
		"segments": transcript.Coalesce(h.opts.Session.Transcript()),
	})
}

// handleTranscript implements GET /transcript?format=
func (h *HTTPServer) handleTranscript(c *gin.Context) {
	format, err := transcript.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", format.ContentType())
	c.Status(http.StatusOK)
	if err := transcript.Render(c.Writer, h.opts.Session.Transcript(), format); err != nil {
		h.logger.Error("Failed to render transcript",
			slog.String("format", string(format)),
			slog.String("error", err.Error()),
		)
	}
}

// handleEvents implements GET /events as a Server-Sent Events stream
func (h *HTTPServer) handleEvents(c *gin.Context) {
	if h.opts.Events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event streaming disabled"})
		return
	}

	events, unsubscribe := h.opts.Events.Subscribe(h.opts.EventBuffer)
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	// an initial snapshot lets clients render state without waiting
	c.SSEvent("session", h.opts.Session.Info())
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case e, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(e.Type), e)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func (h *HTTPServer) bindOptionalJSON(c *gin.Context, out any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(out); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func (h *HTTPServer) writeSessionError(c *gin.Context, err error) {
	status := sessionErrorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Session command failed",
			slog.String("path", c.Request.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func sessionErrorStatus(err error) int {
	switch {
	case errors.Is(err, stream.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, stream.ErrSessionClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func parseEncoding(name string) (uint8, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "float32", "f32":
		return protocol.EncodingFloat32, nil
	case "pcm16", "s16le", "int16":
		return protocol.EncodingPCM16, nil
	default:
		return 0, fmt.Errorf("unsupported encoding %q (want float32 or pcm16)", name)
	}
}
