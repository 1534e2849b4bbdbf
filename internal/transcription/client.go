package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/skypro1111/stream-diarizer/internal/audio"
	"github.com/skypro1111/stream-diarizer/internal/transcript"
)

// Client provides HTTP client functionality for transcription API requests
type Client struct {
	config     Config
	httpClient *http.Client
	sem        *semaphore.Weighted // Rate limiting semaphore

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	activeRequests  int
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains transcription client configuration
type Config struct {
	Endpoint      string
	APIKey        string
	Model         string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
	RetryBackoff  time.Duration // Base delay, doubled per attempt
}

// Response is the JSON body returned by the transcription endpoint. Each
// chunk carries [start, end] chunk-local seconds; end may be null for the
// last word of a window.
type Response struct {
	Text   string          `json:"text"`
	Chunks []ResponseChunk `json:"chunks"`
}

// ResponseChunk is one word of a Response
type ResponseChunk struct {
	Text      string     `json:"text"`
	Timestamp []*float64 `json:"timestamp"`
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

// NewClient creates a new transcription HTTP client
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		sem:        semaphore.NewWeighted(int64(config.MaxConcurrent)),
	}, nil
}

// Transcribe uploads one chunk as WAV and returns its words
func (c *Client) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) ([]transcript.Word, error) {
	wav, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chunk: %w", err)
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	c.mu.Lock()
	c.totalRequests++
	c.activeRequests++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.activeRequests--
		c.mu.Unlock()
	}()

	startTime := time.Now()
	requestID := uuid.NewString()
	duration := float64(len(samples)) / float64(sampleRate)

	var lastErr error

	// Retry loop with exponential backoff
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * c.config.RetryBackoff
			if backoffTime > 30*time.Second {
				backoffTime = 30 * time.Second
			}

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				c.incrementFailedRequests()
				return nil, ctx.Err()
			}
		}

		response, err := c.doRequest(ctx, wav, requestID, sampleRate, language)
		if err == nil {
			words, err := response.Words(duration)
			if err != nil {
				// malformed output is not retried
				c.incrementFailedRequests()
				return nil, fmt.Errorf("invalid transcription response: %w", err)
			}
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			return words, nil
		}

		lastErr = err

		if !isRetryableError(err) {
			break
		}
	}

	c.incrementFailedRequests()
	return nil, fmt.Errorf("transcription failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// doRequest performs a single HTTP request to the transcription API
func (c *Client) doRequest(ctx context.Context, wav []byte, requestID string, sampleRate int, language string) (*Response, error) {
	body, contentType, err := c.createMultipartRequest(wav, requestID, sampleRate, language)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "Stream-Diarizer/1.0")
	httpReq.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var response Response
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	return &response, nil
}

// createMultipartRequest creates a multipart/form-data request body
func (c *Client) createMultipartRequest(wav []byte, requestID string, sampleRate int, language string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", requestID+".wav")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(wav); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"request_id":        requestID,
		"sample_rate":       strconv.Itoa(sampleRate),
		"return_timestamps": "word",
	}
	if language != "" {
		fields["language"] = language
	}
	if c.config.Model != "" {
		fields["model"] = c.config.Model
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// Words converts the response into chunk-local words. A missing end time is
// taken as the chunk duration; an end before its start is an error.
func (r *Response) Words(duration float64) ([]transcript.Word, error) {
	words := make([]transcript.Word, 0, len(r.Chunks))
	for i, ch := range r.Chunks {
		if len(ch.Timestamp) != 2 || ch.Timestamp[0] == nil {
			return nil, fmt.Errorf("word %d (%q) has no start timestamp", i, ch.Text)
		}
		start := *ch.Timestamp[0]
		end := max(duration, start)
		if ch.Timestamp[1] != nil {
			end = *ch.Timestamp[1]
			if end < start {
				return nil, fmt.Errorf("word %d (%q) ends at %.3fs before it starts at %.3fs", i, ch.Text, end, start)
			}
		}
		words = append(words, transcript.Word{Text: ch.Text, Start: start, End: end})
	}
	return words, nil
}

// isRetryableError reports whether a failed attempt may succeed on retry:
// timeouts, network errors, 5xx and 429 responses.
func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "refused")
}

// Statistics methods
func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  c.activeRequests,
	}
}

// Close waits for all active requests to complete
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	if err := c.sem.Acquire(ctx, int64(c.config.MaxConcurrent)); err != nil {
		return fmt.Errorf("timed out waiting for active requests: %w", err)
	}
	c.sem.Release(int64(c.config.MaxConcurrent))
	return nil
}
