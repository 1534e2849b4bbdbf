package diarization

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/skypro1111/stream-diarizer/internal/audio"
	"github.com/skypro1111/stream-diarizer/internal/transcript"
)

// Config contains diarization client configuration
type Config struct {
	Endpoint       string // Segmentation endpoint returning logits
	ConfigEndpoint string // Model config endpoint carrying id2label
	APIKey         string
	Timeout        time.Duration

	// Labels, when set, replaces the table fetched from ConfigEndpoint
	Labels map[int]string
}

// Features is the model input prepared from one chunk
type Features struct {
	SampleRate int
	NumSamples int
	WAV        []byte
}

// Client talks to the speaker segmentation model over HTTP
type Client struct {
	config     Config
	httpClient *http.Client

	labels map[int]string

	// Statistics
	totalRequests  uint64
	failedRequests uint64
	lastLatency    time.Duration

	mu sync.RWMutex
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests  uint64        `json:"total_requests"`
	FailedRequests uint64        `json:"failed_requests"`
	LastLatency    time.Duration `json:"last_latency"`
	LabelsLoaded   bool          `json:"labels_loaded"`
}

type logitsResponse struct {
	Logits Logits `json:"logits"`
}

type modelConfigResponse struct {
	ID2Label map[string]string `json:"id2label"`
}

// NewClient creates a new diarization HTTP client
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.ConfigEndpoint == "" && len(config.Labels) == 0 {
		return nil, fmt.Errorf("either config endpoint or static labels must be set")
	}

	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	c := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
	if len(config.Labels) > 0 {
		c.labels = copyLabels(config.Labels)
	}
	return c, nil
}

// ExtractFeatures prepares a chunk for the segmentation model
func ExtractFeatures(samples []float32, sampleRate int) (Features, error) {
	wav, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return Features{}, fmt.Errorf("failed to encode features: %w", err)
	}
	return Features{
		SampleRate: sampleRate,
		NumSamples: len(samples),
		WAV:        wav,
	}, nil
}

// Classify runs the segmentation model and returns its per-frame logits
func (c *Client) Classify(ctx context.Context, features Features) (Logits, error) {
	c.mu.Lock()
	c.totalRequests++
	c.mu.Unlock()

	start := time.Now()
	logits, err := c.classify(ctx, features)

	c.mu.Lock()
	c.lastLatency = time.Since(start)
	if err != nil {
		c.failedRequests++
	}
	c.mu.Unlock()

	return logits, err
}

func (c *Client) classify(ctx context.Context, features Features) (Logits, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fileWriter, err := writer.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(features.WAV); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.WriteField("sample_rate", strconv.Itoa(features.SampleRate)); err != nil {
		return nil, fmt.Errorf("failed to write field sample_rate: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	var out logitsResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("segmentation request failed: %w", err)
	}
	if len(out.Logits) == 0 {
		return nil, fmt.Errorf("segmentation response has no logits")
	}
	return out.Logits, nil
}

// Labels returns the id to label table, fetching it from the model config
// endpoint on first use. A failed fetch is retried on the next call.
func (c *Client) Labels(ctx context.Context) (map[int]string, error) {
	c.mu.RLock()
	labels := c.labels
	c.mu.RUnlock()
	if labels != nil {
		return labels, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.ConfigEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	var out modelConfigResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch model config: %w", err)
	}
	if len(out.ID2Label) == 0 {
		return nil, fmt.Errorf("model config has no id2label table")
	}

	labels = make(map[int]string, len(out.ID2Label))
	for key, label := range out.ID2Label {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("invalid class id %q in id2label: %w", key, err)
		}
		labels[id] = label
	}

	c.mu.Lock()
	if c.labels == nil {
		c.labels = labels
	}
	labels = c.labels
	c.mu.Unlock()

	return labels, nil
}

// Diarize runs the full segmentation pipeline on one chunk and returns
// labeled, chunk-local speaker intervals
func (c *Client) Diarize(ctx context.Context, samples []float32, sampleRate int) ([]transcript.SpeakerInterval, error) {
	labels, err := c.Labels(ctx)
	if err != nil {
		return nil, err
	}

	features, err := ExtractFeatures(samples, sampleRate)
	if err != nil {
		return nil, err
	}

	logits, err := c.Classify(ctx, features)
	if err != nil {
		return nil, err
	}

	intervals, err := PostProcess(logits, features.NumSamples, features.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to post-process logits: %w", err)
	}

	return Label(intervals, labels)
}

func (c *Client) authorize(req *http.Request) {
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		const maxErr = 4096
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErr))
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return nil
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ClientStats{
		TotalRequests:  c.totalRequests,
		FailedRequests: c.failedRequests,
		LastLatency:    c.lastLatency,
		LabelsLoaded:   c.labels != nil,
	}
}

func copyLabels(in map[int]string) map[int]string {
	out := make(map[int]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
