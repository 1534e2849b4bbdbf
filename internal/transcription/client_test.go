package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"text":" hello world","chunks":[` +
		`{"text":" hello","timestamp":[0.0,0.5]},` +
		`{"text":" world","timestamp":[0.6,null]}]}`))
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)

	c, err := NewClient(Config{Endpoint: "http://localhost"})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, c.config.Timeout)
	assert.Equal(t, 10, c.config.MaxConcurrent)
}

func TestClientTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		if !assert.NoError(t, r.ParseMultipartForm(10<<20)) {
			return
		}
		assert.Equal(t, "en", r.FormValue("language"))
		assert.Equal(t, "16000", r.FormValue("sample_rate"))
		assert.Equal(t, "word", r.FormValue("return_timestamps"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		assert.Equal(t, int64(44+2*16000), header.Size)

		chunkResponse(w)
	}))
	defer server.Close()

	c, err := NewClient(Config{Endpoint: server.URL, APIKey: "key"})
	require.NoError(t, err)

	words, err := c.Transcribe(context.Background(), make([]float32, 16000), 16000, "en")
	require.NoError(t, err)
	require.Len(t, words, 2)

	assert.Equal(t, " hello", words[0].Text)
	assert.Equal(t, 0.5, words[0].End)
	// missing end falls back to chunk duration
	assert.Equal(t, 1.0, words[1].End)
	assert.Equal(t, 0.6, words[1].Start)

	stats := c.GetStats()
	assert.Equal(t, uint64(1), stats.SuccessRequests)
	assert.Equal(t, 0, stats.ActiveRequests)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		chunkResponse(w)
	}))
	defer server.Close()

	c, err := NewClient(Config{Endpoint: server.URL, MaxRetries: 3, RetryBackoff: time.Millisecond})
	require.NoError(t, err)

	words, err := c.Transcribe(context.Background(), make([]float32, 1600), 16000, "")
	require.NoError(t, err)
	assert.Len(t, words, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, uint64(2), c.GetStats().TotalRetries)
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad audio", http.StatusBadRequest)
	}))
	defer server.Close()

	c, err := NewClient(Config{Endpoint: server.URL, MaxRetries: 3, RetryBackoff: time.Millisecond})
	require.NoError(t, err)

	_, err = c.Transcribe(context.Background(), make([]float32, 1600), 16000, "")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, "bad audio", statusErr.Body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, uint64(1), c.GetStats().FailedRequests)
}

func TestClientRejectsEmptyChunk(t *testing.T) {
	c, err := NewClient(Config{Endpoint: "http://localhost"})
	require.NoError(t, err)

	_, err = c.Transcribe(context.Background(), nil, 16000, "")
	assert.Error(t, err)
}

func TestResponseWords(t *testing.T) {
	start, end := 1.0, 0.5
	resp := Response{Chunks: []ResponseChunk{{Text: "x", Timestamp: []*float64{&start, &end}}}}

	_, err := resp.Words(30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before it starts")

	resp = Response{Chunks: []ResponseChunk{{Text: "x", Timestamp: []*float64{nil, &end}}}}
	_, err = resp.Words(30)
	assert.Error(t, err)

	// an open end falls back to the chunk duration
	resp = Response{Chunks: []ResponseChunk{{Text: "x", Timestamp: []*float64{&start, nil}}}}
	words, err := resp.Words(30)
	require.NoError(t, err)
	assert.Equal(t, 30.0, words[0].End)
}

func TestClientFailsOnInvertedTimestamps(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"x","chunks":[{"text":"x","timestamp":[5.0,2.0]}]}`))
	}))
	defer server.Close()

	c, err := NewClient(Config{Endpoint: server.URL, MaxRetries: 3, RetryBackoff: time.Millisecond})
	require.NoError(t, err)

	words, err := c.Transcribe(context.Background(), make([]float32, 16000*6), 16000, "")
	require.Error(t, err)
	assert.Nil(t, words)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	stats := c.GetStats()
	assert.Equal(t, uint64(0), stats.SuccessRequests)
	assert.Equal(t, uint64(1), stats.FailedRequests)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"503", &StatusError{StatusCode: 503}, true},
		{"429", &StatusError{StatusCode: 429}, true},
		{"404", &StatusError{StatusCode: 404}, false},
		{"refused", errors.New("dial tcp: connection refused"), true},
		{"decode", errors.New("failed to parse response JSON"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

func TestOpenAIClientTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(10<<20)) {
			return
		}
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))
		assert.Equal(t, "de", r.FormValue("language"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"task":     "transcribe",
			"language": "german",
			"duration": 1.0,
			"text":     "guten tag",
			"words": []map[string]any{
				{"word": "guten", "start": 0.1, "end": 0.4},
				{"word": "tag", "start": 0.5, "end": 0.8},
			},
		})
	}))
	defer server.Close()

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1/"})
	require.NoError(t, err)

	words, err := c.Transcribe(context.Background(), make([]float32, 16000), 16000, "de")
	require.NoError(t, err)
	require.Len(t, words, 2)
	assert.Equal(t, "guten", words[0].Text)
	assert.Equal(t, 0.8, words[1].End)
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	assert.Error(t, err)
}
