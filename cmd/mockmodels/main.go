// Command mockmodels serves deterministic transcription and speaker
// segmentation responses for running the service without real models.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/skypro1111/stream-diarizer/internal/audio"
)

type mockConfig struct {
	wordsPerSecond  float64
	speakerTurn     time.Duration
	framesPerSecond int
	speakers        int
	latency         time.Duration
}

type wordChunk struct {
	Text      string     `json:"text"`
	Timestamp []*float64 `json:"timestamp"`
}

func main() {
	cfg := mockConfig{}
	var addr string

	rootCmd := &cobra.Command{
		Use:   "mockmodels",
		Short: "Deterministic transcription and segmentation endpoints for local runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.wordsPerSecond <= 0 || cfg.framesPerSecond <= 0 || cfg.speakers < 1 || cfg.speakerTurn <= 0 {
				return fmt.Errorf("words-per-second, frames-per-second, speakers and speaker-turn must be positive")
			}

			logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
			gin.SetMode(gin.ReleaseMode)

			r := gin.New()
			r.Use(gin.Recovery())
			r.POST("/transcribe", cfg.handleTranscribe(logger))
			r.POST("/segment", cfg.handleSegment(logger))
			r.GET("/config", cfg.handleConfig)

			logger.Info("Mock model server starting",
				slog.String("address", addr),
				slog.String("transcribe", "POST /transcribe"),
				slog.String("segment", "POST /segment"),
				slog.String("config", "GET /config"),
			)
			return http.ListenAndServe(addr, r)
		},
	}

	rootCmd.Flags().StringVar(&addr, "addr", ":8000", "Listen address")
	rootCmd.Flags().Float64Var(&cfg.wordsPerSecond, "words-per-second", 2, "Words emitted per second of audio")
	rootCmd.Flags().DurationVar(&cfg.speakerTurn, "speaker-turn", 7*time.Second, "Time each speaker holds the floor")
	rootCmd.Flags().IntVar(&cfg.framesPerSecond, "frames-per-second", 50, "Segmentation frame rate")
	rootCmd.Flags().IntVar(&cfg.speakers, "speakers", 2, "Number of speaker classes")
	rootCmd.Flags().DurationVar(&cfg.latency, "latency", 200*time.Millisecond, "Simulated inference time")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// readChunk decodes the uploaded WAV file of a multipart request
func readChunk(c *gin.Context) ([]float32, int, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, 0, fmt.Errorf("missing file: %w", err)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, 0, err
	}
	return audio.DecodeWAV(data)
}

func (m mockConfig) handleTranscribe(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		samples, rate, err := readChunk(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		time.Sleep(m.latency)

		duration := float64(len(samples)) / float64(rate)
		step := 1 / m.wordsPerSecond
		count := int(duration * m.wordsPerSecond)

		chunks := make([]wordChunk, 0, count)
		text := ""
		for i := 0; i < count; i++ {
			start := float64(i) * step
			end := start + step*0.8
			word := fmt.Sprintf("w%d", i)
			stamp := []*float64{&start, &end}
			if i == count-1 {
				// open-ended last word
				stamp[1] = nil
			}
			chunks = append(chunks, wordChunk{Text: word, Timestamp: stamp})
			if text != "" {
				text += " "
			}
			text += word
		}

		logger.Info("Transcribed chunk",
			slog.String("request_id", c.PostForm("request_id")),
			slog.String("language", c.PostForm("language")),
			slog.Float64("duration", duration),
			slog.Int("words", count),
		)
		c.JSON(http.StatusOK, gin.H{"text": text, "chunks": chunks})
	}
}

func (m mockConfig) handleSegment(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		samples, rate, err := readChunk(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		time.Sleep(m.latency)

		duration := float64(len(samples)) / float64(rate)
		frames := int(math.Ceil(duration * float64(m.framesPerSecond)))
		if frames < 1 {
			frames = 1
		}

		logits := make([][]float32, frames)
		for f := range logits {
			t := float64(f) / float64(m.framesPerSecond)
			speaker := int(t/m.speakerTurn.Seconds()) % m.speakers
			row := make([]float32, m.speakers)
			row[speaker] = 4
			logits[f] = row
		}

		logger.Info("Segmented chunk",
			slog.Float64("duration", duration),
			slog.Int("frames", frames),
		)
		c.JSON(http.StatusOK, gin.H{"logits": logits})
	}
}

func (m mockConfig) handleConfig(c *gin.Context) {
	id2label := make(map[string]string, m.speakers)
	for i := 0; i < m.speakers; i++ {
		id2label[strconv.Itoa(i)] = fmt.Sprintf("SPEAKER_%02d", i)
	}
	c.JSON(http.StatusOK, gin.H{"id2label": id2label})
}
