package audio

import (
	"testing"
	"time"
)

func TestDefaultChunkingGeometry(t *testing.T) {
	cfg := DefaultChunkingConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}

	if cfg.ChunkSamples() != 480000 {
		t.Errorf("Expected 480000 chunk samples, got %d", cfg.ChunkSamples())
	}
	if cfg.OverlapSamples() != 80000 {
		t.Errorf("Expected 80000 overlap samples, got %d", cfg.OverlapSamples())
	}
	if cfg.WindowSamples() != 560000 {
		t.Errorf("Expected 560000 window samples, got %d", cfg.WindowSamples())
	}
}

func TestChunkingConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ChunkingConfig
		wantErr bool
	}{
		{"valid", ChunkingConfig{16000, 10 * time.Second, time.Second}, false},
		{"zero overlap", ChunkingConfig{16000, 10 * time.Second, 0}, false},
		{"zero rate", ChunkingConfig{0, 10 * time.Second, time.Second}, true},
		{"zero chunk", ChunkingConfig{16000, 0, 0}, true},
		{"negative overlap", ChunkingConfig{16000, time.Second, -time.Second}, true},
		{"overlap equals chunk", ChunkingConfig{16000, time.Second, time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewChunk(t *testing.T) {
	samples := make([]float32, 560000)
	chunk := NewChunk(2, samples, 16000, 60, 480000, false)

	if chunk.ID == "" {
		t.Error("Expected chunk ID to be assigned")
	}
	if chunk.Duration() != 35 {
		t.Errorf("Expected duration 35s, got %v", chunk.Duration())
	}
	if chunk.StrideSeconds() != 30 {
		t.Errorf("Expected stride 30s, got %v", chunk.StrideSeconds())
	}

	info := chunk.Info()
	if info.Index != 2 || info.Offset != 60 || info.Final {
		t.Errorf("Unexpected info: %+v", info)
	}

	other := NewChunk(3, samples, 16000, 90, 480000, false)
	if other.ID == chunk.ID {
		t.Error("Chunk IDs should be unique")
	}
}

func TestChunkZeroRate(t *testing.T) {
	chunk := &Chunk{Samples: make([]float32, 10)}
	if chunk.Duration() != 0 || chunk.StrideSeconds() != 0 {
		t.Error("Expected zero durations without a sample rate")
	}
}
