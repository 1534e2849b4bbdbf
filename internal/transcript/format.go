package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"
)

// Format selects a transcript rendering
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatSRT      Format = "srt"
	FormatVTT      Format = "vtt"
	FormatJSON     Format = "json"
)

// ParseFormat validates a format name; empty selects text
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatMarkdown, FormatSRT, FormatVTT, FormatJSON:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported transcript format: %q", name)
	}
}

// ContentType returns the MIME type of a rendering
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatVTT:
		return "text/vtt; charset=utf-8"
	case FormatSRT:
		return "application/x-subrip; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Render writes segments in the given format. Continuation segments are
// coalesced first.
func Render(w io.Writer, segments []Segment, format Format) error {
	blocks := Coalesce(segments)

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Segments []Segment `json:"segments"`
		}{Segments: blocks}); err != nil {
			return fmt.Errorf("failed to encode transcript: %w", err)
		}
		return nil

	case FormatText, "":
		for _, s := range blocks {
			speaker := ""
			if s.Speaker != NoSpeaker {
				speaker = fmt.Sprintf(" [%s]", s.Speaker)
			}
			if _, err := fmt.Fprintf(w, "[%s --> %s]%s %s\n",
				formatTimestamp(s.Start, '.'), formatTimestamp(s.End, '.'), speaker, s.Text); err != nil {
				return err
			}
		}
		return nil

	case FormatMarkdown:
		for i, s := range blocks {
			if i > 0 {
				if _, err := io.WriteString(w, "\n"); err != nil {
					return err
				}
			}
			var err error
			if s.Speaker != NoSpeaker {
				_, err = fmt.Fprintf(w, "**%s** _(%s)_: %s\n", s.Speaker, formatTimestamp(s.Start, '.'), s.Text)
			} else {
				_, err = fmt.Fprintf(w, "_(%s)_ %s\n", formatTimestamp(s.Start, '.'), s.Text)
			}
			if err != nil {
				return err
			}
		}
		return nil

	case FormatSRT:
		for i, s := range blocks {
			if _, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
				i+1, formatTimestamp(s.Start, ','), formatTimestamp(s.End, ','), cueText(s)); err != nil {
				return err
			}
		}
		return nil

	case FormatVTT:
		if _, err := io.WriteString(w, "WEBVTT\n\n"); err != nil {
			return err
		}
		for _, s := range blocks {
			if _, err := fmt.Fprintf(w, "%s --> %s\n%s\n\n",
				formatTimestamp(s.Start, '.'), formatTimestamp(s.End, '.'), cueText(s)); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unsupported transcript format: %q", format)
	}
}

func cueText(s Segment) string {
	if s.Speaker == NoSpeaker {
		return s.Text
	}
	return s.Speaker + ": " + s.Text
}

// formatTimestamp formats seconds as HH:MM:SS<sep>mmm
func formatTimestamp(seconds float64, sep byte) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	d := time.Duration(math.Round(seconds*1000)) * time.Millisecond
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms)
}
