package transcript

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"whisperq/internal/tasks"
)

// Format is a transcript output format.
type Format string

const (
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
	FormatText Format = "txt"
	FormatJSON Format = "json"
)

// Formats lists the supported output formats in display order.
func Formats() []Format {
	return []Format{FormatSRT, FormatVTT, FormatText, FormatJSON}
}

// ParseFormat validates a user-supplied format name.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case FormatSRT:
		return FormatSRT, nil
	case FormatVTT:
		return FormatVTT, nil
	case FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown transcript format %q (supported: srt, vtt, txt, json)", name)
}

// Render produces the transcript in the requested format.
func Render(format Format, result *tasks.Result) (string, error) {
	if result == nil {
		return "", fmt.Errorf("no transcript result")
	}
	switch format {
	case FormatSRT:
		return renderSRT(result), nil
	case FormatVTT:
		return renderVTT(result), nil
	case FormatText:
		return renderText(result), nil
	case FormatJSON:
		return renderJSON(result)
	}
	return "", fmt.Errorf("unknown transcript format %q", format)
}

func renderSRT(result *tasks.Result) string {
	var b strings.Builder
	for i, segment := range result.Segments {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", srtTime(segment.Start), srtTime(segment.End))
		b.WriteString(segmentLine(segment))
		b.WriteString("\n\n")
	}
	return b.String()
}

func renderVTT(result *tasks.Result) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, segment := range result.Segments {
		fmt.Fprintf(&b, "%s --> %s\n", vttTime(segment.Start), vttTime(segment.End))
		b.WriteString(segmentLine(segment))
		b.WriteString("\n\n")
	}
	return b.String()
}

func renderText(result *tasks.Result) string {
	if result.Text != "" {
		return strings.TrimRight(result.Text, "\n") + "\n"
	}
	var lines []string
	for _, segment := range result.Segments {
		lines = append(lines, segmentLine(segment))
	}
	return strings.Join(lines, "\n") + "\n"
}

func renderJSON(result *tasks.Result) (string, error) {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}
	return string(out) + "\n", nil
}

func segmentLine(segment tasks.Segment) string {
	text := strings.TrimSpace(segment.Text)
	if segment.Speaker != "" {
		return segment.Speaker + ": " + text
	}
	return text
}

// srtTime renders seconds as HH:MM:SS,mmm.
func srtTime(seconds float64) string {
	h, m, s, ms := splitTime(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// vttTime renders seconds as HH:MM:SS.mmm.
func vttTime(seconds float64) string {
	h, m, s, ms := splitTime(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func splitTime(seconds float64) (h, m, s, ms int) {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	total := int(math.Round(seconds * 1000))
	ms = total % 1000
	total /= 1000
	s = total % 60
	total /= 60
	m = total % 60
	h = total / 60
	return h, m, s, ms
}
