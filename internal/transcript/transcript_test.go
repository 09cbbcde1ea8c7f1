package transcript

import (
	"encoding/json"
	"strings"
	"testing"

	"whisperq/internal/tasks"
)

func sampleResult() *tasks.Result {
	return &tasks.Result{
		Language: "lv",
		Text:     "Labdien, kolēģi. Sākam sēdi.",
		Segments: []tasks.Segment{
			{Start: 0, End: 1.48, Text: "Labdien, kolēģi.", Speaker: "SPEAKER_00"},
			{Start: 62.5, End: 3725.042, Text: "Sākam sēdi."},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"srt", FormatSRT, false},
		{"VTT", FormatVTT, false},
		{" txt ", FormatText, false},
		{"json", FormatJSON, false},
		{"docx", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseFormat(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", tt.input, err)
		}
		if got != tt.want {
			t.Fatalf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRenderSRT(t *testing.T) {
	got, err := Render(FormatSRT, sampleResult())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	want := "1\n" +
		"00:00:00,000 --> 00:00:01,480\n" +
		"SPEAKER_00: Labdien, kolēģi.\n" +
		"\n" +
		"2\n" +
		"00:01:02,500 --> 01:02:05,042\n" +
		"Sākam sēdi.\n" +
		"\n"
	if got != want {
		t.Fatalf("SRT output mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderVTT(t *testing.T) {
	got, err := Render(FormatVTT, sampleResult())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(got, "WEBVTT\n\n") {
		t.Fatalf("missing WEBVTT header:\n%s", got)
	}
	if !strings.Contains(got, "00:00:00.000 --> 00:00:01.480\n") {
		t.Fatalf("missing dot-separated cue timing:\n%s", got)
	}
}

func TestRenderTextPrefersFullText(t *testing.T) {
	got, err := Render(FormatText, sampleResult())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "Labdien, kolēģi. Sākam sēdi.\n" {
		t.Fatalf("text output = %q", got)
	}
}

func TestRenderTextFallsBackToSegments(t *testing.T) {
	result := sampleResult()
	result.Text = ""

	got, err := Render(FormatText, result)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "SPEAKER_00: Labdien, kolēģi.\nSākam sēdi.\n"
	if got != want {
		t.Fatalf("text output = %q, want %q", got, want)
	}
}

func TestRenderJSONRoundTrips(t *testing.T) {
	got, err := Render(FormatJSON, sampleResult())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	var decoded tasks.Result
	if err := json.Unmarshal([]byte(got), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded.Segments) != 2 || decoded.Language != "lv" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestRenderNilResult(t *testing.T) {
	if _, err := Render(FormatSRT, nil); err == nil {
		t.Fatal("expected error for nil result")
	}
}
