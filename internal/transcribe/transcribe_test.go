package transcribe

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidModel(t *testing.T) {
	tests := []struct {
		model string
		want  bool
	}{
		{"tiny", true},
		{"base", true},
		{"small", true},
		{"medium", true},
		{"large", true},
		{"", false},
		{"Medium", false},
		{"enormous", false},
	}
	for _, tc := range tests {
		if got := ValidModel(tc.model); got != tc.want {
			t.Errorf("ValidModel(%q) = %v, want %v", tc.model, got, tc.want)
		}
	}
}

func TestTranscriptPath(t *testing.T) {
	tests := []struct {
		video string
		want  string
	}{
		{"/videos/show.mp4", "/videos/show_transcript.txt"},
		{"lecture.mp4", "lecture_transcript.txt"},
		{"archive.tar.mp4", "archive.tar_transcript.txt"},
		{"noext", "noext_transcript.txt"},
	}
	for _, tc := range tests {
		if got := TranscriptPath(tc.video); got != tc.want {
			t.Errorf("TranscriptPath(%q) = %q, want %q", tc.video, got, tc.want)
		}
	}
}

func TestGenerateRejectsUnknownModel(t *testing.T) {
	err := Generate(context.Background(), "whatever.mp4", "enormous", nil)
	if err == nil || !strings.Contains(err.Error(), "unsupported model") {
		t.Fatalf("expected unsupported model error, got %v", err)
	}
}

func TestGenerateRequiresVideoFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.mp4")
	err := Generate(context.Background(), missing, "tiny", nil)
	if err == nil || !strings.Contains(err.Error(), "video file not found") {
		t.Fatalf("expected missing video error, got %v", err)
	}
}
