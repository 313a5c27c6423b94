package locate

import (
	"errors"
	"testing"
)

func TestManifest(t *testing.T) {
	tests := []struct {
		name     string
		segment  string
		expected string
	}{
		{
			name:     "numbered segment maps to index playlist",
			segment:  "https://cdn.example.com/v/720/seg007.ts",
			expected: "https://cdn.example.com/v/720/index.m3u8",
		},
		{
			name:     "seg-dash convention truncates to base path",
			segment:  "https://example.com/video/seg-1-v1-a1.ts",
			expected: "https://example.com/video",
		},
		{
			name:     "playlist URL passes through",
			segment:  "https://cdn.example.com/v/720/index.m3u8",
			expected: "https://cdn.example.com/v/720/index.m3u8",
		},
		{
			name:     "bitrate index convention",
			segment:  "https://cdn.example.com/hls/index_720_00042.ts",
			expected: "https://cdn.example.com/hls/index_720.m3u8",
		},
		{
			name:     "prefixed segment maps to playlist",
			segment:  "https://cdn.example.com/live/segment_0001.ts",
			expected: "https://cdn.example.com/live/playlist.m3u8",
		},
		{
			name:     "chunk prefix with fmp4 extension",
			segment:  "https://cdn.example.com/live/chunk-3.m4s",
			expected: "https://cdn.example.com/live/playlist.m3u8",
		},
		{
			name:     "signed URL keeps its query",
			segment:  "https://cdn.example.com/v/720/seg007.ts?token=abc&exp=99",
			expected: "https://cdn.example.com/v/720/index.m3u8?token=abc&exp=99",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Manifest(tt.segment)
			if err != nil {
				t.Fatalf("Manifest(%q) failed: %v", tt.segment, err)
			}
			if got != tt.expected {
				t.Errorf("Manifest(%q) = %q, want %q", tt.segment, got, tt.expected)
			}
		})
	}
}

func TestManifestUnrecognized(t *testing.T) {
	unrecognized := []string{
		"https://cdn.example.com/v/720/video.bin",
		"https://cdn.example.com/download/file.zip",
		"https://cdn.example.com/v/720/part7.ts", // unknown prefix
	}
	for _, segment := range unrecognized {
		_, err := Manifest(segment)
		if err == nil {
			t.Errorf("Manifest(%q) expected error, got none", segment)
			continue
		}
		var patternErr *UnrecognizedURLPatternError
		if !errors.As(err, &patternErr) {
			t.Errorf("Manifest(%q) error type = %T, want *UnrecognizedURLPatternError", segment, err)
			continue
		}
		if patternErr.URL != segment {
			t.Errorf("error URL = %q, want %q", patternErr.URL, segment)
		}
	}
}
