package hls

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/restitch/restitch/internal/locate"
	"github.com/restitch/restitch/internal/utils"
)

func captureJob(captureText string) *utils.RestitchJob {
	return &utils.RestitchJob{
		JobType:  "capture",
		Capture:  captureText,
		Metadata: make(map[string]any),
	}
}

func TestValidateJob(t *testing.T) {
	d := &Downloader{}
	tests := []struct {
		name    string
		job     *utils.RestitchJob
		wantErr bool
	}{
		{
			name: "curl capture",
			job:  captureJob("curl 'https://cdn.example.com/media/seg-1-v1-a1.ts' -H 'Authorization: Bearer tok'"),
		},
		{
			name:    "empty capture",
			job:     captureJob(""),
			wantErr: true,
		},
		{
			name:    "capture with no url",
			job:     captureJob("curl -H 'Accept: */*'"),
			wantErr: true,
		},
		{
			name: "manifest url",
			job:  &utils.RestitchJob{JobType: "manifest", URL: "https://cdn.example.com/master.m3u8", Metadata: make(map[string]any)},
		},
		{
			name:    "manifest with bad scheme",
			job:     &utils.RestitchJob{JobType: "manifest", URL: "ftp://cdn.example.com/master.m3u8", Metadata: make(map[string]any)},
			wantErr: true,
		},
		{
			name:    "unknown job type",
			job:     &utils.RestitchJob{JobType: "torrent", URL: "https://example.com", Metadata: make(map[string]any)},
			wantErr: true,
		},
		{
			name: "bad transcription model",
			job: &utils.RestitchJob{JobType: "manifest", URL: "https://cdn.example.com/master.m3u8",
				Metadata: map[string]any{"transcribeModel": "enormous"}},
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := d.ValidateJob(tc.job)
			if tc.wantErr && err == nil {
				t.Error("expected an error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestBuildJobLocatesManifest(t *testing.T) {
	d := &Downloader{}
	job := captureJob("curl 'https://cdn.example.com/media/seg-1-v1-a1.ts?token=abc' -H 'Authorization: Bearer tok'")
	if err := d.ValidateJob(job); err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	if err := d.BuildJob(job); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if job.URL != "https://cdn.example.com/media?token=abc" {
		t.Errorf("manifest URL is %s", job.URL)
	}
	if sample, _ := job.Metadata["sampleSegmentURL"].(string); sample != "https://cdn.example.com/media/seg-1-v1-a1.ts?token=abc" {
		t.Errorf("sample segment URL is %q", sample)
	}
	if job.HTTPClientConfig.Headers["Authorization"] != "Bearer tok" {
		t.Error("captured Authorization header not carried into the client config")
	}
	tempDir, _ := job.Metadata["tempDir"].(string)
	if !strings.Contains(tempDir, utils.TempDirName) {
		t.Errorf("temp dir %q not under %s", tempDir, utils.TempDirName)
	}
}

func TestBuildJobManifestCaptureHasNoSample(t *testing.T) {
	d := &Downloader{}
	job := captureJob("curl 'https://cdn.example.com/media/playlist.m3u8'")
	if err := d.ValidateJob(job); err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	if err := d.BuildJob(job); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if job.URL != "https://cdn.example.com/media/playlist.m3u8" {
		t.Errorf("manifest URL is %s", job.URL)
	}
	if _, present := job.Metadata["sampleSegmentURL"]; present {
		t.Error("capturing the manifest itself must not record a sample segment")
	}
}

func TestBuildJobUnrecognizedPattern(t *testing.T) {
	d := &Downloader{}
	job := captureJob("curl 'https://cdn.example.com/media/video.bin'")
	if err := d.ValidateJob(job); err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	err := d.BuildJob(job)
	var unrecognized *locate.UnrecognizedURLPatternError
	if !errors.As(err, &unrecognized) {
		t.Fatalf("expected UnrecognizedURLPatternError, got %v", err)
	}
}

func TestBuildJobDefaultOutputPath(t *testing.T) {
	d := &Downloader{}
	job := &utils.RestitchJob{JobType: "manifest", URL: "https://cdn.example.com/master.m3u8", Metadata: make(map[string]any)}
	if err := d.BuildJob(job); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if matched := regexp.MustCompile(`^video_\d{8}_\d{6}\.mp4$`).MatchString(job.OutputPath); !matched {
		t.Errorf("default output path %q", job.OutputPath)
	}
}

func TestBuildJobRenewsExistingOutput(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "video.mp4")
	if err := os.WriteFile(outputPath, []byte("existing"), 0o644); err != nil {
		t.Fatalf("error writing fixture: %v", err)
	}
	d := &Downloader{}
	job := &utils.RestitchJob{JobType: "manifest", URL: "https://cdn.example.com/master.m3u8",
		OutputPath: outputPath, Metadata: make(map[string]any)}
	if err := d.BuildJob(job); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if job.OutputPath != filepath.Join(dir, "video-(1).mp4") {
		t.Errorf("renewed output path is %s", job.OutputPath)
	}
}

func TestBuildJobExplicitHeadersWin(t *testing.T) {
	d := &Downloader{}
	job := captureJob("curl 'https://cdn.example.com/media/seg-1-v1-a1.ts' -H 'Authorization: Bearer captured' -H 'Referer: https://watch.example.com/'")
	job.HTTPClientConfig.Headers = map[string]string{"Authorization": "Bearer cli", "X-Extra": "1"}
	if err := d.ValidateJob(job); err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	if err := d.BuildJob(job); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	headers := job.HTTPClientConfig.Headers
	if headers["Authorization"] != "Bearer cli" {
		t.Errorf("explicit Authorization should win, got %q", headers["Authorization"])
	}
	if headers["Referer"] != "https://watch.example.com/" {
		t.Errorf("captured Referer missing, got %q", headers["Referer"])
	}
	if headers["X-Extra"] != "1" {
		t.Errorf("explicit X-Extra missing, got %q", headers["X-Extra"])
	}
}
