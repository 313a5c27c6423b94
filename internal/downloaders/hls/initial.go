package hls

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/restitch/restitch/internal/capture"
	"github.com/restitch/restitch/internal/locate"
	"github.com/restitch/restitch/internal/transcribe"
	"github.com/restitch/restitch/internal/utils"
	"github.com/rs/zerolog/log"
)

// Downloader rebuilds a single video from an HLS manifest. It serves two job
// types: "capture" starts from one authenticated segment request and locates
// the manifest itself; "manifest" starts from a playlist URL directly.
type Downloader struct{}

func (d *Downloader) ValidateJob(job *utils.RestitchJob) error {
	if job.Metadata == nil {
		job.Metadata = make(map[string]any)
	}
	if model, ok := job.Metadata["transcribeModel"].(string); ok && model != "" && !transcribe.ValidModel(model) {
		return fmt.Errorf("unsupported transcription model %q (choose from %v)", model, transcribe.ModelSizes)
	}
	switch job.JobType {
	case "capture":
		if job.Capture == "" {
			return fmt.Errorf("no captured request provided")
		}
		descriptor, err := capture.Parse(job.Capture)
		if err != nil {
			return fmt.Errorf("error parsing captured request: %v", err)
		}
		job.Metadata["descriptor"] = descriptor
	case "manifest":
		parsedURL, err := url.Parse(job.URL)
		if err != nil {
			return fmt.Errorf("invalid manifest URL: %v", err)
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("unsupported URL scheme: %s", parsedURL.Scheme)
		}
	default:
		return fmt.Errorf("unknown job type: %s", job.JobType)
	}
	return nil
}

func (d *Downloader) BuildJob(job *utils.RestitchJob) error {
	if job.JobType == "capture" {
		descriptor, ok := job.Metadata["descriptor"].(*capture.RequestDescriptor)
		if !ok {
			return fmt.Errorf("job has no parsed capture; validate it first")
		}
		manifestURL, err := locate.Manifest(descriptor.URL)
		if err != nil {
			return err
		}
		job.URL = manifestURL
		if manifestURL != descriptor.URL {
			// the capture is a real segment, keep it for variant matching
			job.Metadata["sampleSegmentURL"] = descriptor.URL
		}
		job.HTTPClientConfig.Headers = mergeHeaders(descriptor.Headers, job.HTTPClientConfig.Headers)
		log.Debug().Str("op", "hls/initial").Msgf("Located manifest %s from captured segment", manifestURL)
	}
	if job.OutputPath == "" {
		job.OutputPath = fmt.Sprintf("video_%s.mp4", time.Now().Format("20060102_150405"))
	}
	if _, err := os.Stat(job.OutputPath); err == nil {
		job.OutputPath = utils.RenewOutputPath(job.OutputPath)
	}
	tempDir := filepath.Join(filepath.Dir(job.OutputPath), utils.TempDirName, fmt.Sprintf("hls_%d_%s", time.Now().UnixMilli(), uuid.New().String()[:8]))
	job.Metadata["tempDir"] = tempDir
	return nil
}

// mergeHeaders overlays explicit headers on top of the captured ones, so a
// -H flag on the command line wins over the same header from the capture.
func mergeHeaders(captured, explicit map[string]string) map[string]string {
	merged := make(map[string]string, len(captured)+len(explicit))
	for key, value := range captured {
		merged[key] = value
	}
	for key, value := range explicit {
		merged[key] = value
	}
	return merged
}
