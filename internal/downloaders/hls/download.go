package hls

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/restitch/restitch/internal/retry"
	"github.com/restitch/restitch/internal/transcribe"
	"github.com/restitch/restitch/internal/utils"
	"github.com/rs/zerolog/log"
)

// Download runs the full pipeline: fetch the manifest, parse it into segment
// entries, pull every segment through the worker pool, and assemble the
// output file. Segment scratch files live in a per-job temp directory that
// is removed on every exit path, success or not.
func (d *Downloader) Download(ctx context.Context, job *utils.RestitchJob) error {
	tempDir, ok := job.Metadata["tempDir"].(string)
	if !ok || tempDir == "" {
		return fmt.Errorf("job has no temp directory; build it first")
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return fmt.Errorf("error creating temp directory: %v", err)
	}
	defer removeTempDir(tempDir)

	client := utils.NewRestitchHTTPClient(job.HTTPClientConfig)
	policy := retry.Default()

	manifestContent, err := fetchManifest(ctx, job.URL, client, policy)
	if err != nil {
		return err
	}
	sampleSegmentURL, _ := job.Metadata["sampleSegmentURL"].(string)
	entries, err := parseManifest(ctx, manifestContent, job.URL, sampleSegmentURL, client, policy)
	if err != nil {
		return err
	}
	log.Debug().Str("op", "hls/download").Msgf("Downloading %d segment(s) with %d connection(s)", len(entries), job.Connections)

	start := time.Now()
	progressFn := func(p Progress) {
		if job.ProgressFunc != nil {
			job.ProgressFunc(int64(p.Completed), int64(p.Total))
		}
	}
	results := downloadAllSegments(ctx, entries, tempDir, job.Connections, client, policy, progressFn)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := assembleSegments(results, job.OutputPath); err != nil {
		return err
	}

	var totalBytes int64
	for _, result := range results {
		totalBytes += result.Bytes
	}
	elapsed := time.Since(start)
	log.Debug().Str("op", "hls/download").Msgf("Assembled %s (%s in %s, %s)", job.OutputPath,
		utils.FormatBytes(uint64(totalBytes)), elapsed.Round(time.Second), utils.FormatSpeed(totalBytes, elapsed.Seconds()))

	if wantTranscript, _ := job.Metadata["transcribe"].(bool); wantTranscript {
		model, _ := job.Metadata["transcribeModel"].(string)
		if job.StreamFunc != nil {
			job.StreamFunc("Generating transcript...")
		}
		// transcript failures never undo a finished video
		if err := transcribe.Generate(ctx, job.OutputPath, model, job.StreamFunc); err != nil {
			log.Warn().Str("op", "hls/download").Msgf("Transcript generation failed: %v", err)
			if job.StreamFunc != nil {
				job.StreamFunc(fmt.Sprintf("Transcript failed: %v", err))
			}
		} else if job.StreamFunc != nil {
			job.StreamFunc("Transcript saved to " + transcribe.TranscriptPath(job.OutputPath))
		}
	}
	return nil
}

func removeTempDir(tempDir string) {
	if err := os.RemoveAll(tempDir); err != nil {
		log.Warn().Str("op", "hls/download").Msgf("Failed to remove temp directory %s: %v", tempDir, err)
	}
}
