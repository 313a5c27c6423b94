package hls

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/restitch/restitch/internal/retry"
	"github.com/restitch/restitch/internal/utils"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultConnections is the segment pool size when a job does not set one.
	DefaultConnections = 8
	// MaxSegmentSize rejects segments that are implausibly large for HLS.
	MaxSegmentSize = 10 * 1024 * 1024
)

type SegmentStatus int

const (
	StatusPending SegmentStatus = iota
	StatusDownloaded
	StatusFailed
)

func (s SegmentStatus) String() string {
	switch s {
	case StatusDownloaded:
		return "downloaded"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// SegmentResult records the outcome for one manifest entry. Failures are
// collected here rather than aborting the pool, so one flaky segment does
// not waste the other workers' completed downloads.
type SegmentResult struct {
	SequenceIndex int
	LocalPath     string
	Status        SegmentStatus
	Attempts      int
	Bytes         int64
	Err           error
}

// Progress is a point-in-time snapshot handed to the observer. Observers
// must treat it as read-only.
type Progress struct {
	Completed int
	Failed    int
	Total     int
	Bytes     int64
}

type ProgressFunc func(Progress)

// downloadAllSegments fans entries out to numWorkers goroutines and waits for
// all of them. Every entry produces exactly one result at its own index;
// workers write disjoint slots, so the counters are the only shared state.
// Cancellation marks the remaining entries failed instead of blocking.
func downloadAllSegments(ctx context.Context, entries []ManifestEntry, destDir string, numWorkers int, client utils.HTTPDoer, policy retry.Policy, progressFn ProgressFunc) []SegmentResult {
	if numWorkers <= 0 {
		numWorkers = DefaultConnections
	}
	if numWorkers > len(entries) {
		numWorkers = len(entries)
	}
	results := make([]SegmentResult, len(entries))
	jobCh := make(chan ManifestEntry, len(entries))
	for _, entry := range entries {
		jobCh <- entry
	}
	close(jobCh)

	var completedCount int64
	var failedCount int64
	var totalBytes int64
	notify := func() {
		if progressFn != nil {
			progressFn(Progress{
				Completed: int(atomic.LoadInt64(&completedCount)),
				Failed:    int(atomic.LoadInt64(&failedCount)),
				Total:     len(entries),
				Bytes:     atomic.LoadInt64(&totalBytes),
			})
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobCh {
				result := SegmentResult{SequenceIndex: entry.SequenceIndex, Status: StatusFailed}
				if ctx.Err() != nil {
					result.Err = ctx.Err()
					atomic.AddInt64(&failedCount, 1)
					results[entry.SequenceIndex] = result
					continue
				}
				outputPath := filepath.Join(destDir, segmentFileName(entry.SequenceIndex))
				var written int64
				attempts, err := policy.Do(ctx, func() error {
					n, err := downloadSegment(ctx, entry.SegmentURL, outputPath, client)
					written = n
					return err
				})
				result.Attempts = attempts
				if err != nil {
					result.Err = err
					atomic.AddInt64(&failedCount, 1)
					log.Debug().Str("op", "hls/segments").Msgf("Segment %d failed after %d attempt(s): %v", entry.SequenceIndex, attempts, err)
				} else {
					result.Status = StatusDownloaded
					result.LocalPath = outputPath
					result.Bytes = written
					atomic.AddInt64(&completedCount, 1)
					atomic.AddInt64(&totalBytes, written)
				}
				results[entry.SequenceIndex] = result
				notify()
			}
		}()
	}
	wg.Wait()
	return results
}

// segmentFileName is deterministic so a retried attempt overwrites its own
// partial file instead of leaking a new one.
func segmentFileName(sequenceIndex int) string {
	return fmt.Sprintf("segment_%05d.ts", sequenceIndex)
}

func downloadSegment(ctx context.Context, segmentURL, outputPath string, client utils.HTTPDoer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", segmentURL, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error downloading segment: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, &httpStatusError{status: resp.StatusCode}
	}
	if resp.ContentLength > MaxSegmentSize {
		return 0, fmt.Errorf("segment size %s exceeds the %s limit", utils.FormatBytes(uint64(resp.ContentLength)), utils.FormatBytes(MaxSegmentSize))
	}
	outFile, err := os.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("error creating segment file: %v", err)
	}
	defer outFile.Close()
	written, err := io.Copy(outFile, io.LimitReader(resp.Body, MaxSegmentSize+1))
	if err != nil {
		return 0, fmt.Errorf("error writing segment file: %v", err)
	}
	if written > MaxSegmentSize {
		os.Remove(outputPath)
		return 0, fmt.Errorf("segment exceeded the %s limit", utils.FormatBytes(MaxSegmentSize))
	}
	return written, nil
}
