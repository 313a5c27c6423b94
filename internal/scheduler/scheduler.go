package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/restitch/restitch/internal/downloaders/hls"
	"github.com/restitch/restitch/internal/output"
	"github.com/restitch/restitch/internal/utils"
	"github.com/rs/zerolog/log"
)

// Both job types run through the same HLS downloader; "capture" derives the
// manifest from a captured segment request, "manifest" is given one.
var downloaderRegistry = map[string]utils.Downloader{
	"capture":  &hls.Downloader{},
	"manifest": &hls.Downloader{},
}

// Run drives every job through validate, build, and download with numWorkers
// jobs in flight at once, rendering progress through the output manager. It
// returns an error when any job failed, so callers can exit non-zero.
func Run(ctx context.Context, jobs []utils.RestitchJob, numWorkers int, fileLog bool) error {
	if fileLog {
		logFile, err := os.OpenFile(utils.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Warn().Str("op", "scheduler").Msgf("Could not open log file, logging to console: %v", err)
		} else {
			utils.SetLogOutput(logFile)
			defer logFile.Close()
		}
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if numWorkers > len(jobs) {
		numWorkers = len(jobs)
	}

	outputMgr := output.NewManager()
	outputMgr.StartDisplay()

	jobCh := make(chan utils.RestitchJob, len(jobs))
	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)

	var failedJobs int64
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			processJobs(ctx, jobCh, outputMgr, &failedJobs)
		}()
	}
	wg.Wait()
	outputMgr.StopDisplay()

	if failed := atomic.LoadInt64(&failedJobs); failed > 0 {
		return fmt.Errorf("%d of %d job(s) failed", failed, len(jobs))
	}
	return nil
}

func processJobs(ctx context.Context, jobCh <-chan utils.RestitchJob, outputMgr *output.Manager, failedJobs *int64) {
	for job := range jobCh {
		funcID := outputMgr.RegisterFunction(displayName(&job))
		outputMgr.SetStatus(funcID, "pending")

		failJob := func(stage string, err error) {
			log.Debug().Str("op", "scheduler").Msgf("Job %s: %s failed: %v", job.ID, stage, err)
			outputMgr.ReportError(funcID, err)
			outputMgr.SetMessage(funcID, fmt.Sprintf("%s failed for %s", stage, displayName(&job)))
			atomic.AddInt64(failedJobs, 1)
		}

		if ctx.Err() != nil {
			failJob("Run", ctx.Err())
			continue
		}
		downloader, exists := downloaderRegistry[job.JobType]
		if !exists {
			failJob("Setup", fmt.Errorf("no downloader for job type %q", job.JobType))
			continue
		}

		outputMgr.SetMessage(funcID, fmt.Sprintf("Validating %s job", job.JobType))
		if err := downloader.ValidateJob(&job); err != nil {
			failJob("Validation", err)
			continue
		}

		outputMgr.SetMessage(funcID, fmt.Sprintf("Preparing %s job", job.JobType))
		if err := downloader.BuildJob(&job); err != nil {
			failJob("Preparation", err)
			continue
		}

		job.ProgressFunc = func(downloaded, total int64) {
			outputMgr.AddProgressBarToStream(funcID, downloaded, total, fmt.Sprintf("%d/%d segments", downloaded, total))
		}
		job.StreamFunc = func(line string) {
			outputMgr.AddStreamLine(funcID, line)
		}

		outputMgr.SetMessage(funcID, fmt.Sprintf("Downloading %s", job.OutputPath))
		log.Debug().Str("op", "scheduler").Msgf("Job %s: downloading %s to %s", job.ID, job.URL, job.OutputPath)
		if err := downloader.Download(ctx, &job); err != nil {
			failJob("Download", err)
			continue
		}
		outputMgr.Complete(funcID, fmt.Sprintf("Completed %s", job.OutputPath))
	}
}

func displayName(job *utils.RestitchJob) string {
	if job.OutputPath != "" {
		return job.OutputPath
	}
	if job.URL != "" {
		return job.URL
	}
	return fmt.Sprintf("%s job", job.JobType)
}
