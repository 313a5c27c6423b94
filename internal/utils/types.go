package utils

import "context"

type Downloader interface {
	Download(ctx context.Context, job *RestitchJob) error
	BuildJob(job *RestitchJob) error
	ValidateJob(job *RestitchJob) error
}

type RestitchJob struct {
	ID               string
	JobType          string
	OutputPath       string
	ProgressType     string
	ProgressFunc     func(downloaded, total int64)
	StreamFunc       func(line string)
	URL              string
	Capture          string // raw captured request text for capture jobs
	Connections      int
	Metadata         map[string]any
	HTTPClientConfig HTTPClientConfig
}
