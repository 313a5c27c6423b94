package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/restitch/restitch/internal/scheduler"
	"github.com/restitch/restitch/internal/transcribe"
	"github.com/restitch/restitch/internal/utils"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// BatchEntry is one job in a batch file. For capture sections Link holds the
// captured request text (a quoted curl command works fine in YAML); for
// manifest sections it holds the playlist URL.
type BatchEntry struct {
	OutputPath string `yaml:"op,omitempty"`
	Link       string `yaml:"link"`
	Transcribe bool   `yaml:"transcribe,omitempty"`
	Model      string `yaml:"model,omitempty"`
}

type BatchFile map[string][]BatchEntry

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE] [OPTIONS]",
		Short: "Rebuild multiple videos from a YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading YAML file: %v\n", err)
				os.Exit(1)
			}
			var batchFile BatchFile
			if err := yaml.Unmarshal(data, &batchFile); err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing YAML file: %v\n", err)
				os.Exit(1)
			}
			jobs := buildJobsFromBatch(batchFile)
			if len(jobs) == 0 {
				fmt.Fprintf(os.Stderr, "No valid jobs found in the batch file\n")
				os.Exit(1)
			}
			ctx, stop := jobContext()
			defer stop()
			if err := scheduler.Run(ctx, jobs, workers, fileLog); err != nil {
				os.Exit(1)
			}
		},
	}
	return cmd
}

func buildJobsFromBatch(batchFile BatchFile) []utils.RestitchJob {
	var jobs []utils.RestitchJob
	for jobType, entries := range batchFile {
		normalizedType := normalizeJobType(jobType)
		if normalizedType == "" {
			fmt.Fprintf(os.Stderr, "Warning: Unknown job type '%s', skipping...\n", jobType)
			continue
		}
		for _, entry := range entries {
			if entry.Link == "" {
				fmt.Fprintf(os.Stderr, "Warning: Empty link found in %s section, skipping...\n", jobType)
				continue
			}
			model := entry.Model
			if model == "" {
				model = transcribe.DefaultModel
			}
			job := utils.RestitchJob{
				ID:               uuid.New().String(),
				JobType:          normalizedType,
				OutputPath:       entry.OutputPath,
				Connections:      connections,
				ProgressType:     "progress",
				HTTPClientConfig: globalHTTPConfig,
				Metadata: map[string]any{
					"transcribe":      entry.Transcribe,
					"transcribeModel": model,
				},
			}
			if normalizedType == "capture" {
				job.Capture = entry.Link
			} else {
				job.URL = entry.Link
			}
			jobs = append(jobs, job)
		}
	}
	return jobs
}

func normalizeJobType(jobType string) string {
	typeMap := map[string]string{
		"capture":  "capture",
		"curl":     "capture",
		"request":  "capture",
		"manifest": "manifest",
		"m3u8":     "manifest",
		"hls":      "manifest",
		"playlist": "manifest",
		"stream":   "manifest",
	}
	return typeMap[strings.ToLower(jobType)]
}

