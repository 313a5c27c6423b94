package cmd

import (
	"os"

	"github.com/google/uuid"
	"github.com/restitch/restitch/internal/scheduler"
	"github.com/restitch/restitch/internal/transcribe"
	"github.com/restitch/restitch/internal/utils"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newManifestCmd() *cobra.Command {
	var outputPath string
	var withTranscript bool
	var transcriptModel string

	cmd := &cobra.Command{
		Use:     "manifest [URL] [--output OUTPUT_PATH]",
		Short:   "Rebuild a video directly from an HLS manifest URL",
		Aliases: []string{"hls", "m3u8", "playlist"},
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			job := utils.RestitchJob{
				ID:               uuid.New().String(),
				JobType:          "manifest",
				URL:              args[0],
				OutputPath:       outputPath,
				Connections:      connections,
				ProgressType:     "progress",
				HTTPClientConfig: globalHTTPConfig,
				Metadata: map[string]any{
					"transcribe":      withTranscript,
					"transcribeModel": transcriptModel,
				},
			}
			jobs := []utils.RestitchJob{job}
			ctx, stop := jobContext()
			defer stop()
			log.Debug().Str("op", "cmd/manifest").Msgf("Starting scheduler with %d job(s)", len(jobs))
			if err := scheduler.Run(ctx, jobs, workers, fileLog); err != nil {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default: video_[timestamp].mp4)")
	cmd.Flags().BoolVar(&withTranscript, "transcribe", false, "Generate a transcript once the video is assembled (requires whisper)")
	cmd.Flags().StringVar(&transcriptModel, "model", transcribe.DefaultModel, "Transcription model size (tiny, base, small, medium, large)")
	return cmd
}
