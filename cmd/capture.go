package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/restitch/restitch/internal/output"
	"github.com/restitch/restitch/internal/scheduler"
	"github.com/restitch/restitch/internal/transcribe"
	"github.com/restitch/restitch/internal/utils"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newCaptureCmd() *cobra.Command {
	var outputPath string
	var captureFile string
	var withTranscript bool
	var transcriptModel string

	cmd := &cobra.Command{
		Use:     "capture [CAPTURE] [--file FILE] [--output OUTPUT_PATH]",
		Short:   "Rebuild a video from a captured segment request (curl command, raw HTTP request, or URL)",
		Aliases: []string{"curl", "request"},
		Args:    cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			captureText, err := readCaptureText(args, captureFile)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if outputPath == "" && term.IsTerminal(int(os.Stdin.Fd())) {
				outputPath = promptOutputName()
			}
			job := utils.RestitchJob{
				ID:               uuid.New().String(),
				JobType:          "capture",
				Capture:          captureText,
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
			log.Debug().Str("op", "cmd/capture").Msgf("Starting scheduler with %d job(s)", len(jobs))
			if err := scheduler.Run(ctx, jobs, workers, fileLog); err != nil {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default: video_[timestamp].mp4, prompted on a terminal)")
	cmd.Flags().StringVarP(&captureFile, "file", "f", "", "Read the captured request from a file ('-' reads stdin)")
	cmd.Flags().BoolVar(&withTranscript, "transcribe", false, "Generate a transcript once the video is assembled (requires whisper)")
	cmd.Flags().StringVar(&transcriptModel, "model", transcribe.DefaultModel, "Transcription model size (tiny, base, small, medium, large)")
	return cmd
}

// readCaptureText picks the capture source: an inline argument, a file, or
// piped stdin. Browser "copy as cURL" output spans lines, so files and pipes
// are the common path.
func readCaptureText(args []string, captureFile string) (string, error) {
	if captureFile == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("error reading capture from stdin: %v", err)
		}
		return string(content), nil
	}
	if captureFile != "" {
		content, err := os.ReadFile(captureFile)
		if err != nil {
			return "", fmt.Errorf("error reading capture file: %v", err)
		}
		return string(content), nil
	}
	if len(args) == 1 {
		return args[0], nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("error reading capture from stdin: %v", err)
		}
		if strings.TrimSpace(string(content)) != "" {
			return string(content), nil
		}
	}
	return "", fmt.Errorf("no captured request provided; pass it as an argument, via --file, or on stdin")
}

func promptOutputName() string {
	fmt.Print("Enter a name for the output video (default: video): ")
	reader := bufio.NewReader(os.Stdin)
	name, err := reader.ReadString('\n')
	if err != nil {
		name = ""
	}
	name = utils.SanitizeFilename(strings.TrimSpace(name))
	if !strings.HasSuffix(strings.ToLower(name), ".mp4") {
		name += ".mp4"
	}
	return name
}
