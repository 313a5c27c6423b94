// Package transcribe shells out to OpenAI's whisper CLI to produce a plain
// text transcript next to an assembled video. It is strictly best-effort:
// callers must treat a failure here as a warning, never as a reason to
// discard the video.
package transcribe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// ModelSizes are the whisper model names accepted by --model, smallest to
// largest.
var ModelSizes = []string{"tiny", "base", "small", "medium", "large"}

const DefaultModel = "medium"

func ValidModel(model string) bool {
	for _, size := range ModelSizes {
		if model == size {
			return true
		}
	}
	return false
}

// TranscriptPath returns where Generate places the transcript for videoPath.
func TranscriptPath(videoPath string) string {
	return strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + "_transcript.txt"
}

// EnsureWhisper locates the whisper binary in PATH, falling back to a copy
// sitting next to the running executable.
func EnsureWhisper() (string, error) {
	whisperPath, err := exec.LookPath("whisper")
	if err == nil {
		return whisperPath, nil
	}
	execPath, err := os.Executable()
	if err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), "whisper")
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("whisper not found in PATH or alongside the executable")
}

// Generate transcribes videoPath with the given model size and writes the
// result to TranscriptPath(videoPath). Whisper's own console output is
// forwarded line by line to streamFunc when one is provided.
func Generate(ctx context.Context, videoPath, model string, streamFunc func(string)) error {
	if model == "" {
		model = DefaultModel
	}
	if !ValidModel(model) {
		return fmt.Errorf("unsupported model size %q (choose from %v)", model, ModelSizes)
	}
	if _, err := os.Stat(videoPath); err != nil {
		return fmt.Errorf("video file not found: %v", err)
	}
	whisperPath, err := EnsureWhisper()
	if err != nil {
		return err
	}

	outputDir := filepath.Dir(videoPath)
	args := []string{videoPath, "--model", model, "--output_format", "txt", "--output_dir", outputDir}
	log.Debug().Str("op", "transcribe").Msgf("Running %s %s", whisperPath, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, whisperPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("error creating stdout pipe: %v", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("error creating stderr pipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("error starting whisper: %v", err)
	}
	go forwardOutput(stdout, streamFunc)
	go forwardOutput(stderr, streamFunc)
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("whisper exited with error: %v", err)
	}

	// whisper names its output <stem>.txt; move it to the transcript name
	stem := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	produced := filepath.Join(outputDir, stem+".txt")
	transcriptPath := TranscriptPath(videoPath)
	if _, err := os.Stat(produced); err != nil {
		return fmt.Errorf("whisper produced no transcript at %s", produced)
	}
	if produced != transcriptPath {
		if err := os.Rename(produced, transcriptPath); err != nil {
			return fmt.Errorf("error renaming transcript: %v", err)
		}
	}
	log.Debug().Str("op", "transcribe").Msgf("Transcript saved to %s", transcriptPath)
	return nil
}

func forwardOutput(reader io.Reader, streamFunc func(string)) {
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		log.Debug().Str("op", "transcribe").Msg(line)
		if streamFunc != nil {
			streamFunc(line)
		}
	}
}
