package hls

import (
	"fmt"
	"io"
	"os"
	"sort"
)

// assembleSegments concatenates fully downloaded segments into outputPath in
// ascending sequence order. It refuses to write anything when the set is
// incomplete, and removes the output file if a write fails partway, so a
// path on disk always means a whole video.
func assembleSegments(results []SegmentResult, outputPath string) error {
	var failed []SegmentResult
	for _, result := range results {
		if result.Status != StatusDownloaded {
			failed = append(failed, result)
		}
	}
	if len(failed) > 0 {
		sort.Slice(failed, func(i, j int) bool { return failed[i].SequenceIndex < failed[j].SequenceIndex })
		missing := make([]int, len(failed))
		for i, result := range failed {
			missing[i] = result.SequenceIndex
		}
		return &IncompleteSegmentSetError{MissingIndices: missing, Total: len(results), Failed: failed}
	}

	ordered := make([]SegmentResult, len(results))
	copy(ordered, results)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].SequenceIndex < ordered[j].SequenceIndex })

	outFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("error creating output file: %v", err)
	}
	for _, result := range ordered {
		if err := appendSegment(outFile, result.LocalPath); err != nil {
			outFile.Close()
			os.Remove(outputPath)
			return fmt.Errorf("error appending segment %d: %v", result.SequenceIndex, err)
		}
	}
	if err := outFile.Close(); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("error closing output file: %v", err)
	}
	return nil
}

func appendSegment(outFile *os.File, segmentPath string) error {
	segFile, err := os.Open(segmentPath)
	if err != nil {
		return err
	}
	defer segFile.Close()
	_, err = io.Copy(outFile, segFile)
	return err
}
