package hls

import (
	"fmt"
	"strings"
)

// ManifestUnavailableError reports a manifest fetch that exhausted its
// retries. Status is the last HTTP status seen, 0 when the failure never
// produced a response.
type ManifestUnavailableError struct {
	URL      string
	Status   int
	Attempts int
}

func (e *ManifestUnavailableError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("manifest %s unavailable after %d attempt(s): network error", e.URL, e.Attempts)
	}
	return fmt.Sprintf("manifest %s unavailable after %d attempt(s): last status %d", e.URL, e.Attempts, e.Status)
}

type MalformedManifestError struct {
	URL    string
	Reason string
}

func (e *MalformedManifestError) Error() string {
	return fmt.Sprintf("malformed manifest %s: %s", e.URL, e.Reason)
}

// NoMatchingVariantError means the master playlist had variants but none of
// them could have produced the captured segment URL.
type NoMatchingVariantError struct {
	SegmentURL string
	Variants   int
}

func (e *NoMatchingVariantError) Error() string {
	return fmt.Sprintf("none of %d variant(s) matches the captured segment %s", e.Variants, e.SegmentURL)
}

// IncompleteSegmentSetError is the assembler's precondition failure: at
// least one segment never reached Downloaded, so no output is written.
// Failed carries the losing results so the message can say which indices
// failed, after how many attempts, and why.
type IncompleteSegmentSetError struct {
	MissingIndices []int
	Total          int
	Failed         []SegmentResult
}

func (e *IncompleteSegmentSetError) Error() string {
	shown := e.Failed
	suffix := ""
	if len(shown) > 10 {
		shown = shown[:10]
		suffix = "; ..."
	}
	details := make([]string, len(shown))
	for i, result := range shown {
		if result.Err != nil {
			details[i] = fmt.Sprintf("segment %d failed after %d attempt(s): %v", result.SequenceIndex, result.Attempts, result.Err)
		} else {
			details[i] = fmt.Sprintf("segment %d was never downloaded", result.SequenceIndex)
		}
	}
	return fmt.Sprintf("segment set incomplete: %d of %d segment(s) missing: %s%s",
		len(e.MissingIndices), e.Total, strings.Join(details, "; "), suffix)
}

type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("server returned status code %d", e.status)
}
