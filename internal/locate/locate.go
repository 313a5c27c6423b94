// Package locate derives a manifest URL from one captured segment URL by
// trying a fixed set of named CDN naming conventions in order. Every
// matcher is a pure URL transform; nothing here touches the network.
package locate

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// UnrecognizedURLPatternError reports a segment URL that no known CDN
// convention can map to a manifest. Surfaced instead of guessing, since a
// wrong manifest URL turns into a confusing 404 much later.
type UnrecognizedURLPatternError struct {
	URL string
}

func (e *UnrecognizedURLPatternError) Error() string {
	return fmt.Sprintf("no known CDN convention matches segment URL %q", e.URL)
}

type pattern struct {
	name  string
	apply func(u *url.URL) (string, bool)
}

var (
	numberedSegmentRe = regexp.MustCompile(`^seg\d+\.(ts|m4s|mp4|m4a|aac)$`)
	bitrateIndexRe    = regexp.MustCompile(`^(index[-_]\w+?)[-_]\d+\.(ts|m4s|mp4|m4a|aac)$`)
	prefixedSegmentRe = regexp.MustCompile(`^(segment|chunk|media|frag)[-_]?\d+\.(ts|m4s|mp4|m4a|aac)$`)
)

// Conventions, most specific first. The query string is kept on every
// transform because signed CDNs expect the same token on the manifest.
var patterns = []pattern{
	{
		// The capture already points at a playlist.
		name: "manifest-passthrough",
		apply: func(u *url.URL) (string, bool) {
			if strings.HasSuffix(u.Path, ".m3u8") {
				return stripFragment(u), true
			}
			return "", false
		},
	},
	{
		// seg-<n>-v1-a1.ts under a base path that serves the playlist itself.
		name: "seg-dash-base",
		apply: func(u *url.URL) (string, bool) {
			idx := strings.LastIndex(u.Path, "/seg-")
			if idx <= 0 {
				return "", false
			}
			clone := *u
			clone.Path = u.Path[:idx]
			clone.Fragment = ""
			return clone.String(), true
		},
	},
	{
		// seg007.ts alongside index.m3u8.
		name: "numbered-index",
		apply: func(u *url.URL) (string, bool) {
			if !numberedSegmentRe.MatchString(path.Base(u.Path)) {
				return "", false
			}
			return replaceFilename(u, "index.m3u8"), true
		},
	},
	{
		// index_720_00042.ts alongside index_720.m3u8.
		name: "bitrate-index",
		apply: func(u *url.URL) (string, bool) {
			m := bitrateIndexRe.FindStringSubmatch(path.Base(u.Path))
			if m == nil {
				return "", false
			}
			return replaceFilename(u, m[1]+".m3u8"), true
		},
	},
	{
		// segment_0001.ts / chunk-3.ts / media5.aac alongside playlist.m3u8.
		name: "prefixed-playlist",
		apply: func(u *url.URL) (string, bool) {
			if !prefixedSegmentRe.MatchString(path.Base(u.Path)) {
				return "", false
			}
			return replaceFilename(u, "playlist.m3u8"), true
		},
	},
}

// Manifest maps a segment URL to its manifest URL, or fails with
// UnrecognizedURLPatternError when no convention applies.
func Manifest(segmentURL string) (string, error) {
	parsed, err := url.Parse(segmentURL)
	if err != nil {
		return "", fmt.Errorf("error parsing segment URL: %v", err)
	}
	for _, p := range patterns {
		if manifestURL, ok := p.apply(parsed); ok {
			log.Debug().Str("op", "locate/manifest").Msgf("Pattern %q mapped %s -> %s", p.name, segmentURL, manifestURL)
			return manifestURL, nil
		}
	}
	return "", &UnrecognizedURLPatternError{URL: segmentURL}
}

func replaceFilename(u *url.URL, filename string) string {
	clone := *u
	dir := path.Dir(clone.Path)
	if dir == "/" || dir == "." {
		clone.Path = "/" + filename
	} else {
		clone.Path = dir + "/" + filename
	}
	clone.Fragment = ""
	return clone.String()
}

func stripFragment(u *url.URL) string {
	clone := *u
	clone.Fragment = ""
	return clone.String()
}
