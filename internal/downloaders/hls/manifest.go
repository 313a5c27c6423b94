package hls

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/grafov/m3u8"
	"github.com/restitch/restitch/internal/retry"
	"github.com/restitch/restitch/internal/utils"
	"github.com/rs/zerolog/log"
)

// MaxSegments caps how many entries a single manifest may contribute.
const MaxSegments = 1000

// ManifestEntry is one downloadable piece of the stream in playback order.
// When the playlist declares an init segment it occupies index 0.
type ManifestEntry struct {
	SequenceIndex int
	SegmentURL    string
}

// fetchManifest GETs manifestURL through the retry policy using the captured
// headers carried by the client. Network errors and 5xx responses are
// retried; 4xx responses fail immediately since expired or rejected
// credentials never heal on their own.
func fetchManifest(ctx context.Context, manifestURL string, client utils.HTTPDoer, policy retry.Policy) (string, error) {
	var body string
	var lastStatus int
	policy.Retryable = func(err error) bool {
		var statusErr *httpStatusError
		if errors.As(err, &statusErr) {
			return statusErr.status >= 500
		}
		return true
	}
	attempts, err := policy.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, "GET", manifestURL, nil)
		if err != nil {
			return err
		}
		lastStatus = 0
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("error fetching manifest: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			lastStatus = resp.StatusCode
			return &httpStatusError{status: resp.StatusCode}
		}
		content, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("error reading manifest body: %v", err)
		}
		body = string(content)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &ManifestUnavailableError{URL: manifestURL, Status: lastStatus, Attempts: attempts}
	}
	log.Debug().Str("op", "hls/manifest").Msgf("Fetched manifest %s (%d bytes, %d attempt(s))", manifestURL, len(body), attempts)
	return body, nil
}

// parseManifest decodes manifest content into the ordered segment list for
// one rendition. A media playlist is used directly; a master playlist
// recurses one level into the variant implied by sampleSegmentURL (or the
// highest-bandwidth variant when there is no sample to match).
func parseManifest(ctx context.Context, content, manifestURL, sampleSegmentURL string, client utils.HTTPDoer, policy retry.Policy) ([]ManifestEntry, error) {
	base, err := url.Parse(manifestURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing manifest URL: %v", err)
	}
	normalizeBase(base)
	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(content), true)
	if err != nil {
		return nil, &MalformedManifestError{URL: manifestURL, Reason: err.Error()}
	}
	switch listType {
	case m3u8.MEDIA:
		return mediaEntries(playlist.(*m3u8.MediaPlaylist), base, manifestURL)
	case m3u8.MASTER:
		variantURL, err := matchVariant(playlist.(*m3u8.MasterPlaylist), base, manifestURL, sampleSegmentURL)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("op", "hls/manifest").Msgf("Following variant playlist %s", variantURL)
		variantContent, err := fetchManifest(ctx, variantURL, client, policy)
		if err != nil {
			return nil, err
		}
		variantPlaylist, variantType, err := m3u8.DecodeFrom(strings.NewReader(variantContent), true)
		if err != nil {
			return nil, &MalformedManifestError{URL: variantURL, Reason: err.Error()}
		}
		if variantType != m3u8.MEDIA {
			return nil, &MalformedManifestError{URL: variantURL, Reason: "variant does not resolve to a media playlist"}
		}
		variantBase, err := url.Parse(variantURL)
		if err != nil {
			return nil, fmt.Errorf("error parsing variant URL: %v", err)
		}
		normalizeBase(variantBase)
		return mediaEntries(variantPlaylist.(*m3u8.MediaPlaylist), variantBase, variantURL)
	default:
		return nil, &MalformedManifestError{URL: manifestURL, Reason: "unrecognized playlist type"}
	}
}

// normalizeBase makes a bare directory URL (the seg- CDN convention serves
// manifests at extensionless paths) resolve children under itself rather
// than as siblings.
func normalizeBase(base *url.URL) {
	if !strings.HasSuffix(base.Path, "/") && path.Ext(base.Path) == "" {
		base.Path += "/"
	}
}

func mediaEntries(playlist *m3u8.MediaPlaylist, base *url.URL, manifestURL string) ([]ManifestEntry, error) {
	var entries []ManifestEntry
	if playlist.Map != nil && playlist.Map.URI != "" {
		initURL, err := resolveURL(base, playlist.Map.URI)
		if err != nil {
			return nil, &MalformedManifestError{URL: manifestURL, Reason: fmt.Sprintf("bad init segment URI: %v", err)}
		}
		entries = append(entries, ManifestEntry{SequenceIndex: 0, SegmentURL: initURL})
	}
	for _, segment := range playlist.Segments {
		if segment == nil {
			continue
		}
		segmentURL, err := resolveURL(base, segment.URI)
		if err != nil {
			return nil, &MalformedManifestError{URL: manifestURL, Reason: fmt.Sprintf("bad segment URI %q: %v", segment.URI, err)}
		}
		entries = append(entries, ManifestEntry{SequenceIndex: len(entries), SegmentURL: segmentURL})
	}
	if len(entries) == 0 {
		return nil, &MalformedManifestError{URL: manifestURL, Reason: "no segment entries found"}
	}
	if len(entries) > MaxSegments {
		log.Warn().Str("op", "hls/manifest").Msgf("Manifest lists %d segments, keeping the first %d", len(entries), MaxSegments)
		entries = entries[:MaxSegments]
	}
	return entries, nil
}

// matchVariant picks the variant playlist whose directory contains the
// sample segment path on the same host. The deepest matching directory wins;
// declaration order breaks ties. Without a sample the highest-bandwidth
// variant is chosen.
func matchVariant(master *m3u8.MasterPlaylist, base *url.URL, manifestURL, sampleSegmentURL string) (string, error) {
	type candidate struct {
		resolved  string
		dir       string
		bandwidth uint32
	}
	var candidates []candidate
	for _, variant := range master.Variants {
		if variant == nil || variant.URI == "" {
			continue
		}
		resolved, err := resolveURL(base, variant.URI)
		if err != nil {
			continue
		}
		variantURL, err := url.Parse(resolved)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			resolved:  resolved,
			dir:       path.Dir(variantURL.Path),
			bandwidth: variant.Bandwidth,
		})
	}
	if len(candidates) == 0 {
		return "", &MalformedManifestError{URL: manifestURL, Reason: "master playlist has no variants"}
	}
	if sampleSegmentURL == "" {
		sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].bandwidth > candidates[j].bandwidth })
		return candidates[0].resolved, nil
	}
	sample, err := url.Parse(sampleSegmentURL)
	if err != nil {
		return "", fmt.Errorf("error parsing sample segment URL: %v", err)
	}
	best := -1
	bestDepth := -1
	for i, c := range candidates {
		variantURL, err := url.Parse(c.resolved)
		if err != nil || variantURL.Host != sample.Host {
			continue
		}
		prefix := c.dir
		if prefix != "/" {
			prefix += "/"
		}
		if !strings.HasPrefix(sample.Path, prefix) {
			continue
		}
		if len(c.dir) > bestDepth {
			best = i
			bestDepth = len(c.dir)
		}
	}
	if best == -1 {
		return "", &NoMatchingVariantError{SegmentURL: sampleSegmentURL, Variants: len(candidates)}
	}
	return candidates[best].resolved, nil
}

func resolveURL(base *url.URL, uri string) (string, error) {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return uri, nil
	}
	relative, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(relative).String(), nil
}
