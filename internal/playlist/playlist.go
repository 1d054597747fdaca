// Package playlist renders M3U8 playlists from segment snapshots. Every
// function here is pure: given the same View it always renders the same
// string, with no I/O and no clock reads.
package playlist

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cursormirror/cursormirrord/internal/quality"
)

// SegmentInfo is the subset of a closed segment the playlist renderer needs.
type SegmentInfo struct {
	Sequence        uint64
	Filename        string
	Duration        time.Duration
	IsDiscontinuity bool
}

// View is a point-in-time, read-only snapshot of one quality's segment
// window, as produced by the segment engine.
type View struct {
	Quality           quality.Quality
	Segments          []SegmentInfo
	MediaSequenceBase uint64
	TargetDuration    time.Duration
}

// Variant is one rendition line of a master playlist.
type Variant struct {
	Quality  quality.Quality
	MediaURL string
}

// Master emits the top-level playlist listing one EXT-X-STREAM-INF per
// variant.
func Master(variants []Variant) string {
	var sb strings.Builder
	sb.WriteString("#EXTM3U\n")
	sb.WriteString("#EXT-X-VERSION:3\n")
	for _, v := range variants {
		s := v.Quality.Settings()
		sb.WriteString(fmt.Sprintf(
			"#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s,FRAME-RATE=%.3f\n",
			s.BitrateBPS, s.Resolution(), s.FrameRate,
		))
		sb.WriteString(v.MediaURL)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Media emits a live (sliding-window) media playlist for one quality.
func Media(view View, baseURL string) string {
	return render(view, baseURL, "")
}

// Event emits a media playlist tagged PLAYLIST-TYPE:EVENT. The caller is
// responsible for passing the full segment history in view.Segments — Event
// applies no eviction semantics of its own.
func Event(view View, baseURL string) string {
	return render(view, baseURL, "#EXT-X-PLAYLIST-TYPE:EVENT\n")
}

// VOD emits a media playlist tagged PLAYLIST-TYPE:VOD with a trailing
// EXT-X-ENDLIST, for a stream that has finished.
func VOD(view View, baseURL string) string {
	return render(view, baseURL, "#EXT-X-PLAYLIST-TYPE:VOD\n") + "#EXT-X-ENDLIST\n"
}

func render(view View, baseURL string, typeTag string) string {
	target := int(math.Ceil(view.TargetDuration.Seconds()))

	var sb strings.Builder
	sb.WriteString("#EXTM3U\n")
	sb.WriteString("#EXT-X-VERSION:3\n")
	sb.WriteString(typeTag)
	sb.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", target))
	sb.WriteString(fmt.Sprintf("#EXT-X-MEDIA-SEQUENCE:%d\n", view.MediaSequenceBase))

	prefix := strings.TrimSuffix(baseURL, "/")
	if prefix != "" {
		prefix += "/"
	}

	for i, seg := range view.Segments {
		if seg.IsDiscontinuity {
			sb.WriteString("#EXT-X-DISCONTINUITY\n")
		} else if i > 0 {
			prev := view.Segments[i-1]
			if seg.Sequence != prev.Sequence+1 {
				sb.WriteString("#EXT-X-DISCONTINUITY\n")
			}
		}
		sb.WriteString(fmt.Sprintf("#EXTINF:%.3f,\n", seg.Duration.Seconds()))
		sb.WriteString(prefix)
		sb.WriteString(seg.Filename)
		sb.WriteString("\n")
	}

	return sb.String()
}
