// Package segment implements the SegmentWriter and SegmentEngine: the
// components that rotate an encoded H.264 byte stream into MPEG-TS files on
// disk and maintain the bounded per-quality retention window.
package segment

import (
	"time"

	"github.com/cursormirror/cursormirrord/internal/quality"
)

// Segment is a closed, durable (within retention) MPEG-TS file.
//
// Invariants: Filename is unique per quality; Sequence is strictly
// increasing per quality; Duration > 0 once closed; for the same quality,
// StartPTS of segment n+1 is >= StartPTS of segment n.
type Segment struct {
	Quality         quality.Quality
	Sequence        uint64
	Filename        string
	Path            string
	Duration        time.Duration
	StartPTS        time.Duration
	IsDiscontinuity bool
}
