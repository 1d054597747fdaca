package segment

import "errors"

// Error kinds from the segmenting error taxonomy.
var (
	ErrNoActiveSegment  = errors.New("segment: no active segment")
	ErrSegmentIO        = errors.New("segment: io error")
	ErrInvalidDirectory = errors.New("segment: invalid directory")
	ErrEngineDegraded   = errors.New("segment: engine degraded")
	ErrSegmentNotFound  = errors.New("segment: not found")
	ErrNotReady         = errors.New("segment: not ready")
	ErrUnknownQuality   = errors.New("segment: unknown quality")
)
