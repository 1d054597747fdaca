// Package quality defines the closed set of encoding variants the streaming
// core publishes. Unlike tvarr's open-ended codec/profile registry, CursorMirror
// only ever encodes one source at a fixed set of resolutions, so the variants
// are a closed enum rather than a configurable catalogue.
package quality

import "fmt"

// Quality identifies one of the closed set of streaming variants.
type Quality string

// The closed set of supported qualities.
const (
	SD     Quality = "sd"
	HD     Quality = "hd"
	FullHD Quality = "fullhd"
)

// All returns the full closed set, in descending-bitrate order.
func All() []Quality {
	return []Quality{FullHD, HD, SD}
}

// Parse validates a string against the closed set.
func Parse(s string) (Quality, error) {
	switch Quality(s) {
	case SD, HD, FullHD:
		return Quality(s), nil
	default:
		return "", fmt.Errorf("unknown quality %q", s)
	}
}

// Dir returns the on-disk subdirectory name for this quality, which is
// identical to its lowercase label.
func (q Quality) Dir() string {
	return string(q)
}

// Settings describes the static encoding parameters for a quality.
type Settings struct {
	Width           int
	Height          int
	BitrateBPS      int
	FrameRate       float64
	KeyframeInterval int // frames between forced keyframes
}

// settingsTable holds the fixed per-quality settings.
var settingsTable = map[Quality]Settings{
	SD:     {Width: 854, Height: 480, BitrateBPS: 1_000_000, FrameRate: 30, KeyframeInterval: 60},
	HD:     {Width: 1280, Height: 720, BitrateBPS: 2_500_000, FrameRate: 30, KeyframeInterval: 60},
	FullHD: {Width: 1920, Height: 1080, BitrateBPS: 5_000_000, FrameRate: 30, KeyframeInterval: 60},
}

// Settings returns the static encoding parameters for q.
// Panics if q is not in the closed set — callers must validate with Parse first.
func (q Quality) Settings() Settings {
	s, ok := settingsTable[q]
	if !ok {
		panic(fmt.Sprintf("quality: unknown variant %q", q))
	}
	return s
}

// Resolution formats the quality's target resolution as "WxH".
func (s Settings) Resolution() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}
