// Package capture provides a synthetic frame.Source that stands in for the
// real desktop screen-capture backend, which is external to this repo (see
// spec.md §1 Non-goals and the FrameSource module). It lets cursormirrord
// run the full Encoder/SegmentEngine/HTTP pipeline end to end — and gives
// operators something to point an HLS player at — before a real capture
// backend is wired in via frame.PushBridge.
package capture

import (
	"context"
	"time"

	"github.com/cursormirror/cursormirrord/internal/frame"
)

// Synthetic generates a moving color-bar test pattern at a fixed resolution
// and frame rate. It satisfies frame.Source so it can be swapped for a real
// capture backend without touching the Encoder/SegmentEngine wiring.
type Synthetic struct {
	width, height int
	format        frame.PixelFormat
	interval      time.Duration

	stop chan struct{}
	seq  int
	pts  time.Duration
}

// NewSynthetic creates a Synthetic source at the given resolution and frame
// rate, emitting frames in format.
func NewSynthetic(width, height int, frameRate float64, format frame.PixelFormat) *Synthetic {
	if frameRate <= 0 {
		frameRate = 30
	}
	return &Synthetic{
		width:    width,
		height:   height,
		format:   format,
		interval: time.Duration(float64(time.Second) / frameRate),
		stop:     make(chan struct{}),
	}
}

// Next implements frame.Source: it paces itself to the configured frame
// rate and hands back a freshly rendered test-pattern frame each tick.
func (s *Synthetic) Next(ctx context.Context) (*frame.Frame, error) {
	select {
	case <-s.stop:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.interval):
	}

	f := &frame.Frame{
		Pixels: s.render(),
		PTS:    s.pts,
		Width:  s.width,
		Height: s.height,
		Format: s.format,
	}
	s.pts += s.interval
	s.seq++
	return f, nil
}

// Stop implements frame.Source.
func (s *Synthetic) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

// colorBars are the classic SMPTE-order hues, shifted by one bar every 10
// frames so a player shows visible motion rather than a static frame.
var colorBars = [8][3]byte{
	{235, 235, 235}, // white
	{235, 235, 16},  // yellow
	{16, 235, 235},  // cyan
	{16, 235, 16},   // green
	{235, 16, 235},  // magenta
	{235, 16, 16},   // red
	{16, 16, 235},   // blue
	{16, 16, 16},    // black
}

// render draws vertical color bars, shifted over time, into a pixel buffer
// in s.format's channel order.
func (s *Synthetic) render() []byte {
	out := make([]byte, s.width*s.height*4)
	barWidth := s.width / len(colorBars)
	if barWidth == 0 {
		barWidth = 1
	}
	shift := s.seq / 10 % len(colorBars)

	for y := 0; y < s.height; y++ {
		row := out[y*s.width*4 : (y+1)*s.width*4]
		for x := 0; x < s.width; x++ {
			bar := (x/barWidth + shift) % len(colorBars)
			c := colorBars[bar]
			o := x * 4
			switch s.format {
			case frame.PixelFormatBGRA:
				row[o], row[o+1], row[o+2], row[o+3] = c[2], c[1], c[0], 255
			default:
				row[o], row[o+1], row[o+2], row[o+3] = c[0], c[1], c[2], 255
			}
		}
	}
	return out
}
