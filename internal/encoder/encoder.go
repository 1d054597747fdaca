// Package encoder implements the single-writer H.264 encoder: it ingests
// raw pixel frames and emits a timestamped, keyframe-annotated byte stream
// by driving an ffmpeg subprocess as a bidirectional pipe (rawvideo in,
// Annex-B H.264 out). There is no in-process Go H.264 encoder available, so
// ffmpeg is treated as the codec.
package encoder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cursormirror/cursormirrord/internal/ffmpeg"
	"github.com/cursormirror/cursormirrord/internal/frame"
	"github.com/cursormirror/cursormirrord/internal/quality"
)

// submitQueueDepth bounds how many frames may be queued for the ffmpeg
// writer goroutine before Submit starts dropping. This is the "bounded
// interval" the caller is never blocked beyond.
const submitQueueDepth = 8

// Settings configures one encoding session.
type Settings struct {
	Quality          quality.Quality
	Width            int
	Height           int
	PixelFormat      frame.PixelFormat
	BitrateBPS       int
	FrameRate        float64
	KeyframeInterval int
}

// Unit is the plain-value, owned-by-the-receiver equivalent of a codec
// sample buffer: an opaque encoded byte chunk plus its metadata. It carries
// no shared mutability and is safe to hand across goroutines.
type Unit struct {
	Data       []byte
	PTS        time.Duration
	IsKeyframe bool
	Quality    quality.Quality
}

// Callback receives encoded units as they become available. It is invoked
// from the encoder's internal goroutine and must not block for long.
type Callback func(Unit)

// Stats reports encoder-side counters for observability.
type Stats struct {
	FramesSubmitted uint64
	FramesDropped   uint64
	UnitsEmitted    uint64
}

// Encoder is a single-writer H.264 encoder backed by an ffmpeg subprocess.
// Only one encoding session may be active at a time.
type Encoder struct {
	binaryPath string
	logger     *slog.Logger

	mu       sync.Mutex
	running  bool
	settings Settings
	cancel   context.CancelFunc
	submitCh chan *frame.Frame
	doneCh   <-chan error
	wg       sync.WaitGroup

	framesSubmitted atomic.Uint64
	framesDropped   atomic.Uint64
	unitsEmitted    atomic.Uint64
}

// New creates an Encoder that launches the ffmpeg binary at binaryPath.
func New(binaryPath string, logger *slog.Logger) *Encoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Encoder{binaryPath: binaryPath, logger: logger}
}

// Start initializes the codec for the given settings and begins emitting
// encoded units to onUnit. Returns ErrAlreadyEncoding if a session is
// already active, or ErrInvalidDimensions if width/height are non-positive.
func (e *Encoder) Start(ctx context.Context, settings Settings, onUnit Callback) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrAlreadyEncoding
	}
	if settings.Width <= 0 || settings.Height <= 0 {
		return ErrInvalidDimensions
	}
	if settings.FrameRate <= 0 {
		settings.FrameRate = 30
	}
	if settings.KeyframeInterval <= 0 {
		settings.KeyframeInterval = int(settings.FrameRate) * 2
	}
	pixFmt := string(settings.PixelFormat)
	if pixFmt == "" {
		pixFmt = string(frame.PixelFormatBGRA)
	}

	cmd := ffmpeg.NewCommandBuilder(e.binaryPath).
		LogLevel("error").
		HideBanner().
		RawVideoInput(ffmpegPixFmt(pixFmt), settings.Width, settings.Height, settings.FrameRate).
		VideoCodec("libx264").
		VideoBitrate(fmt.Sprintf("%d", settings.BitrateBPS)).
		VideoPreset("veryfast").
		VideoProfile("main").
		GOPSize(settings.KeyframeInterval).
		AnnexBOutput().
		Build()

	runCtx, cancel := context.WithCancel(ctx)
	stdin, stdout, done, err := cmd.StartPiped(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %v", ErrEncoderInit, err)
	}

	e.running = true
	e.settings = settings
	e.cancel = cancel
	e.submitCh = make(chan *frame.Frame, submitQueueDepth)
	e.doneCh = done
	e.framesSubmitted.Store(0)
	e.framesDropped.Store(0)
	e.unitsEmitted.Store(0)

	ptsCh := make(chan time.Duration, submitQueueDepth*4)

	e.wg.Add(2)
	go e.writeLoop(stdin, ptsCh)
	go e.readLoop(stdout, ptsCh, settings.Quality, onUnit)

	e.logger.Info("encoder started",
		slog.String("quality", string(settings.Quality)),
		slog.Int("width", settings.Width),
		slog.Int("height", settings.Height),
		slog.Int("bitrate_bps", settings.BitrateBPS))

	return nil
}

// Submit copies frame into the codec input. If the internal submit queue is
// saturated, the frame is dropped and counted rather than blocking the
// caller.
func (e *Encoder) Submit(f *frame.Frame) error {
	e.mu.Lock()
	running := e.running
	ch := e.submitCh
	e.mu.Unlock()

	if !running {
		return ErrNotEncoding
	}

	select {
	case ch <- f:
		e.framesSubmitted.Add(1)
		return nil
	default:
		e.framesDropped.Add(1)
		return nil
	}
}

// Stop flushes pending output, emits a final keyframe-aligned chunk (via
// ffmpeg's own flush-on-EOF behavior), and closes the codec. Idempotent.
func (e *Encoder) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	cancel := e.cancel
	submitCh := e.submitCh
	done := e.doneCh
	e.running = false
	e.mu.Unlock()

	close(submitCh)

	var waitErr error
	select {
	case waitErr = <-done:
	case <-time.After(5 * time.Second):
	}
	cancel()
	e.wg.Wait()

	if waitErr != nil {
		e.logger.Warn("ffmpeg process exited with error", slog.String("error", waitErr.Error()))
	}
	return nil
}

// Stats returns a snapshot of the current session's counters.
func (e *Encoder) Stats() Stats {
	return Stats{
		FramesSubmitted: e.framesSubmitted.Load(),
		FramesDropped:   e.framesDropped.Load(),
		UnitsEmitted:    e.unitsEmitted.Load(),
	}
}

// writeLoop drains submitted frames into ffmpeg's stdin as raw pixel bytes,
// and records each frame's PTS for later pairing with its emitted access
// unit. Closes stdin when the submit channel is closed, which triggers
// ffmpeg to flush and exit.
func (e *Encoder) writeLoop(stdin io.WriteCloser, ptsCh chan<- time.Duration) {
	defer e.wg.Done()
	defer close(ptsCh)
	defer stdin.Close()

	for f := range e.submitCh {
		if _, err := stdin.Write(f.Pixels); err != nil {
			e.logger.Warn("encoder: stdin write failed", slog.String("error", err.Error()))
			return
		}
		ptsCh <- f.PTS
	}
}

// readLoop parses ffmpeg's Annex-B stdout into access units and invokes
// onUnit for each one, pairing it with the PTS of the frame that produced
// it (one input frame maps to one output access unit for a zerolatency,
// B-frame-free encode).
func (e *Encoder) readLoop(stdout io.Reader, ptsCh <-chan time.Duration, q quality.Quality, onUnit Callback) {
	defer e.wg.Done()

	r := bufio.NewReaderSize(stdout, 1<<20)
	var pending []byte
	var currentAU [][]byte
	lastPTS := time.Duration(0)

	flush := func() {
		if len(currentAU) == 0 {
			return
		}
		isKeyframe := false
		for _, n := range currentAU {
			t := nalType(n)
			if t == nalTypeIDR {
				isKeyframe = true
			}
		}
		pts, ok := <-ptsCh
		if ok {
			lastPTS = pts
		}
		unit := Unit{
			Data:       annexBEncode(currentAU),
			PTS:        lastPTS,
			IsKeyframe: isKeyframe,
			Quality:    q,
		}
		e.unitsEmitted.Add(1)
		onUnit(unit)
		currentAU = nil
	}

	buf := make([]byte, 1<<18)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			var nalus [][]byte
			nalus, pending = splitAnnexB(pending)
			for _, nalu := range nalus {
				t := nalType(nalu)
				if isVCLSlice(t) && len(currentAU) > 0 && hasVCL(currentAU) {
					flush()
				}
				cp := make([]byte, len(nalu))
				copy(cp, nalu)
				currentAU = append(currentAU, cp)
			}
		}
		if err != nil {
			flush()
			if err != io.EOF {
				e.logger.Warn("encoder: stdout read failed", slog.String("error", err.Error()))
			}
			return
		}
	}
}

func hasVCL(au [][]byte) bool {
	for _, n := range au {
		if isVCLSlice(nalType(n)) {
			return true
		}
	}
	return false
}

// ffmpegPixFmt maps our pixel format vocabulary onto ffmpeg's -pix_fmt names.
func ffmpegPixFmt(pf string) string {
	switch frame.PixelFormat(pf) {
	case frame.PixelFormatBGRA:
		return "bgra"
	case frame.PixelFormatRGBA:
		return "rgba"
	case frame.PixelFormatNV12:
		return "nv12"
	default:
		return "bgra"
	}
}
