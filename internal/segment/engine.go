package segment

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cursormirror/cursormirrord/internal/encoder"
	"github.com/cursormirror/cursormirrord/internal/playlist"
	"github.com/cursormirror/cursormirrord/internal/quality"
	"github.com/cursormirror/cursormirrord/internal/storage"
)

// state is the per-quality segment-engine state machine:
// Idle -> Opening -> Writing <-> Rotating -> Draining -> Idle.
// Rotating is folded into the Writing->Writing transition performed by
// rotate(); it is not a distinct resting state.
type state int

const (
	stateIdle state = iota
	stateOpening
	stateWriting
	stateDraining
)

// maxConsecutiveFailures is how many write failures in a row raise
// ErrEngineDegraded to the host.
const maxConsecutiveFailures = 3

// graceFactor is how far past target_duration a segment may run without a
// keyframe before the engine logs a warning (it never forces a split on a
// non-keyframe).
const graceFactor = 1.5

// Config configures the Engine.
type Config struct {
	// BaseDir is the root directory for this streaming session. Each
	// quality gets a subdirectory named after Quality.Dir().
	BaseDir string
	// Retention is the maximum number of closed segments kept per quality.
	Retention int
	// TargetDuration is the target segment duration.
	TargetDuration time.Duration
	Logger         *slog.Logger
}

type qualityState struct {
	mu sync.Mutex

	state  state
	dir    string
	writer *Writer

	segments          []Segment
	nextSequence      uint64
	mediaSequenceBase uint64
	segmentStartPTS   time.Duration

	warnedGrace         bool
	consecutiveFailures int
}

// Engine rotates an encoded unit stream into MPEG-TS segment files per
// quality, maintaining a bounded retention window. All segment I/O goes
// through a storage.Sandbox rooted at cfg.BaseDir, so a path-traversal bug
// in a quality name or filename can never escape it.
type Engine struct {
	cfg     Config
	sandbox *storage.Sandbox

	mu        sync.RWMutex
	qualities map[quality.Quality]*qualityState
}

// NewEngine creates an Engine rooted at cfg.BaseDir.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.BaseDir == "" {
		return nil, ErrInvalidDirectory
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 5
	}
	if cfg.TargetDuration <= 0 {
		cfg.TargetDuration = 4 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	sandbox, err := storage.NewSandbox(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDirectory, err)
	}
	return &Engine{cfg: cfg, sandbox: sandbox, qualities: make(map[quality.Quality]*qualityState)}, nil
}

// Start begins a new streaming session for q (Idle -> Opening), recreating
// its on-disk subdirectory empty.
func (e *Engine) Start(q quality.Quality) error {
	dir := q.Dir()
	if err := e.sandbox.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrInvalidDirectory, err)
	}
	if err := e.sandbox.MkdirAll(dir); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDirectory, err)
	}

	qs := &qualityState{state: stateOpening, dir: dir}
	e.mu.Lock()
	e.qualities[q] = qs
	e.mu.Unlock()
	return nil
}

// Stop closes the current segment (if any) and transitions the quality back
// to Idle (Writing -> Draining -> Idle). Idempotent.
func (e *Engine) Stop(q quality.Quality) error {
	qs := e.quality(q)
	if qs == nil {
		return nil
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()

	if qs.state == stateIdle {
		return nil
	}
	qs.state = stateDraining

	if qs.writer != nil {
		seg, err := qs.writer.close(false)
		qs.writer = nil
		if err != nil {
			e.cfg.Logger.Warn("segment: final close failed", slog.String("error", err.Error()))
		} else {
			qs.appendAndEvict(seg, e.cfg.Retention, e.sandbox)
		}
	}

	qs.state = stateIdle
	return nil
}

// Submit delivers one encoded unit to the engine. The caller (the
// encoder->engine pump) is the single producer for a given quality.
func (e *Engine) Submit(unit encoder.Unit) error {
	qs := e.quality(unit.Quality)
	if qs == nil {
		return ErrNoActiveSegment
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()

	switch qs.state {
	case stateIdle, stateDraining:
		return ErrNoActiveSegment

	case stateOpening:
		if !unit.IsKeyframe {
			// The encoder guarantees the first unit is a keyframe; this is
			// just defensive in case that guarantee is ever violated.
			return nil
		}
		if err := e.openSegment(qs, unit); err != nil {
			return e.degrade(qs, err)
		}
		qs.state = stateWriting
		return nil

	case stateWriting:
		elapsed := unit.PTS - qs.segmentStartPTS
		if unit.IsKeyframe && elapsed >= e.cfg.TargetDuration {
			if err := e.rotate(qs, unit); err != nil {
				return e.degrade(qs, err)
			}
			return nil
		}
		e.checkGrace(qs, elapsed)
		if err := qs.writer.write(unit); err != nil {
			return e.degrade(qs, err)
		}
		qs.consecutiveFailures = 0
		return nil
	}
	return nil
}

func (e *Engine) openSegment(qs *qualityState, unit encoder.Unit) error {
	w, err := openWriter(e.sandbox, qs.dir, unit.Quality, qs.nextSequence)
	if err != nil {
		return err
	}
	qs.nextSequence++
	qs.writer = w
	qs.segmentStartPTS = unit.PTS
	qs.warnedGrace = false
	return w.write(unit)
}

// rotate closes the current segment at a keyframe boundary, evicts from the
// retention window head if necessary, and opens the next segment with unit
// as its first chunk.
func (e *Engine) rotate(qs *qualityState, unit encoder.Unit) error {
	seg, err := qs.writer.close(false)
	if err != nil {
		qs.writer.abort()
		qs.writer = nil
		return err
	}
	qs.appendAndEvict(seg, e.cfg.Retention, e.sandbox)
	return e.openSegment(qs, unit)
}

func (qs *qualityState) appendAndEvict(seg Segment, retention int, sandbox *storage.Sandbox) {
	qs.segments = append(qs.segments, seg)
	for len(qs.segments) > retention {
		evicted := qs.segments[0]
		qs.segments = qs.segments[1:]
		sandbox.Remove(evicted.Path)
		qs.mediaSequenceBase++
	}
}

// checkGrace logs a warning (at most once per segment) if the current
// segment has run past 1.5x the target duration without a keyframe arriving
// to close it. It never forces a split on a non-keyframe.
func (e *Engine) checkGrace(qs *qualityState, elapsed time.Duration) {
	if qs.warnedGrace {
		return
	}
	grace := time.Duration(float64(e.cfg.TargetDuration) * graceFactor)
	if elapsed >= grace {
		e.cfg.Logger.Warn("segment exceeded grace period without a keyframe",
			slog.Duration("elapsed", elapsed),
			slog.Duration("target", e.cfg.TargetDuration))
		qs.warnedGrace = true
	}
}

// degrade handles a write failure: the current segment is aborted and
// discarded (never appended), and the engine attempts to reopen on the next
// keyframe. After maxConsecutiveFailures in a row it surfaces
// ErrEngineDegraded to the host.
func (e *Engine) degrade(qs *qualityState, cause error) error {
	qs.consecutiveFailures++
	if qs.writer != nil {
		qs.writer.abort()
		qs.writer = nil
	}
	qs.state = stateOpening

	if qs.consecutiveFailures >= maxConsecutiveFailures {
		return fmt.Errorf("%w: %v", ErrEngineDegraded, cause)
	}
	return cause
}

// ReadSegment returns the bytes of a live segment. Segments currently being
// written are not served (ErrNotReady); evicted or unknown segments return
// ErrSegmentNotFound.
func (e *Engine) ReadSegment(q quality.Quality, filename string) ([]byte, error) {
	qs := e.quality(q)
	if qs == nil {
		return nil, ErrUnknownQuality
	}

	qs.mu.Lock()
	if qs.writer != nil && qs.writer.filename == filename {
		qs.mu.Unlock()
		return nil, ErrNotReady
	}
	var path string
	found := false
	for _, s := range qs.segments {
		if s.Filename == filename {
			path, found = s.Path, true
			break
		}
	}
	qs.mu.Unlock()

	if !found {
		return nil, ErrSegmentNotFound
	}
	data, err := e.sandbox.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSegmentNotFound, err)
	}
	return data, nil
}

// Snapshot returns a read-only view of q's current segment list for
// playlist generation, taken under a brief lock so no caller ever observes
// a mid-rotation tear.
func (e *Engine) Snapshot(q quality.Quality) (playlist.View, bool) {
	qs := e.quality(q)
	if qs == nil {
		return playlist.View{}, false
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()

	infos := make([]playlist.SegmentInfo, len(qs.segments))
	for i, s := range qs.segments {
		infos[i] = playlist.SegmentInfo{
			Sequence:        s.Sequence,
			Filename:        s.Filename,
			Duration:        s.Duration,
			IsDiscontinuity: s.IsDiscontinuity,
		}
	}
	return playlist.View{
		Quality:           q,
		Segments:          infos,
		MediaSequenceBase: qs.mediaSequenceBase,
		TargetDuration:    e.cfg.TargetDuration,
	}, true
}

// IsStreaming reports whether q has an active (non-Idle) session.
func (e *Engine) IsStreaming(q quality.Quality) bool {
	qs := e.quality(q)
	if qs == nil {
		return false
	}
	qs.mu.Lock()
	defer qs.mu.Unlock()
	return qs.state != stateIdle
}

func (e *Engine) quality(q quality.Quality) *qualityState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.qualities[q]
}
