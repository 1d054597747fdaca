package segment

import (
	"fmt"
	"os"
	"path"
	"time"

	"github.com/cursormirror/cursormirrord/internal/encoder"
	"github.com/cursormirror/cursormirrord/internal/quality"
	"github.com/cursormirror/cursormirrord/internal/storage"
)

// Writer owns one open segment file. Writers are single-use: open, write
// zero or more chunks, close exactly once.
type Writer struct {
	sandbox  *storage.Sandbox
	muxer    *tsMuxer
	file     *os.File
	path     string
	filename string
	sequence uint64
	quality  quality.Quality

	firstPTS time.Duration
	lastPTS  time.Duration
	havePTS  bool
}

// openWriter creates an empty MPEG-TS file for a new segment. dir is the
// quality's subdirectory relative to sandbox's base directory.
func openWriter(sandbox *storage.Sandbox, dir string, q quality.Quality, sequence uint64) (*Writer, error) {
	filename := fmt.Sprintf("segment%d.ts", sequence)
	relPath := path.Join(dir, filename)

	f, err := sandbox.OpenFile(relPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0640)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrSegmentIO, relPath, err)
	}

	return &Writer{
		sandbox:  sandbox,
		muxer:    newTSMuxer(f),
		file:     f,
		path:     relPath,
		filename: filename,
		sequence: sequence,
		quality:  q,
	}, nil
}

// write appends an encoded unit's bytes to the segment.
func (w *Writer) write(unit encoder.Unit) error {
	ts := ptsTo90k(unit.PTS)
	if err := w.muxer.writeUnit(ts, ts, unit.Data, unit.IsKeyframe); err != nil {
		return fmt.Errorf("%w: %v", ErrSegmentIO, err)
	}
	if !w.havePTS {
		w.firstPTS = unit.PTS
		w.havePTS = true
	}
	w.lastPTS = unit.PTS
	return nil
}

// close flushes, fsyncs, and closes the file, returning the finalized
// Segment record. duration is the wall time between the first and last PTS
// written.
func (w *Writer) close(discontinuity bool) (Segment, error) {
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return Segment{}, fmt.Errorf("%w: syncing %s: %v", ErrSegmentIO, w.path, err)
	}
	if err := w.file.Close(); err != nil {
		return Segment{}, fmt.Errorf("%w: closing %s: %v", ErrSegmentIO, w.path, err)
	}

	dur := w.lastPTS - w.firstPTS
	if dur <= 0 {
		dur = time.Millisecond
	}

	return Segment{
		Quality:         w.quality,
		Sequence:        w.sequence,
		Filename:        w.filename,
		Path:            w.path,
		Duration:        dur,
		StartPTS:        w.firstPTS,
		IsDiscontinuity: discontinuity,
	}, nil
}

// abort discards a partially written segment: it is never appended to the
// retained segment list.
func (w *Writer) abort() {
	w.file.Close()
	w.sandbox.Remove(w.path)
}

// ptsTo90k converts a Go duration into MPEG-TS's 90kHz timestamp units.
func ptsTo90k(d time.Duration) int64 {
	return int64(d) * 90000 / int64(time.Second)
}
