package segment

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cursormirror/cursormirrord/internal/encoder"
	"github.com/cursormirror/cursormirrord/internal/quality"
)

func newTestEngine(t *testing.T, retention int, targetDuration time.Duration) *Engine {
	t.Helper()
	e, err := NewEngine(Config{
		BaseDir:        t.TempDir(),
		Retention:      retention,
		TargetDuration: targetDuration,
	})
	require.NoError(t, err)
	return e
}

func sps() []byte { return []byte{0x67, 0x01, 0x02} }
func pps() []byte { return []byte{0x68, 0x01} }
func idr(pts time.Duration) encoder.Unit {
	return encoder.Unit{Data: append(append([]byte{}, sps()...), append(pps(), 0x65, 0xAA)...), PTS: pts, IsKeyframe: true, Quality: quality.SD}
}
func nonIDR(pts time.Duration) encoder.Unit {
	return encoder.Unit{Data: []byte{0x41, 0xBB}, PTS: pts, IsKeyframe: false, Quality: quality.SD}
}

func TestNewEngineRejectsEmptyBaseDir(t *testing.T) {
	_, err := NewEngine(Config{})
	assert.ErrorIs(t, err, ErrInvalidDirectory)
}

func TestSubmitWithoutStartReturnsNoActiveSegment(t *testing.T) {
	e := newTestEngine(t, 3, time.Second)
	err := e.Submit(idr(0))
	assert.ErrorIs(t, err, ErrNoActiveSegment)
}

func TestStartCreatesQualityDirectory(t *testing.T) {
	e := newTestEngine(t, 3, time.Second)
	require.NoError(t, e.Start(quality.SD))
	assert.True(t, e.IsStreaming(quality.SD))

	info, err := os.Stat(filepath.Join(e.sandbox.BaseDir(), quality.SD.Dir()))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSubmitOpensSegmentOnFirstKeyframe(t *testing.T) {
	e := newTestEngine(t, 3, time.Second)
	require.NoError(t, e.Start(quality.SD))

	require.NoError(t, e.Submit(idr(0)))
	view, ok := e.Snapshot(quality.SD)
	require.True(t, ok)
	assert.Empty(t, view.Segments, "segment is still open, not yet in the snapshot")
}

func TestSubmitIgnoresNonKeyframeBeforeFirstSegment(t *testing.T) {
	e := newTestEngine(t, 3, time.Second)
	require.NoError(t, e.Start(quality.SD))

	require.NoError(t, e.Submit(nonIDR(0)))
	view, ok := e.Snapshot(quality.SD)
	require.True(t, ok)
	assert.Empty(t, view.Segments)
}

func TestSubmitRotatesOnKeyframeAfterTargetDuration(t *testing.T) {
	e := newTestEngine(t, 3, 2*time.Second)
	require.NoError(t, e.Start(quality.SD))

	require.NoError(t, e.Submit(idr(0)))
	require.NoError(t, e.Submit(nonIDR(time.Second)))
	require.NoError(t, e.Submit(idr(3*time.Second)))

	view, ok := e.Snapshot(quality.SD)
	require.True(t, ok)
	require.Len(t, view.Segments, 1)
	assert.Equal(t, uint64(0), view.Segments[0].Sequence)
}

func TestSubmitUnknownQualityReturnsNoActiveSegment(t *testing.T) {
	e := newTestEngine(t, 3, time.Second)
	require.NoError(t, e.Start(quality.SD))

	err := e.Submit(encoder.Unit{Quality: quality.HD, IsKeyframe: true})
	assert.ErrorIs(t, err, ErrNoActiveSegment)
}

func TestRetentionEvictsOldestSegment(t *testing.T) {
	e := newTestEngine(t, 2, time.Second)
	require.NoError(t, e.Start(quality.SD))

	require.NoError(t, e.Submit(idr(0)))
	require.NoError(t, e.Submit(idr(2*time.Second)))
	require.NoError(t, e.Submit(idr(4*time.Second)))
	require.NoError(t, e.Submit(idr(6*time.Second)))

	view, ok := e.Snapshot(quality.SD)
	require.True(t, ok)
	require.Len(t, view.Segments, 2)
	assert.Equal(t, uint64(1), view.Segments[0].Sequence)
	assert.Equal(t, uint64(2), view.Segments[1].Sequence)
	assert.Equal(t, uint64(1), view.MediaSequenceBase)
}

func TestStopClosesActiveSegmentAndRecordsIt(t *testing.T) {
	e := newTestEngine(t, 3, time.Second)
	require.NoError(t, e.Start(quality.SD))
	require.NoError(t, e.Submit(idr(0)))

	require.NoError(t, e.Stop(quality.SD))
	assert.False(t, e.IsStreaming(quality.SD))

	view, ok := e.Snapshot(quality.SD)
	require.True(t, ok)
	require.Len(t, view.Segments, 1)
}

func TestStopIsIdempotent(t *testing.T) {
	e := newTestEngine(t, 3, time.Second)
	require.NoError(t, e.Start(quality.SD))
	require.NoError(t, e.Stop(quality.SD))
	assert.NoError(t, e.Stop(quality.SD))
}

func TestStopOnUnknownQualityIsNoop(t *testing.T) {
	e := newTestEngine(t, 3, time.Second)
	assert.NoError(t, e.Stop(quality.HD))
}

func TestReadSegmentRejectsInFlightSegment(t *testing.T) {
	e := newTestEngine(t, 3, time.Second)
	require.NoError(t, e.Start(quality.SD))
	require.NoError(t, e.Submit(idr(0)))

	_, err := e.ReadSegment(quality.SD, "segment0.ts")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestReadSegmentReturnsClosedSegmentBytes(t *testing.T) {
	e := newTestEngine(t, 3, time.Second)
	require.NoError(t, e.Start(quality.SD))
	require.NoError(t, e.Submit(idr(0)))
	require.NoError(t, e.Stop(quality.SD))

	data, err := e.ReadSegment(quality.SD, "segment0.ts")
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestReadSegmentUnknownFilename(t *testing.T) {
	e := newTestEngine(t, 3, time.Second)
	require.NoError(t, e.Start(quality.SD))
	require.NoError(t, e.Submit(idr(0)))
	require.NoError(t, e.Stop(quality.SD))

	_, err := e.ReadSegment(quality.SD, "segment99.ts")
	assert.ErrorIs(t, err, ErrSegmentNotFound)
}

func TestReadSegmentUnknownQuality(t *testing.T) {
	e := newTestEngine(t, 3, time.Second)
	_, err := e.ReadSegment(quality.HD, "segment0.ts")
	assert.ErrorIs(t, err, ErrUnknownQuality)
}

func TestIsStreamingFalseForUnknownQuality(t *testing.T) {
	e := newTestEngine(t, 3, time.Second)
	assert.False(t, e.IsStreaming(quality.FullHD))
}
