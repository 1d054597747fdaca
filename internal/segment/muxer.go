package segment

import (
	"fmt"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
)

// MPEG-TS PID assignment. A single video-only program is sufficient since
// the streaming core never muxes audio.
const tsVideoPID uint16 = 0x0100

// tsMuxer muxes an H.264 Annex-B access-unit stream into a single MPEG-TS
// file. Unlike a continuous live relay, each HLS segment is an independent
// standalone .ts file a player demuxes on its own, so every segment gets
// its own muxer instance (and its own fresh PAT/PMT) rather than sharing
// continuity counters across rotations.
type tsMuxer struct {
	writer      *mpegts.Writer
	videoTrack  *mpegts.Track
	initialized bool
	params      keyframeParams
}

func newTSMuxer(w io.Writer) *tsMuxer {
	return &tsMuxer{
		videoTrack: &mpegts.Track{PID: tsVideoPID, Codec: &mpegts.CodecH264{}},
		writer:     &mpegts.Writer{W: w, Tracks: nil},
	}
}

func (m *tsMuxer) ensureInitialized() error {
	if m.initialized {
		return nil
	}
	m.writer.Tracks = []*mpegts.Track{m.videoTrack}
	if err := m.writer.Initialize(); err != nil {
		return fmt.Errorf("initializing mpegts writer: %w", err)
	}
	m.initialized = true
	return nil
}

// writeUnit writes one encoded access unit to the segment file.
func (m *tsMuxer) writeUnit(pts, dts int64, data []byte, isKeyframe bool) error {
	if err := m.ensureInitialized(); err != nil {
		return err
	}

	au := dataToAccessUnit(data)
	if len(au) == 0 {
		return nil
	}
	m.params.observe(au)
	if isKeyframe {
		au = m.params.prependIfMissing(au)
	}
	return m.writer.WriteH264(m.videoTrack, pts, dts, au)
}

// dataToAccessUnit converts a chunk of encoder output (Annex-B, the only
// format the encoder package ever produces) into mediacommon's access-unit
// representation.
func dataToAccessUnit(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	var au h264.AnnexB
	if err := au.Unmarshal(data); err == nil {
		return au
	}
	return [][]byte{data}
}
