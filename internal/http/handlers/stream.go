package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cursormirror/cursormirrord/internal/playlist"
	"github.com/cursormirror/cursormirrord/internal/quality"
	"github.com/cursormirror/cursormirrord/internal/segment"
)

// StreamHandler serves the HLS playlist and segment routes directly on the
// chi router rather than through Huma: Huma's response envelope commits
// status and headers before the handler body runs, which doesn't fit the
// content-type/length control these routes need over raw playlist text and
// segment bytes.
type StreamHandler struct {
	Engine     *segment.Engine
	Qualities  []quality.Quality
	BaseURL    string
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(engine *segment.Engine, qualities []quality.Quality, baseURL string) *StreamHandler {
	return &StreamHandler{Engine: engine, Qualities: qualities, BaseURL: baseURL}
}

// Master serves /stream/master.m3u8.
func (h *StreamHandler) Master(w http.ResponseWriter, r *http.Request) {
	streaming := false
	variants := make([]playlist.Variant, 0, len(h.Qualities))
	for _, q := range h.Qualities {
		if h.Engine.IsStreaming(q) {
			streaming = true
		}
		variants = append(variants, playlist.Variant{
			Quality:  q,
			MediaURL: h.mediaURL(q),
		})
	}

	if !streaming {
		writeReason(w, http.StatusServiceUnavailable, "not streaming")
		return
	}

	body := playlist.Master(variants)
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// Media serves /stream/:quality/index.m3u8.
func (h *StreamHandler) Media(w http.ResponseWriter, r *http.Request) {
	q, err := quality.Parse(chi.URLParam(r, "quality"))
	if err != nil {
		writeReason(w, http.StatusBadRequest, "unknown quality")
		return
	}

	view, ok := h.Engine.Snapshot(q)
	if !ok || len(view.Segments) == 0 {
		writeReason(w, http.StatusNotFound, "no segments")
		return
	}

	body := playlist.Media(view, h.BaseURL)
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// Segment serves /stream/:quality/:segment.
func (h *StreamHandler) Segment(w http.ResponseWriter, r *http.Request) {
	q, err := quality.Parse(chi.URLParam(r, "quality"))
	if err != nil {
		writeReason(w, http.StatusNotFound, "unknown quality")
		return
	}

	filename := chi.URLParam(r, "segment")
	data, err := h.Engine.ReadSegment(q, filename)
	if err != nil {
		switch {
		case errors.Is(err, segment.ErrNotReady):
			writeReason(w, http.StatusNotFound, "segment not ready")
		case errors.Is(err, segment.ErrSegmentNotFound), errors.Is(err, segment.ErrUnknownQuality):
			writeReason(w, http.StatusNotFound, "segment not found")
		default:
			writeReason(w, http.StatusInternalServerError, "segment read failed")
		}
		return
	}

	w.Header().Set("Content-Type", "video/MP2T")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// mediaURL returns each variant's playlist location relative to the master
// playlist's own location (e.g. "hd/index.m3u8"), not an absolute path:
// clients resolve #EXT-X-STREAM-INF URIs against the playlist that
// contains them, per RFC 8216 §4.3.4.2.
func (h *StreamHandler) mediaURL(q quality.Quality) string {
	return string(q) + "/index.m3u8"
}

// writeReason writes a short JSON reason string alongside status, per the
// "HTTP responses always include a short reason string" requirement.
func writeReason(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(`{"reason":"` + reason + `"}`))
}
