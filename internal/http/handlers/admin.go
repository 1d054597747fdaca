package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/cursormirror/cursormirrord/internal/encoder"
	"github.com/cursormirror/cursormirrord/internal/quality"
	"github.com/cursormirror/cursormirrord/internal/ratelimit"
	"github.com/cursormirror/cursormirrord/internal/requestlog"
	"github.com/cursormirror/cursormirrord/internal/segment"
	"github.com/cursormirror/cursormirrord/internal/session"
	"github.com/cursormirror/cursormirrord/internal/version"
)

// VersionHandler serves /version.
type VersionHandler struct{}

// VersionInput is the (empty) input for the version endpoint.
type VersionInput struct{}

// VersionOutput is the output for the version endpoint.
type VersionOutput struct {
	Body version.Info
}

// Register registers the version route with the API.
func (h *VersionHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getVersion",
		Method:      "GET",
		Path:        "/version",
		Summary:     "Version information",
		Tags:        []string{"System"},
	}, h.GetVersion)
}

// GetVersion returns build version information.
func (h *VersionHandler) GetVersion(_ context.Context, _ *VersionInput) (*VersionOutput, error) {
	return &VersionOutput{Body: version.GetInfo()}, nil
}

// AdminHandler serves the (ADDED) /admin/stats surface aggregating the
// internal state of every subsystem that can't otherwise be observed from
// outside the process: encoder drop counters, per-quality segment engine
// state, rate-limiter identity counts, and the recent request log.
type AdminHandler struct {
	qualities   []quality.Quality
	enc         *encoder.Encoder
	engine      *segment.Engine
	sessionMgr  *session.Manager
	limiter     *ratelimit.Limiter
	reqLog      *requestlog.Log
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	qualities []quality.Quality,
	enc *encoder.Encoder,
	engine *segment.Engine,
	sessionMgr *session.Manager,
	limiter *ratelimit.Limiter,
	reqLog *requestlog.Log,
) *AdminHandler {
	return &AdminHandler{
		qualities:  qualities,
		enc:        enc,
		engine:     engine,
		sessionMgr: sessionMgr,
		limiter:    limiter,
		reqLog:     reqLog,
	}
}

// StatsInput is the input for /admin/stats. The request-log filter fields
// narrow RecentRequests to matching records; an empty field imposes no
// constraint on that dimension.
type StatsInput struct {
	RequestLogLimit  int    `query:"request_log_limit" doc:"max recent requests to include (default 50)"`
	RequestLogMethod string `query:"request_log_method" doc:"filter recent requests to this HTTP method"`
	RequestLogPath   string `query:"request_log_path" doc:"filter recent requests to this path or path prefix"`
	RequestLogStatus int    `query:"request_log_status" doc:"filter recent requests to this exact status code"`
}

// StatsOutput is the output for /admin/stats.
type StatsOutput struct {
	Body StatsResponse
}

// StatsResponse aggregates cross-subsystem operational state.
type StatsResponse struct {
	Encoder        EncoderHealth                   `json:"encoder"`
	SegmentEngine  map[string]QualityHealth         `json:"segment_engine"`
	ActiveSessions int                              `json:"active_sessions"`
	RateLimit      RateLimitStats                   `json:"rate_limit"`
	RecentRequests []requestlog.Record               `json:"recent_requests"`
}

// RateLimitStats summarizes RateLimiter state for the admin surface.
type RateLimitStats struct {
	TrackedIdentities int `json:"tracked_identities"`
}

// Register registers the admin stats route with the API. api is expected to
// be mounted under an "/admin" prefix (see http.Server.MountAPI), so the
// operation path here is relative to that prefix.
func (h *AdminHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getAdminStats",
		Method:      "GET",
		Path:        "/stats",
		Summary:     "Admin operational stats",
		Description: "Encoder drop counters, segment engine state, rate-limiter identity counts, and recent request log",
		Tags:        []string{"Admin"},
	}, h.GetStats)
}

// GetStats returns the aggregated admin stats snapshot.
func (h *AdminHandler) GetStats(_ context.Context, in *StatsInput) (*StatsOutput, error) {
	var encHealth EncoderHealth
	if h.enc != nil {
		stats := h.enc.Stats()
		encHealth = EncoderHealth{
			FramesSubmitted: stats.FramesSubmitted,
			FramesDropped:   stats.FramesDropped,
			UnitsEmitted:    stats.UnitsEmitted,
		}
	}

	engineHealth := make(map[string]QualityHealth, len(h.qualities))
	for _, q := range h.qualities {
		segCount := 0
		if view, ok := h.engine.Snapshot(q); ok {
			segCount = len(view.Segments)
		}
		engineHealth[string(q)] = QualityHealth{
			Streaming:    h.engine.IsStreaming(q),
			SegmentCount: segCount,
		}
	}

	limit := in.RequestLogLimit
	if limit <= 0 {
		limit = 50
	}
	filter := requestlog.Filter{
		Method: in.RequestLogMethod,
		Path:   in.RequestLogPath,
		Status: in.RequestLogStatus,
	}

	return &StatsOutput{
		Body: StatsResponse{
			Encoder:        encHealth,
			SegmentEngine:  engineHealth,
			ActiveSessions: h.sessionMgr.ActiveCount(),
			RateLimit:      RateLimitStats{TrackedIdentities: h.limiter.IdentityCount()},
			RecentRequests: h.reqLog.Query(filter, limit),
		},
	}, nil
}
