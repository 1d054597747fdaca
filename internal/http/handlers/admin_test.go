package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cursormirror/cursormirrord/internal/ratelimit"
	"github.com/cursormirror/cursormirrord/internal/requestlog"
	"github.com/cursormirror/cursormirrord/internal/quality"
	"github.com/cursormirror/cursormirrord/internal/segment"
	"github.com/cursormirror/cursormirrord/internal/session"
)

func TestGetStatsAggregatesSubsystems(t *testing.T) {
	engine, err := segment.NewEngine(segment.Config{BaseDir: t.TempDir(), TargetDuration: time.Second})
	require.NoError(t, err)
	require.NoError(t, engine.Start(quality.SD))

	sessionMgr := session.New(session.Config{IdleTimeout: time.Minute})
	_, err = sessionMgr.AcquireStream()
	require.NoError(t, err)

	limiter := ratelimit.New(ratelimit.Config{Enabled: true, RequestsPerMinute: 10})
	limiter.Allow("client-1", "/stream/master.m3u8", false)

	reqLog := requestlog.New(10)
	reqLog.Add(requestlog.Record{Method: "GET", Path: "/health"})

	h := NewAdminHandler([]quality.Quality{quality.SD}, nil, engine, sessionMgr, limiter, reqLog)
	out, err := h.GetStats(context.Background(), &StatsInput{})
	require.NoError(t, err)

	assert.Equal(t, 1, out.Body.ActiveSessions)
	assert.Equal(t, 1, out.Body.RateLimit.TrackedIdentities)
	assert.Len(t, out.Body.RecentRequests, 1)
	assert.True(t, out.Body.SegmentEngine["sd"].Streaming)
}

func TestGetStatsDefaultsRequestLogLimit(t *testing.T) {
	engine, err := segment.NewEngine(segment.Config{BaseDir: t.TempDir(), TargetDuration: time.Second})
	require.NoError(t, err)

	reqLog := requestlog.New(100)
	for i := 0; i < 60; i++ {
		reqLog.Add(requestlog.Record{Path: "/x"})
	}

	h := NewAdminHandler(nil, nil, engine, session.New(session.Config{}), ratelimit.New(ratelimit.Config{}), reqLog)
	out, err := h.GetStats(context.Background(), &StatsInput{})
	require.NoError(t, err)

	assert.Len(t, out.Body.RecentRequests, 50)
}

func TestGetStatsRespectsExplicitRequestLogLimit(t *testing.T) {
	engine, err := segment.NewEngine(segment.Config{BaseDir: t.TempDir(), TargetDuration: time.Second})
	require.NoError(t, err)

	reqLog := requestlog.New(100)
	for i := 0; i < 10; i++ {
		reqLog.Add(requestlog.Record{Path: "/x"})
	}

	h := NewAdminHandler(nil, nil, engine, session.New(session.Config{}), ratelimit.New(ratelimit.Config{}), reqLog)
	out, err := h.GetStats(context.Background(), &StatsInput{RequestLogLimit: 3})
	require.NoError(t, err)

	assert.Len(t, out.Body.RecentRequests, 3)
}

func TestGetStatsFiltersRequestLogByMethodPathAndStatus(t *testing.T) {
	engine, err := segment.NewEngine(segment.Config{BaseDir: t.TempDir(), TargetDuration: time.Second})
	require.NoError(t, err)

	reqLog := requestlog.New(100)
	reqLog.Add(requestlog.Record{Method: "GET", Path: "/stream/master.m3u8", Status: 200})
	reqLog.Add(requestlog.Record{Method: "GET", Path: "/stream/hd/segment0.ts", Status: 404})
	reqLog.Add(requestlog.Record{Method: "POST", Path: "/admin/stats", Status: 200})

	h := NewAdminHandler(nil, nil, engine, session.New(session.Config{}), ratelimit.New(ratelimit.Config{}), reqLog)
	out, err := h.GetStats(context.Background(), &StatsInput{
		RequestLogMethod: "GET",
		RequestLogPath:   "/stream",
		RequestLogStatus: 200,
	})
	require.NoError(t, err)

	require.Len(t, out.Body.RecentRequests, 1)
	assert.Equal(t, "/stream/master.m3u8", out.Body.RecentRequests[0].Path)
}
