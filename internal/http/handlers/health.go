// Package handlers provides the Huma-backed admin/health/version HTTP API
// handlers, plus the raw chi handlers for the playlist and segment routes.
package handlers

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/cursormirror/cursormirrord/internal/encoder"
	"github.com/cursormirror/cursormirrord/internal/quality"
	"github.com/cursormirror/cursormirrord/internal/segment"
)

// HealthHandler reports process and streaming health: no persistent
// storage or circuit breakers in this domain, so unlike tvarr's health
// handler this one has nothing to say about a database — instead it
// reports on the encoder and segment engine, the subsystems that can
// actually degrade here.
type HealthHandler struct {
	version   string
	startTime time.Time
	qualities []quality.Quality
	engine    *segment.Engine
	enc       *encoder.Encoder
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string, qualities []quality.Quality, engine *segment.Engine, enc *encoder.Encoder) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		qualities: qualities,
		engine:    engine,
		enc:       enc,
	}
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// HealthResponse is the health check response body.
type HealthResponse struct {
	Status        string                    `json:"status"`
	Timestamp     string                    `json:"timestamp"`
	Version       string                    `json:"version"`
	UptimeSeconds float64                   `json:"uptime_seconds"`
	CPU           CPUInfo                   `json:"cpu"`
	Memory        MemoryInfo                `json:"memory"`
	Encoder       EncoderHealth             `json:"encoder"`
	Streaming     map[string]QualityHealth  `json:"streaming"`
}

// CPUInfo is system CPU load information.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo is system and process memory usage.
type MemoryInfo struct {
	TotalMemoryMB     float64 `json:"total_memory_mb"`
	UsedMemoryMB      float64 `json:"used_memory_mb"`
	FreeMemoryMB      float64 `json:"free_memory_mb"`
	AvailableMemoryMB float64 `json:"available_memory_mb"`
	ProcessMemoryMB   float64 `json:"process_memory_mb"`
}

// EncoderHealth reports the ffmpeg subprocess's drop/throughput counters.
type EncoderHealth struct {
	FramesSubmitted uint64 `json:"frames_submitted"`
	FramesDropped   uint64 `json:"frames_dropped"`
	UnitsEmitted    uint64 `json:"units_emitted"`
}

// QualityHealth reports one quality's segment-engine state.
type QualityHealth struct {
	Streaming     bool `json:"streaming"`
	SegmentCount  int  `json:"segment_count"`
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns process, CPU/memory, and streaming pipeline health",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(_ context.Context, _ *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	cpuInfo := h.getCPUInfo()
	memInfo := h.getMemoryInfo()

	var encHealth EncoderHealth
	if h.enc != nil {
		stats := h.enc.Stats()
		encHealth = EncoderHealth{
			FramesSubmitted: stats.FramesSubmitted,
			FramesDropped:   stats.FramesDropped,
			UnitsEmitted:    stats.UnitsEmitted,
		}
	}

	streaming := make(map[string]QualityHealth, len(h.qualities))
	for _, q := range h.qualities {
		segCount := 0
		if view, ok := h.engine.Snapshot(q); ok {
			segCount = len(view.Segments)
		}
		streaming[string(q)] = QualityHealth{
			Streaming:    h.engine.IsStreaming(q),
			SegmentCount: segCount,
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        "healthy",
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			UptimeSeconds: uptime.Seconds(),
			CPU:           cpuInfo,
			Memory:        memInfo,
			Encoder:       encHealth,
			Streaming:     streaming,
		},
	}, nil
}

// getCPUInfo returns CPU load information.
func (h *HealthHandler) getCPUInfo() CPUInfo {
	cores := runtime.NumCPU()
	info := CPUInfo{Cores: cores}

	loadAvg, err := load.Avg()
	if err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15
		if cores > 0 {
			info.LoadPercentage1Min = (loadAvg.Load1 / float64(cores)) * 100
		}
	}

	return info
}

// getMemoryInfo returns system and process memory usage information.
func (h *HealthHandler) getMemoryInfo() MemoryInfo {
	info := MemoryInfo{}

	vmStat, err := mem.VirtualMemory()
	if err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		info.UsedMemoryMB = float64(vmStat.Used) / 1024 / 1024
		info.FreeMemoryMB = float64(vmStat.Free) / 1024 / 1024
		info.AvailableMemoryMB = float64(vmStat.Available) / 1024 / 1024
	}

	pid := int32(os.Getpid())
	proc, err := process.NewProcess(pid)
	if err == nil {
		if procMem, err := proc.MemoryInfo(); err == nil && procMem != nil {
			info.ProcessMemoryMB = float64(procMem.RSS) / 1024 / 1024
		}
	}

	return info
}
