// Package ffmpeg wraps the external ffmpeg binary used by the encoder to
// turn raw captured frames into an H.264 elementary stream.
package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cursormirror/cursormirrord/internal/util"
)

// BinaryInfo describes the detected ffmpeg installation.
type BinaryInfo struct {
	Path         string   `json:"path"`
	Version      string   `json:"version"`
	MajorVersion int      `json:"major_version"`
	MinorVersion int      `json:"minor_version"`
	Encoders     []string `json:"encoders,omitempty"`
}

// HasEncoder returns true if the named encoder is available.
func (info *BinaryInfo) HasEncoder(name string) bool {
	return slices.Contains(info.Encoders, name)
}

// SupportsMinVersion returns true if the detected version meets the minimum.
func (info *BinaryInfo) SupportsMinVersion(major, minor int) bool {
	if info.MajorVersion > major {
		return true
	}
	return info.MajorVersion == major && info.MinorVersion >= minor
}

// BinaryDetector locates and caches information about the ffmpeg binary.
type BinaryDetector struct {
	mu           sync.RWMutex
	info         *BinaryInfo
	lastDetected time.Time
	cacheTTL     time.Duration
}

// NewBinaryDetector creates a new binary detector with a default cache TTL.
func NewBinaryDetector() *BinaryDetector {
	return &BinaryDetector{cacheTTL: 5 * time.Minute}
}

// WithCacheTTL overrides the detection cache TTL.
func (d *BinaryDetector) WithCacheTTL(ttl time.Duration) *BinaryDetector {
	d.cacheTTL = ttl
	return d
}

// Detect finds the ffmpeg binary and probes its version and encoder list.
// Results are cached for cacheTTL so repeated calls (e.g. from a health
// handler) don't spawn ffmpeg on every request.
func (d *BinaryDetector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.RLock()
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		info := d.info
		d.mu.RUnlock()
		return info, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		return d.info, nil
	}

	info, err := d.detect(ctx)
	if err != nil {
		return nil, err
	}

	d.info = info
	d.lastDetected = time.Now()
	return info, nil
}

// Clear discards the cached detection result.
func (d *BinaryDetector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = nil
}

func (d *BinaryDetector) detect(ctx context.Context) (*BinaryInfo, error) {
	path, err := util.FindBinary("ffmpeg", "CURSORMIRROR_FFMPEG_BINARY")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	info := &BinaryInfo{Path: path}

	version, err := d.getVersion(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("getting ffmpeg version: %w", err)
	}
	info.Version = version.Full
	info.MajorVersion = version.Major
	info.MinorVersion = version.Minor

	if encoders, err := d.getEncoders(ctx, path); err == nil {
		info.Encoders = encoders
	}

	return info, nil
}

type versionInfo struct {
	Full  string
	Major int
	Minor int
}

func (d *BinaryDetector) getVersion(ctx context.Context, ffmpegPath string) (*versionInfo, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	info := &versionInfo{}
	for _, line := range strings.Split(string(output), "\n") {
		if !strings.HasPrefix(line, "ffmpeg version") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}
		info.Full = parts[2]
		versionRegex := regexp.MustCompile(`^n?(\d+)\.(\d+)`)
		if matches := versionRegex.FindStringSubmatch(parts[2]); len(matches) >= 3 {
			info.Major, _ = strconv.Atoi(matches[1])
			info.Minor, _ = strconv.Atoi(matches[2])
		}
		break
	}

	if info.Full == "" {
		return nil, fmt.Errorf("failed to parse ffmpeg version")
	}

	return info, nil
}

func (d *BinaryDetector) getEncoders(ctx context.Context, ffmpegPath string) ([]string, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, "-encoders", "-hide_banner")
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var encoders []string
	inList := false
	for _, line := range strings.Split(string(output), "\n") {
		if strings.Contains(line, "------") {
			inList = true
			continue
		}
		if !inList {
			continue
		}
		line = strings.TrimLeft(line, " ")
		if len(line) < 8 || (line[0] != 'V' && line[0] != 'A' && line[0] != 'S') {
			continue
		}
		fields := strings.Fields(strings.TrimSpace(line[6:]))
		if len(fields) >= 1 && fields[0] != "" {
			encoders = append(encoders, fields[0])
		}
	}

	return encoders, nil
}
