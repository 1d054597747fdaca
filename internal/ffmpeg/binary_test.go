package ffmpeg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewBinaryDetectorDefaultCacheTTL(t *testing.T) {
	d := NewBinaryDetector()
	assert.Equal(t, 5*time.Minute, d.cacheTTL)
}

func TestBinaryDetectorWithCacheTTLOverrides(t *testing.T) {
	d := NewBinaryDetector().WithCacheTTL(time.Second)
	assert.Equal(t, time.Second, d.cacheTTL)
}

func TestBinaryDetectorClearDiscardsCache(t *testing.T) {
	d := NewBinaryDetector()
	d.info = &BinaryInfo{Path: "/usr/bin/ffmpeg"}
	d.lastDetected = time.Now()

	d.Clear()

	assert.Nil(t, d.info)
}
