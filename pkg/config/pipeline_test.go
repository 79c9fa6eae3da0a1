package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResolution(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		wantW      int
		wantH      int
	}{
		{"valid", "1280x720", 1280, 720},
		{"valid uppercase", "1920X1080", 1920, 1080},
		{"malformed falls back", "not-a-resolution", defaultWidth, defaultHeight},
		{"zero falls back", "0x0", defaultWidth, defaultHeight},
		{"empty falls back", "", defaultWidth, defaultHeight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := ParseResolution(tt.in)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestDerivePipelineConfig(t *testing.T) {
	s := Defaults()
	s.ClipResolution = "1280x720"

	pc, err := DerivePipelineConfig(s, "/home/alice")
	require.NoError(t, err)

	assert.Equal(t, 1280, pc.Width)
	assert.Equal(t, 720, pc.Height)
	assert.Equal(t, 120*time.Second, pc.ClipDuration)
	assert.Equal(t, "/home/alice/Videos/wayclip", pc.OutputDir)
	assert.InDelta(t, 1.0, pc.MicVolume, 0.001)
	assert.InDelta(t, 0.75, pc.BgVolume, 0.001)
}

func TestDerivePipelineConfigRequiresHome(t *testing.T) {
	_, err := DerivePipelineConfig(Defaults(), "")
	assert.Error(t, err)
}

func TestFormatStrftime(t *testing.T) {
	tm := time.Date(2026, 3, 5, 14, 7, 9, 0, time.UTC)
	got := FormatStrftime("wayclip_%Y-%m-%d_%H-%M-%S", tm)
	assert.Equal(t, "wayclip_2026-03-05_14-07-09", got)
}
