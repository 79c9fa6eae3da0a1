package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PipelineConfig is derived from Settings at daemon startup; it is what
// EncoderPipeline actually consumes, decoupled from the on-disk schema.
type PipelineConfig struct {
	Width, Height int
	FPS           uint16
	BitrateKbps   uint16

	IncludeMic bool
	IncludeBg  bool
	MicNode    string
	BgNode     string
	MicVolume  float64 // 0..1
	BgVolume   float64 // 0..1

	ClipDuration time.Duration

	OutputDir      string
	FilenameFormat string // strftime template
}

const defaultWidth, defaultHeight = 1920, 1080

// ParseResolution parses a "WxH" string, falling back to 1920x1080 on any
// malformed input per the settings table's documented effect.
func ParseResolution(s string) (width, height int) {
	parts := strings.SplitN(strings.ToLower(s), "x", 2)
	if len(parts) != 2 {
		return defaultWidth, defaultHeight
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return defaultWidth, defaultHeight
	}
	return w, h
}

// DerivePipelineConfig builds a PipelineConfig from Settings and the
// resolved home/output directory.
func DerivePipelineConfig(s Settings, homeDir string) (PipelineConfig, error) {
	if homeDir == "" {
		return PipelineConfig{}, fmt.Errorf("home directory is required to derive the output path")
	}

	width, height := ParseResolution(s.ClipResolution)

	return PipelineConfig{
		Width:          width,
		Height:         height,
		FPS:            s.ClipFPS,
		BitrateKbps:    s.VideoBitrate,
		IncludeMic:     s.IncludeMicAudio,
		IncludeBg:      s.IncludeBgAudio,
		MicNode:        s.MicNodeName,
		BgNode:         s.BgNodeName,
		MicVolume:      float64(s.MicVolume) / 100,
		BgVolume:       float64(s.BgVolume) / 100,
		ClipDuration:   time.Duration(s.ClipLengthS) * time.Second,
		OutputDir:      homeDir + "/" + s.SavePathFromHomeString,
		FilenameFormat: s.ClipNameFormatting,
	}, nil
}
