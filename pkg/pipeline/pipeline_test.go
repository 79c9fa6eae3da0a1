package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/konyogony/wayclip/pkg/config"
)

func TestBuildPipelineStringVideoOnly(t *testing.T) {
	cfg := config.PipelineConfig{Width: 1280, Height: 720, FPS: 30, BitrateKbps: 8000}
	desc := buildPipelineString(cfg, 42, 7)

	assert.Contains(t, desc, "fd=42")
	assert.Contains(t, desc, "path=7")
	assert.Contains(t, desc, "width=1280,height=720")
	assert.Contains(t, desc, "framerate=30/1")
	assert.Contains(t, desc, "bitrate=8000")
	assert.Contains(t, desc, "appsink name=muxsink")
	assert.NotContains(t, desc, "audiomixer")
}

func TestBuildPipelineStringWithAudio(t *testing.T) {
	cfg := config.PipelineConfig{
		Width: 1920, Height: 1080, FPS: 60, BitrateKbps: 15000,
		IncludeBg: true, BgNode: "bg-node",
		IncludeMic: true, MicNode: "mic-node",
	}
	desc := buildPipelineString(cfg, 1, 2)

	assert.Contains(t, desc, "audiomixer name=mix")
	assert.Contains(t, desc, "target-object=bg-node")
	assert.Contains(t, desc, "target-object=mic-node")
	assert.Contains(t, desc, "mix.sink_0")
	assert.Contains(t, desc, "mix.sink_1")
	assert.Contains(t, desc, "mux.audio_0")
}

func TestBuildPipelineStringAudioDisabledByFlagEvenWithNode(t *testing.T) {
	cfg := config.PipelineConfig{Width: 1280, Height: 720, FPS: 30, BitrateKbps: 8000, BgNode: "bg-node"}
	desc := buildPipelineString(cfg, 1, 2)
	assert.NotContains(t, desc, "target-object=bg-node")
}
