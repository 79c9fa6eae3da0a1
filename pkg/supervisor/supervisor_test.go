package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/konyogony/wayclip/pkg/config"
)

func TestPipelineAffectingFieldsChanged(t *testing.T) {
	base := config.PipelineConfig{Width: 1920, Height: 1080, FPS: 60, BitrateKbps: 15000}

	assert.False(t, pipelineAffectingFieldsChanged(base, base))

	resChanged := base
	resChanged.Width = 1280
	assert.True(t, pipelineAffectingFieldsChanged(base, resChanged))

	outputOnlyChanged := base
	outputOnlyChanged.OutputDir = "/somewhere/else"
	outputOnlyChanged.FilenameFormat = "different"
	assert.False(t, pipelineAffectingFieldsChanged(base, outputOnlyChanged), "output path and filename template are not pipeline-affecting")
}
