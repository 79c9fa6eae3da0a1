package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildRequestPath(t *testing.T) {
	got := buildRequestPath(":1.42", "req_abc")
	assert.Equal(t, "/org/freedesktop/portal/desktop/request/1_42/req_abc", string(got))
}

func TestExtractNodeID(t *testing.T) {
	id, ok := extractNodeID(uint32(7))
	assert.True(t, ok)
	assert.Equal(t, uint32(7), id)

	id, ok = extractNodeID([]interface{}{uint32(9), map[string]interface{}{}})
	assert.True(t, ok)
	assert.Equal(t, uint32(9), id)

	_, ok = extractNodeID("not a node id")
	assert.False(t, ok)
}
