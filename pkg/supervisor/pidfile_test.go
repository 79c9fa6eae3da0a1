package supervisor

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquirePidFileWritesPid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wayclipd.pid")

	pf, err := AcquirePidFile(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, pf.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquirePidFileRejectsSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wayclipd.pid")

	first, err := AcquirePidFile(path)
	require.NoError(t, err)
	defer first.Release()

	_, err = AcquirePidFile(path)
	assert.Error(t, err)
}
