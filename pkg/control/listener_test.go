package control

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenerForwardsRecognizedCommands(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "ctl.sock")
	l, err := Listen(sockPath, zerolog.Nop())
	require.NoError(t, err)
	defer l.Close()

	go l.Accept()

	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("save\nbogus\nexit\n"))
	require.NoError(t, err)

	select {
	case cmd := <-l.Commands:
		assert.Equal(t, CommandSave, cmd)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for save command")
	}

	select {
	case cmd := <-l.Commands:
		assert.Equal(t, CommandExit, cmd)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for exit command")
	}
}

func TestListenRemovesPreexistingSocketFile(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "ctl.sock")

	first, err := Listen(sockPath, zerolog.Nop())
	require.NoError(t, err)
	first.Close()

	// Closing the listener unlinks its socket; leave a stale file behind so
	// the second Listen really has something to remove.
	require.NoError(t, os.WriteFile(sockPath, []byte("stale"), 0o600))

	second, err := Listen(sockPath, zerolog.Nop())
	require.NoError(t, err)
	defer second.Close()
}

func TestBroadcasterSwallowsUnreachableGUI(t *testing.T) {
	b := NewBroadcaster(filepath.Join(t.TempDir(), "nonexistent.sock"), zerolog.Nop())
	assert.NotPanics(t, func() {
		b.SendStatus("Saved!")
	})
}

func TestBroadcasterDeliversMessage(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "gui.sock")
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		received <- string(buf[:n])
	}()

	b := NewBroadcaster(sockPath, zerolog.Nop())
	b.SendStatus("Saving clip...")

	select {
	case msg := <-received:
		assert.Equal(t, "Saving clip...\n", msg)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}
