package save

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konyogony/wayclip/pkg/config"
	"github.com/konyogony/wayclip/pkg/ringbuffer"
)

type fakeBroadcaster struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeBroadcaster) SendStatus(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
}

func (f *fakeBroadcaster) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	copy(out, f.messages)
	return out
}

func testPipelineConfig(t *testing.T) config.PipelineConfig {
	t.Helper()
	return config.PipelineConfig{
		OutputDir:      t.TempDir(),
		FilenameFormat: "clip_%Y-%m-%d_%H-%M-%S",
	}
}

func TestSaveAbortsWhenBufferNeverFills(t *testing.T) {
	ring := ringbuffer.New(time.Second) // no header pushed, GetAndClear always nil
	broadcaster := &fakeBroadcaster{}
	o := New(ring, broadcaster, nil, zerolog.Nop())

	start := time.Now()
	o.Save(context.Background(), testPipelineConfig(t))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, drainTimeout)
	assert.Contains(t, broadcaster.snapshot(), "Saving clip...")
	assert.NotContains(t, broadcaster.snapshot(), "Saved!")
	assert.False(t, o.isSaving.Load(), "save lock must be released after abort")
}

func TestSaveRejectsWhileInProgress(t *testing.T) {
	ring := ringbuffer.New(time.Second)
	broadcaster := &fakeBroadcaster{}
	o := New(ring, broadcaster, nil, zerolog.Nop())

	// Simulate an in-flight save by holding the flag directly.
	o.isSaving.Store(true)

	o.Save(context.Background(), testPipelineConfig(t))

	// Nothing should have been attempted: no "Saving clip..." emitted.
	assert.Empty(t, broadcaster.snapshot())
}

func TestSaveRejectsDuringCooldown(t *testing.T) {
	ring := ringbuffer.New(time.Second)
	broadcaster := &fakeBroadcaster{}
	o := New(ring, broadcaster, nil, zerolog.Nop())

	o.lastSaveTime = time.Now() // just saved

	o.Save(context.Background(), testPipelineConfig(t))

	assert.Empty(t, broadcaster.snapshot(), "a save within the cooldown window must not even attempt a drain")
}

func TestComputeOutputPathCreatesDirectory(t *testing.T) {
	ring := ringbuffer.New(time.Second)
	o := New(ring, &fakeBroadcaster{}, nil, zerolog.Nop())

	pc := testPipelineConfig(t)
	pc.OutputDir = filepath.Join(pc.OutputDir, "nested", "clips")
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	path, err := o.computeOutputPath(pc, now)
	require.NoError(t, err)
	assert.DirExists(t, pc.OutputDir)
	assert.Contains(t, path, "clip_2026-01-02_03-04-05.mp4")
}

func TestDrainSnapshotReturnsFirstNonEmpty(t *testing.T) {
	ring := ringbuffer.New(time.Minute)
	ring.Push([]byte("h"), true, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		d := time.Millisecond
		ring.Push([]byte("d1"), false, &d)
	}()

	o := New(ring, &fakeBroadcaster{}, nil, zerolog.Nop())
	chunks := o.drainSnapshot(zerolog.Nop())
	require.NotEmpty(t, chunks)
}
