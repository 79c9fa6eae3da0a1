// Package save implements the cooldown-guarded, at-most-one-in-flight save
// path: snapshot the ring buffer, remux it to an MP4 via an external ffmpeg
// process, and report status.
package save

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/konyogony/wayclip/pkg/config"
	"github.com/konyogony/wayclip/pkg/ringbuffer"
)

// CooldownDuration is the minimum wall-clock interval between two accepted
// saves.
const CooldownDuration = 2 * time.Second

const drainPollInterval = 50 * time.Millisecond
const drainTimeout = 1000 * time.Millisecond

// StatusBroadcaster is the subset of ControlPlane's broadcaster the
// orchestrator needs; kept as an interface so pkg/save never imports
// pkg/control.
type StatusBroadcaster interface {
	SendStatus(message string)
}

// PreviewGenerator invokes the external preview-thumbnail collaborator.
// Failure is always logged and never fails the save itself.
type PreviewGenerator func(ctx context.Context, videoPath string) error

// Orchestrator serializes save requests against a single RingBuffer and
// spawns at most one remuxer child process at a time.
type Orchestrator struct {
	logger zerolog.Logger
	ring   *ringbuffer.RingBuffer
	status StatusBroadcaster
	preview PreviewGenerator

	isSaving     atomic.Bool
	jobCounter   atomic.Uint64
	mu           sync.Mutex // guards lastSaveTime, supervisor-owned in spec terms
	lastSaveTime time.Time
}

// New constructs an Orchestrator. lastSaveTime is initialized one cooldown
// period in the past so the first save is never rejected by the cooldown.
func New(ring *ringbuffer.RingBuffer, status StatusBroadcaster, preview PreviewGenerator, logger zerolog.Logger) *Orchestrator {
	o := &Orchestrator{logger: logger, ring: ring, status: status, preview: preview}
	o.jobCounter.Store(1)
	o.lastSaveTime = time.Now().Add(-CooldownDuration)
	return o
}

// Save runs one save attempt. It never blocks past the bounded drain-wait
// window plus however long the remux itself takes; callers typically invoke
// it from its own goroutine so the control-plane select loop keeps running.
func (o *Orchestrator) Save(ctx context.Context, pc config.PipelineConfig) {
	now := time.Now()

	o.mu.Lock()
	sinceLast := now.Sub(o.lastSaveTime)
	o.mu.Unlock()
	if sinceLast < CooldownDuration {
		o.logger.Warn().Dur("since_last", sinceLast).Msg("ignoring save request: cooldown active")
		return
	}

	if !o.isSaving.CompareAndSwap(false, true) {
		o.logger.Warn().Msg("ignoring save request: a save is already in progress")
		return
	}
	defer func() {
		o.isSaving.Store(false)
		o.logger.Debug().Msg("task finished and save lock released")
	}()

	o.mu.Lock()
	o.lastSaveTime = now
	o.mu.Unlock()

	jobID := o.jobCounter.Add(1) - 1
	externalID := ulid.Make()
	logger := o.logger.With().Uint64("job_id", jobID).Str("external_id", externalID.String()).Logger()

	o.status.SendStatus("Saving clip...")

	chunks := o.drainSnapshot(logger)
	if len(chunks) == 0 {
		logger.Warn().Dur("waited", drainTimeout).Msg("no chunks in buffer after waiting, aborting save")
		return
	}

	outputPath, err := o.computeOutputPath(pc, now)
	if err != nil {
		logger.Error().Err(err).Msg("failed to compute output path")
		o.status.SendStatus("Error during saving")
		return
	}

	if err := o.remux(ctx, chunks, outputPath, logger); err != nil {
		logger.Error().Err(err).Msg("remux failed")
		o.status.SendStatus("Error during saving")
		return
	}

	logger.Info().Str("path", outputPath).Msg("clip saved")
	o.status.SendStatus("Saved!")

	if o.preview != nil {
		if err := o.preview(ctx, outputPath); err != nil {
			logger.Warn().Err(err).Msg("preview generation failed")
		}
	}
}

func (o *Orchestrator) drainSnapshot(logger zerolog.Logger) [][]byte {
	deadline := time.Now().Add(drainTimeout)
	for {
		if chunks := o.ring.GetAndClear(); len(chunks) > 0 {
			return chunks
		}
		if time.Now().After(deadline) {
			return nil
		}
		time.Sleep(drainPollInterval)
	}
}

func (o *Orchestrator) computeOutputPath(pc config.PipelineConfig, now time.Time) (string, error) {
	if err := os.MkdirAll(pc.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	filename := config.FormatStrftime(pc.FilenameFormat, now) + ".mp4"
	return filepath.Join(pc.OutputDir, filename), nil
}

// remux spawns ffmpeg, streams chunks to its stdin sequentially, and waits
// for it to exit. A non-zero exit or a spawn failure is reported as an
// error; a stdin write failure stops writing but still awaits the process,
// producing a valid but shorter file.
func (o *Orchestrator) remux(ctx context.Context, chunks [][]byte, outputPath string, logger zerolog.Logger) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", "-",
		"-c:v", "copy", "-c:a", "copy",
		outputPath,
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open ffmpeg stdin: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn ffmpeg: %w", err)
	}

	// A write failure stops writing (producing a valid but shorter file);
	// it is logged here and does not by itself fail the save, matching the
	// remuxer's own exit status being the source of truth below.
	writeChunks(stdin, chunks, logger)
	stdin.Close()

	waitErr := cmd.Wait()

	if stderr.Len() > 0 {
		logger.Warn().Str("stderr", stderr.String()).Msg("ffmpeg stderr output")
	}

	if waitErr != nil {
		return fmt.Errorf("ffmpeg exited with error: %w", waitErr)
	}
	return nil
}

func writeChunks(w interface{ Write([]byte) (int, error) }, chunks [][]byte, logger zerolog.Logger) {
	for _, chunk := range chunks {
		if _, err := w.Write(chunk); err != nil {
			logger.Error().Err(err).Msg("failed writing chunk to remuxer stdin")
			return
		}
	}
}
