package supervisor

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// startHousekeeping runs an hourly sweep of previewsDir, deleting preview
// files whose source clip no longer exists in clipsDir. Returns the
// scheduler so the caller can Shutdown() it on exit.
func startHousekeeping(clipsDir, previewsDir string, logger zerolog.Logger) (gocron.Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() {
			sweepOrphanedPreviews(clipsDir, previewsDir, logger)
		}),
		gocron.WithName("preview-cache-sweep"),
	)
	if err != nil {
		return nil, err
	}

	scheduler.Start()
	return scheduler, nil
}

func sweepOrphanedPreviews(clipsDir, previewsDir string, logger zerolog.Logger) {
	entries, err := os.ReadDir(previewsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn().Err(err).Msg("preview sweep: failed to list preview cache directory")
		}
		return
	}

	var removed int
	var freedBytes int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		clipPath := filepath.Join(clipsDir, stem+".mp4")
		if _, err := os.Stat(clipPath); err == nil {
			continue // source clip still exists
		}

		previewPath := filepath.Join(previewsDir, entry.Name())
		if info, err := entry.Info(); err == nil {
			freedBytes += info.Size()
		}
		if err := os.Remove(previewPath); err != nil {
			logger.Warn().Err(err).Str("path", previewPath).Msg("preview sweep: failed to remove orphaned preview")
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info().Int("removed", removed).Str("freed", humanize.Bytes(uint64(freedBytes))).Msg("preview sweep: removed orphaned previews")
	}
}
