package supervisor

import (
	"encoding/json"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/konyogony/wayclip/pkg/config"
)

// settingsReloadDebounce absorbs the multiple fsnotify events a single
// editor save often produces.
const settingsReloadDebounce = 300 * time.Millisecond

// watchSettings watches settingsPath for external edits and invokes
// onReload with the freshly merged settings. Only non-pipeline-affecting
// fields are expected to change live; pipeline-affecting fields are
// accepted but logged as requiring a restart to take effect, per the
// reload semantics the core spec describes.
func watchSettings(settingsPath string, logger zerolog.Logger, onReload func(config.Settings)) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(settingsPath); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		var debounce *time.Timer
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(settingsReloadDebounce, func() {
					// config.Load replaces an unparsable file with defaults;
					// on reload an invalid file is skipped instead.
					if raw, readErr := os.ReadFile(settingsPath); readErr == nil && !json.Valid(raw) {
						logger.Warn().Msg("settings file is not valid JSON, keeping previous settings")
						return
					}
					reloaded, err := config.Load(settingsPath, logger)
					if err != nil {
						logger.Warn().Err(err).Msg("settings reload failed, keeping previous settings")
						return
					}
					logger.Info().Msg("settings file changed on disk, reloaded")
					onReload(reloaded)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("settings watcher error")
			}
		}
	}()

	return watcher, nil
}
