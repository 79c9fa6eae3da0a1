// Package config holds the domain settings record consumed by the capture
// core, and its JSON load/merge-with-defaults semantics.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Settings is the subset of the on-disk settings.json schema the core reads.
// Unknown fields owned by out-of-scope collaborators (the GUI, the web API,
// the CLI) are preserved in Extra so a core-triggered rewrite never drops
// them.
type Settings struct {
	ClipLengthS           uint64 `json:"clip_length_s"`
	ClipResolution        string `json:"clip_resolution"`
	ClipFPS               uint16 `json:"clip_fps"`
	VideoBitrate          uint16 `json:"video_bitrate"`
	IncludeMicAudio       bool   `json:"include_mic_audio"`
	IncludeBgAudio        bool   `json:"include_bg_audio"`
	MicNodeName           string `json:"mic_node_name"`
	BgNodeName            string `json:"bg_node_name"`
	MicVolume             uint8  `json:"mic_volume"`
	BgVolume              uint8  `json:"bg_volume"`
	SavePathFromHomeString string `json:"save_path_from_home_string"`
	ClipNameFormatting    string `json:"clip_name_formatting"`
	DaemonSocketPath      string `json:"daemon_socket_path"`
	GuiSocketPath         string `json:"gui_socket_path"`
	DaemonPidPath         string `json:"daemon_pid_path"`

	// Extra carries fields this schema doesn't model (api_url, auth_token,
	// video_codec, audio_codec, save_shortcut, open_gui_shortcut,
	// toggle_notifications, ...) so they round-trip untouched.
	Extra map[string]json.RawMessage `json:"-"`
}

// Defaults returns the built-in default settings, grounded on the original
// daemon's Settings::new().
func Defaults() Settings {
	return Settings{
		ClipLengthS:            120,
		ClipResolution:         "1920x1080",
		ClipFPS:                60,
		VideoBitrate:           15000,
		IncludeMicAudio:        true,
		IncludeBgAudio:         true,
		MicVolume:              100,
		BgVolume:               75,
		SavePathFromHomeString: "Videos/wayclip",
		ClipNameFormatting:     "wayclip_%Y-%m-%d_%H-%M-%S",
		DaemonSocketPath:       "/tmp/wayclipd.sock",
		GuiSocketPath:          "/tmp/wayclipg.sock",
		DaemonPidPath:          "/tmp/wayclipd.pid",
	}
}

// fieldKeys is the set of JSON keys this schema understands, used to detect
// keys a saved settings file defines that the current schema no longer does.
var fieldKeys = []string{
	"clip_length_s", "clip_resolution", "clip_fps", "video_bitrate",
	"include_mic_audio", "include_bg_audio", "mic_node_name", "bg_node_name",
	"mic_volume", "bg_volume", "save_path_from_home_string",
	"clip_name_formatting", "daemon_socket_path", "gui_socket_path",
	"daemon_pid_path",
}

// Load reads the settings file at path, merging it against Defaults() and
// rewriting the file if the merge changed anything. A missing or corrupt
// file is replaced with a fresh defaults file, matching the original
// daemon's Settings::load behavior.
func Load(path string, logger zerolog.Logger) (Settings, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Info().Str("path", path).Msg("settings file not found, writing defaults")
		def := Defaults()
		if err := Save(path, def); err != nil {
			return Settings{}, fmt.Errorf("writing default settings: %w", err)
		}
		return def, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("reading settings file: %w", err)
	}

	var onDisk map[string]json.RawMessage
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("settings file is not valid JSON, recreating with defaults")
		def := Defaults()
		if err := Save(path, def); err != nil {
			return Settings{}, fmt.Errorf("writing default settings: %w", err)
		}
		return def, nil
	}

	merged, changed := mergeWithDefaults(onDisk, logger)

	var settings Settings
	mergedBytes, err := json.Marshal(merged)
	if err != nil {
		return Settings{}, fmt.Errorf("re-marshaling merged settings: %w", err)
	}
	if err := json.Unmarshal(mergedBytes, &settings); err != nil {
		return Settings{}, fmt.Errorf("decoding merged settings: %w", err)
	}
	settings.Extra = extraFields(merged)

	if changed {
		if err := saveRaw(path, merged); err != nil {
			logger.Warn().Err(err).Msg("failed to rewrite merged settings file")
		}
	}

	return settings, nil
}

func mergeWithDefaults(onDisk map[string]json.RawMessage, logger zerolog.Logger) (map[string]json.RawMessage, bool) {
	defBytes, _ := json.Marshal(Defaults())
	var defMap map[string]json.RawMessage
	_ = json.Unmarshal(defBytes, &defMap)

	changed := false
	merged := make(map[string]json.RawMessage, len(onDisk))
	for k, v := range onDisk {
		merged[k] = v
	}
	for _, k := range fieldKeys {
		if _, ok := merged[k]; !ok {
			merged[k] = defMap[k]
			changed = true
			logger.Info().Str("key", k).Msg("settings file missing key, applying default")
		}
	}

	known := make(map[string]struct{}, len(fieldKeys))
	for _, k := range fieldKeys {
		known[k] = struct{}{}
	}
	for k := range onDisk {
		if _, ok := known[k]; !ok {
			logger.Debug().Str("key", k).Msg("settings file has key outside the core schema, preserving it")
		}
	}

	return merged, changed
}

func extraFields(merged map[string]json.RawMessage) map[string]json.RawMessage {
	known := make(map[string]struct{}, len(fieldKeys))
	for _, k := range fieldKeys {
		known[k] = struct{}{}
	}
	extra := make(map[string]json.RawMessage)
	for k, v := range merged {
		if _, ok := known[k]; !ok {
			extra[k] = v
		}
	}
	return extra
}

// Save writes settings back to path as formatted JSON, preserving Extra.
func Save(path string, s Settings) error {
	fieldBytes, err := json.Marshal(s)
	if err != nil {
		return err
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(fieldBytes, &out); err != nil {
		return err
	}
	for k, v := range s.Extra {
		out[k] = v
	}
	return saveRaw(path, out)
}

func saveRaw(path string, data map[string]json.RawMessage) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
