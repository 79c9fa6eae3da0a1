package supervisor

import (
	"context"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

const defaultHyprlandBind = "SUPER, R, exec, wayclip-trigger"

// registerHyprlandHotkey is a best-effort, non-fatal startup step: on
// Hyprland sessions it binds the default save shortcut to invoke the
// trigger utility. Any failure (missing hyprctl, non-Hyprland session) is
// logged and ignored.
func registerHyprlandHotkey(desktopSession string, logger zerolog.Logger) {
	if desktopSession != "hyprland" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "hyprctl", "keyword", "bind", defaultHyprlandBind)
	if out, err := cmd.CombinedOutput(); err != nil {
		logger.Warn().Err(err).Str("output", string(out)).Msg("failed to register default Hyprland save hotkey; bind one manually")
		return
	}
	logger.Info().Str("bind", defaultHyprlandBind).Msg("registered default Hyprland save hotkey")
}

// unregisterHyprlandHotkey reverses registerHyprlandHotkey on shutdown.
// Also best-effort.
func unregisterHyprlandHotkey(desktopSession string, logger zerolog.Logger) {
	if desktopSession != "hyprland" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "hyprctl", "keyword", "unbind", defaultHyprlandBind)
	if out, err := cmd.CombinedOutput(); err != nil {
		logger.Warn().Err(err).Str("output", string(out)).Msg("failed to unregister Hyprland save hotkey")
	}
}
