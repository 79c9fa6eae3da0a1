// Package daemonenv holds the ambient process configuration for wayclipd:
// the log directory, crash reporting, GStreamer debug flags, and the desktop
// session name. It is
// distinct from the domain settings record in pkg/config, which governs
// capture/encode behavior and is loaded from the user's settings.json.
package daemonenv

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Env is the daemon's ambient configuration, populated from the process
// environment (optionally preloaded from a .env file in the working
// directory for local/dev runs).
type Env struct {
	LogDir       string `envconfig:"WAYCLIP_LOG_DIR" default:"/tmp/wayclip"`
	SentryDSN    string `envconfig:"WAYCLIP_SENTRY_DSN"`
	GstDebug     string `envconfig:"GST_DEBUG"`
	DesktopSession string `envconfig:"DESKTOP_SESSION"`
}

// Load reads an optional .env file (ignored if absent) and then populates
// Env from the process environment, applying envconfig defaults.
func Load() (Env, error) {
	_ = godotenv.Load()

	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return Env{}, err
	}
	return env, nil
}
