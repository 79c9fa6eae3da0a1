package control

import (
	"net"
	"time"

	"github.com/rs/zerolog"
)

// dialTimeout bounds how long a status send can block trying to reach a GUI
// that isn't listening; the daemon must never stall its save path on this.
const dialTimeout = 250 * time.Millisecond

// Broadcaster implements save.StatusBroadcaster by performing a fresh,
// best-effort dial to the GUI's listening socket for every message. It
// never queues or retries: a missed announcement is simply lost, matching
// the "idempotent announcements, not transactions" delivery model.
type Broadcaster struct {
	logger     zerolog.Logger
	socketPath string
}

// NewBroadcaster returns a Broadcaster that targets socketPath.
func NewBroadcaster(socketPath string, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{logger: logger, socketPath: socketPath}
}

// SendStatus dials, writes message followed by a newline, and closes.
// Any failure (no listener, connection refused) is logged at warn and
// swallowed.
func (b *Broadcaster) SendStatus(message string) {
	conn, err := net.DialTimeout("unix", b.socketPath, dialTimeout)
	if err != nil {
		b.logger.Warn().Err(err).Str("message", message).Msg("status broadcast: GUI not reachable")
		return
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(message + "\n")); err != nil {
		b.logger.Warn().Err(err).Str("message", message).Msg("status broadcast: write failed")
	}
}
