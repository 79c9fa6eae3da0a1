// Package control implements the daemon's local control surface: a
// command listener, a best-effort GUI status broadcaster, and the
// message types the supervisor select loop consumes.
package control

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

// Command is a recognized control message.
type Command string

const (
	CommandSave Command = "save"
	CommandExit Command = "exit"
)

// CommandQueueCapacity is the bounded channel depth between the listener's
// accept loop and the supervisor select loop.
const CommandQueueCapacity = 32

// Listener owns the daemon's local-domain command socket. Each accepted
// connection is read line by line; recognized lines are forwarded onto
// Commands, unrecognized ones are logged and dropped.
type Listener struct {
	logger   zerolog.Logger
	listener net.Listener
	clients  *xsync.MapOf[string, net.Conn]

	Commands chan Command
}

// Listen removes any pre-existing file at socketPath and binds a new
// local-domain stream socket there.
func Listen(socketPath string, logger zerolog.Logger) (*Listener, error) {
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}

	return &Listener{
		logger:   logger,
		listener: ln,
		clients:  xsync.NewMapOf[string, net.Conn](),
		Commands: make(chan Command, CommandQueueCapacity),
	}, nil
}

// Addr returns the bound socket path.
func (l *Listener) Addr() string {
	return l.listener.Addr().String()
}

// Accept runs the accept loop until the listener is closed. Each
// connection is handled in its own goroutine; Accept itself returns
// once the listener errors (normally because Close was called).
func (l *Listener) Accept() {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			l.logger.Debug().Err(err).Msg("control listener accept loop exiting")
			return
		}
		id := conn.RemoteAddr().String()
		if id == "" || id == "@" {
			// Unnamed unix clients all report the same address; key them by
			// connection identity so concurrent clients don't collide.
			id = fmt.Sprintf("%s-client-%p", conn.LocalAddr().Network(), conn)
		}
		l.clients.Store(id, conn)
		go l.handleConn(id, conn)
	}
}

func (l *Listener) handleConn(id string, conn net.Conn) {
	defer func() {
		conn.Close()
		l.clients.Delete(id)
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch Command(line) {
		case CommandSave, CommandExit:
			l.Commands <- Command(line)
		default:
			l.logger.Warn().Str("message", line).Msg("ignoring unrecognized control message")
		}
	}
}

// Close closes the underlying socket, which unblocks Accept.
func (l *Listener) Close() error {
	return l.listener.Close()
}

// ClientCount reports the number of currently connected control clients,
// for diagnostics only.
func (l *Listener) ClientCount() int {
	return l.clients.Size()
}
