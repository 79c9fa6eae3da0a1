// Package capture negotiates a screencast capture handle with the desktop's
// XDG ScreenCast portal: a session, a PipeWire stream node, and a shared
// capture file descriptor for the encoder pipeline to read from.
package capture

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	portalBus  = "org.freedesktop.portal.Desktop"
	portalPath = "/org/freedesktop/portal/desktop"

	portalScreenCastIface = "org.freedesktop.portal.ScreenCast"
	portalRequestIface    = "org.freedesktop.portal.Request"

	portalSourceMonitor = uint32(1)
	portalCursorHidden  = uint32(1)
)

// Session owns the lifetime of a single portal ScreenCast negotiation: the
// D-Bus connection, the session handle, the resolved stream node, and the
// duplicated PipeWire capture file descriptor.
type Session struct {
	ID uuid.UUID

	logger zerolog.Logger
	conn   *dbus.Conn

	sessionHandle string
	nodeID        uint32
	captureFD     int
}

// Handle is the information EncoderPipeline needs from a negotiated session.
type Handle struct {
	SessionID    uuid.UUID
	StreamNodeID uint32
	CaptureFD    int
}

// Connect establishes the session D-Bus connection and waits for the portal
// service to appear, retrying up to 60 times at 1s intervals (the portal may
// not be registered yet immediately after login). This is the only retrying
// step in the negotiation; the protocol exchange itself (Open below) is not
// retried.
func Connect(ctx context.Context, logger zerolog.Logger) (*Session, error) {
	id := uuid.New()
	s := &Session{ID: id, logger: logger.With().Str("capture_session", id.String()[:8]).Logger()}

	err := retry.Do(
		func() error {
			conn, connErr := dbus.ConnectSessionBus(dbus.WithContext(ctx))
			if connErr != nil {
				return fmt.Errorf("connect session bus: %w", connErr)
			}
			portalObj := conn.Object(portalBus, portalPath)
			if introErr := portalObj.Call("org.freedesktop.DBus.Introspectable.Introspect", 0).Err; introErr != nil {
				conn.Close()
				return fmt.Errorf("portal not ready: %w", introErr)
			}
			s.conn = conn
			return nil
		},
		retry.Attempts(60),
		retry.Delay(time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug().Uint("attempt", n+1).Err(err).Msg("portal not ready yet")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to portal: %w", err)
	}

	s.logger.Info().Msg("connected to desktop portal")
	return s, nil
}

// Open runs the full negotiation protocol: create session, select sources,
// start, and open the PipeWire remote. It is not retried; any failure here
// is fatal to daemon startup per the capture session's no-retry contract.
func (s *Session) Open(ctx context.Context) (Handle, error) {
	if err := s.createSession(ctx); err != nil {
		return Handle{}, fmt.Errorf("create session: %w", err)
	}
	if err := s.selectSources(ctx); err != nil {
		return Handle{}, fmt.Errorf("select sources: %w", err)
	}
	if err := s.start(ctx); err != nil {
		return Handle{}, fmt.Errorf("start session: %w", err)
	}
	if err := s.openPipeWireRemote(); err != nil {
		return Handle{}, fmt.Errorf("open pipewire remote: %w", err)
	}

	return Handle{SessionID: s.ID, StreamNodeID: s.nodeID, CaptureFD: s.captureFD}, nil
}

func (s *Session) requestPath(token string) dbus.ObjectPath {
	return buildRequestPath(s.conn.Names()[0], token)
}

// buildRequestPath derives the portal Request object path the portal will
// use to emit the Response signal, from our own D-Bus unique name (the
// leading ":" is dropped and "." is escaped to "_" per the portal spec).
func buildRequestPath(senderName, token string) dbus.ObjectPath {
	senderPath := make([]byte, 0, len(senderName))
	for _, c := range senderName[1:] {
		if c == '.' {
			senderPath = append(senderPath, '_')
		} else {
			senderPath = append(senderPath, byte(c))
		}
	}
	return dbus.ObjectPath(fmt.Sprintf("/org/freedesktop/portal/desktop/request/%s/%s", senderPath, token))
}

func (s *Session) subscribeResponse(ctx context.Context, token string) (chan *dbus.Signal, func(), error) {
	path := s.requestPath(token)
	if err := s.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(portalRequestIface),
		dbus.WithMatchMember("Response"),
	); err != nil {
		return nil, nil, fmt.Errorf("add signal match: %w", err)
	}
	ch := make(chan *dbus.Signal, 10)
	s.conn.Signal(ch)
	return ch, func() { s.conn.RemoveSignal(ch) }, nil
}

func (s *Session) createSession(ctx context.Context) error {
	requestToken := "req_" + uuid.New().String()
	sessionToken := "sess_" + uuid.New().String()

	sig, cancel, err := s.subscribeResponse(ctx, requestToken)
	if err != nil {
		return err
	}
	defer cancel()

	portalObj := s.conn.Object(portalBus, portalPath)
	options := map[string]dbus.Variant{
		"handle_token":         dbus.MakeVariant(requestToken),
		"session_handle_token": dbus.MakeVariant(sessionToken),
	}
	var requestPath dbus.ObjectPath
	if err := portalObj.Call(portalScreenCastIface+".CreateSession", 0, options).Store(&requestPath); err != nil {
		return fmt.Errorf("CreateSession call: %w", err)
	}

	handle, err := waitForStringResult(ctx, sig, "session_handle")
	if err != nil {
		return fmt.Errorf("CreateSession response: %w", err)
	}
	s.sessionHandle = handle
	s.logger.Info().Str("handle", handle).Msg("portal session created")
	return nil
}

func (s *Session) selectSources(ctx context.Context) error {
	requestToken := "req_" + uuid.New().String()
	sig, cancel, err := s.subscribeResponse(ctx, requestToken)
	if err != nil {
		return err
	}
	defer cancel()

	portalObj := s.conn.Object(portalBus, portalPath)
	options := map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(requestToken),
		"types":        dbus.MakeVariant(portalSourceMonitor),
		"cursor_mode":  dbus.MakeVariant(portalCursorHidden),
		"multiple":     dbus.MakeVariant(false),
		"persist_mode": dbus.MakeVariant(uint32(1)), // PersistMode::Application
	}
	var requestPath dbus.ObjectPath
	if err := portalObj.Call(portalScreenCastIface+".SelectSources", 0, dbus.ObjectPath(s.sessionHandle), options).Store(&requestPath); err != nil {
		return fmt.Errorf("SelectSources call: %w", err)
	}

	if _, err := waitForStringResult(ctx, sig, ""); err != nil {
		return fmt.Errorf("SelectSources response: %w", err)
	}
	s.logger.Info().Msg("portal sources selected")
	return nil
}

func (s *Session) start(ctx context.Context) error {
	requestToken := "req_" + uuid.New().String()
	sig, cancel, err := s.subscribeResponse(ctx, requestToken)
	if err != nil {
		return err
	}
	defer cancel()

	portalObj := s.conn.Object(portalBus, portalPath)
	options := map[string]dbus.Variant{"handle_token": dbus.MakeVariant(requestToken)}
	var requestPath dbus.ObjectPath
	if err := portalObj.Call(portalScreenCastIface+".Start", 0, dbus.ObjectPath(s.sessionHandle), "", options).Store(&requestPath); err != nil {
		return fmt.Errorf("Start call: %w", err)
	}

	streams, err := waitForStreams(ctx, sig)
	if err != nil {
		return fmt.Errorf("Start response: %w", err)
	}
	if len(streams) == 0 {
		return fmt.Errorf("no streams returned from portal")
	}

	nodeID, ok := extractNodeID(streams[0])
	if !ok || nodeID == 0 {
		return fmt.Errorf("failed to extract stream node id from portal response")
	}
	s.nodeID = nodeID
	s.logger.Info().Uint32("node_id", nodeID).Msg("portal session started")

	if err := writeNodeIDFile("/tmp/pipewire-node-id", nodeID); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write pipewire node id compatibility file")
	}
	return nil
}

func extractNodeID(stream any) (uint32, bool) {
	if id, ok := stream.(uint32); ok {
		return id, true
	}
	if parts, ok := stream.([]interface{}); ok && len(parts) > 0 {
		if id, ok := parts[0].(uint32); ok {
			return id, true
		}
	}
	return 0, false
}

func (s *Session) openPipeWireRemote() error {
	portalObj := s.conn.Object(portalBus, portalPath)
	var fd dbus.UnixFD
	err := portalObj.Call(
		portalScreenCastIface+".OpenPipeWireRemote",
		0,
		dbus.ObjectPath(s.sessionHandle),
		map[string]dbus.Variant{},
	).Store(&fd)
	if err != nil {
		return fmt.Errorf("OpenPipeWireRemote call: %w", err)
	}

	// D-Bus closes the fd it passed us once the message is garbage
	// collected; dup it so the pipeline keeps a stable descriptor.
	dup, dupErr := syscall.Dup(int(fd))
	if dupErr != nil {
		s.logger.Warn().Err(dupErr).Msg("failed to dup pipewire fd, using original")
		s.captureFD = int(fd)
		return nil
	}
	s.captureFD = dup
	s.logger.Info().Int("fd", dup).Msg("opened pipewire remote")
	return nil
}

// Close attempts to close the portal session. Failure is logged but not
// propagated, per the no-fail-on-teardown contract.
func (s *Session) Close() {
	if s.conn == nil {
		return
	}
	if s.sessionHandle != "" {
		obj := s.conn.Object(portalBus, dbus.ObjectPath(s.sessionHandle))
		if err := obj.Call("org.freedesktop.portal.Session.Close", 0).Err; err != nil {
			s.logger.Warn().Err(err).Msg("error closing portal session")
		}
	}
	if s.captureFD != 0 {
		if err := syscall.Close(s.captureFD); err != nil {
			s.logger.Warn().Err(err).Msg("error closing capture fd")
		}
	}
	if err := s.conn.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("error closing dbus connection")
	}
}

func waitForStringResult(ctx context.Context, sig chan *dbus.Signal, resultKey string) (string, error) {
	timeout := time.NewTimer(30 * time.Second)
	defer timeout.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case s := <-sig:
			if s.Name != portalRequestIface+".Response" || len(s.Body) < 2 {
				continue
			}
			response, ok := s.Body[0].(uint32)
			if !ok {
				continue
			}
			if response != 0 {
				return "", fmt.Errorf("portal returned error response code %d", response)
			}
			if resultKey == "" {
				return "", nil
			}
			results, ok := s.Body[1].(map[string]dbus.Variant)
			if !ok {
				return "", nil
			}
			if v, ok := results[resultKey]; ok {
				if str, ok := v.Value().(string); ok {
					return str, nil
				}
			}
			return "", nil
		case <-timeout.C:
			return "", fmt.Errorf("timeout waiting for portal response")
		}
	}
}

func waitForStreams(ctx context.Context, sig chan *dbus.Signal) ([]interface{}, error) {
	timeout := time.NewTimer(30 * time.Second)
	defer timeout.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case s := <-sig:
			if s.Name != portalRequestIface+".Response" || len(s.Body) < 2 {
				continue
			}
			response, ok := s.Body[0].(uint32)
			if !ok {
				continue
			}
			if response != 0 {
				return nil, fmt.Errorf("portal returned error response code %d", response)
			}
			results, ok := s.Body[1].(map[string]dbus.Variant)
			if !ok {
				return nil, fmt.Errorf("invalid response format")
			}
			streams, ok := results["streams"]
			if !ok {
				return nil, fmt.Errorf("no streams in response: %v", results)
			}
			if arr, ok := streams.Value().([][]interface{}); ok && len(arr) > 0 {
				return []interface{}{arr[0]}, nil
			}
			if arr, ok := streams.Value().([]interface{}); ok {
				return arr, nil
			}
			return nil, fmt.Errorf("unrecognized streams payload: %v", streams.Value())
		case <-timeout.C:
			return nil, fmt.Errorf("timeout waiting for portal streams response")
		}
	}
}

// writeNodeIDFile is a best-effort compatibility shim some external tooling
// (the GUI's debugging overlay) reads; failure is logged, never fatal.
func writeNodeIDFile(path string, nodeID uint32) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d", nodeID)), 0o644)
}
