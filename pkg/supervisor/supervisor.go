// Package supervisor wires the capture core's components into a running
// daemon: settings, the portal session, the encoder pipeline, the control
// plane, and the housekeeping jobs around them, plus the startup and
// shutdown sequencing between all of it.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/konyogony/wayclip/pkg/capture"
	"github.com/konyogony/wayclip/pkg/config"
	"github.com/konyogony/wayclip/pkg/control"
	"github.com/konyogony/wayclip/pkg/daemonenv"
	"github.com/konyogony/wayclip/pkg/pipeline"
	"github.com/konyogony/wayclip/pkg/ringbuffer"
	"github.com/konyogony/wayclip/pkg/save"
)

// Supervisor owns every long-lived component of one daemon run.
type Supervisor struct {
	logger zerolog.Logger
	env    daemonenv.Env

	settings     config.Settings
	pipelineCfg  config.PipelineConfig
	settingsPath string
	homeDir      string

	pidFile         *PidFile
	session         *capture.Session
	pipe            *pipeline.Pipeline
	ring            *ringbuffer.RingBuffer
	listener        *control.Listener
	broadcaster     *control.Broadcaster
	orchestrator    *save.Orchestrator
	housekeeping    gocron.Scheduler
	settingsWatcher interface{ Close() error }
	reloadCh        chan config.Settings

	wg conc.WaitGroup
}

// New loads settings and ambient env but does not yet touch the portal,
// GStreamer, or any socket.
func New(settingsPath string, logger zerolog.Logger) (*Supervisor, error) {
	env, err := daemonenv.Load()
	if err != nil {
		return nil, fmt.Errorf("load ambient environment: %w", err)
	}

	settings, err := config.Load(settingsPath, logger)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	pc, err := config.DerivePipelineConfig(settings, home)
	if err != nil {
		return nil, fmt.Errorf("derive pipeline config: %w", err)
	}

	return &Supervisor{
		logger:       logger,
		env:          env,
		settings:     settings,
		pipelineCfg:  pc,
		settingsPath: settingsPath,
		homeDir:      home,
	}, nil
}

// Run acquires the pidfile lock, negotiates the portal session, starts the
// encoder pipeline, opens the control plane, and blocks on the select loop
// until shutdown. It always runs cleanup before returning, even on error.
func (s *Supervisor) Run(ctx context.Context) error {
	pidFile, err := AcquirePidFile(s.settings.DaemonPidPath)
	if err != nil {
		return fmt.Errorf("fatal startup: %w", err)
	}
	s.pidFile = pidFile

	s.broadcaster = control.NewBroadcaster(s.settings.GuiSocketPath, s.logger)
	s.broadcaster.SendStatus("Starting")

	registerHyprlandHotkey(s.env.DesktopSession, s.logger)

	sessionCtx, cancelSession := context.WithCancel(ctx)
	defer cancelSession()

	session, err := capture.Connect(sessionCtx, s.logger)
	if err != nil {
		s.cleanup()
		return fmt.Errorf("fatal startup: connect to portal: %w", err)
	}
	s.session = session

	handle, err := session.Open(sessionCtx)
	if err != nil {
		s.cleanup()
		return fmt.Errorf("fatal startup: open capture session: %w", err)
	}

	s.ring = ringbuffer.New(s.pipelineCfg.ClipDuration)

	pipe, err := pipeline.Construct(s.pipelineCfg, handle.CaptureFD, handle.StreamNodeID, s.ring, s.logger)
	if err != nil {
		s.cleanup()
		return fmt.Errorf("fatal startup: construct pipeline: %w", err)
	}
	s.pipe = pipe

	if err := s.pipe.Start(ctx); err != nil {
		s.cleanup()
		return fmt.Errorf("fatal startup: start pipeline: %w", err)
	}

	listener, err := control.Listen(s.settings.DaemonSocketPath, s.logger)
	if err != nil {
		s.cleanup()
		return fmt.Errorf("fatal startup: bind control socket: %w", err)
	}
	s.listener = listener

	configDir, cfgErr := os.UserConfigDir()
	if cfgErr != nil {
		configDir = filepath.Dir(s.settings.DaemonSocketPath)
	}
	previewsDir := filepath.Join(configDir, "wayclip", "previews")
	s.orchestrator = save.New(s.ring, s.broadcaster, save.GeneratePreview(previewsDir), s.logger)

	if housekeeping, err := startHousekeeping(s.pipelineCfg.OutputDir, previewsDir, s.logger); err != nil {
		s.logger.Warn().Err(err).Msg("failed to start preview housekeeping scheduler")
	} else {
		s.housekeeping = housekeeping
	}

	s.reloadCh = make(chan config.Settings, 1)
	onReload := func(reloaded config.Settings) {
		select {
		case s.reloadCh <- reloaded:
		default:
			s.logger.Warn().Msg("settings reload dropped, previous reload not yet consumed")
		}
	}
	if watcher, err := watchSettings(s.settingsPath, s.logger, onReload); err != nil {
		s.logger.Warn().Err(err).Msg("failed to start settings file watcher")
	} else {
		s.settingsWatcher = watcher
	}

	s.wg.Go(func() { s.listener.Accept() })

	s.broadcaster.SendStatus("Recording")
	s.logger.Info().Msg("wayclipd is running")

	s.selectLoop(ctx)

	s.cleanup()
	s.wg.Wait()
	return nil
}

func (s *Supervisor) onSettingsReloaded(reloaded config.Settings) {
	pc, err := config.DerivePipelineConfig(reloaded, s.homeDir)
	if err != nil {
		s.logger.Warn().Err(err).Msg("reloaded settings produced an invalid pipeline config, keeping previous")
		return
	}
	if pipelineAffectingFieldsChanged(s.pipelineCfg, pc) {
		s.logger.Warn().Msg("reloaded settings changed pipeline-affecting fields; restart wayclipd to apply them")
	}
	s.settings = reloaded
	s.pipelineCfg.OutputDir = pc.OutputDir
	s.pipelineCfg.FilenameFormat = pc.FilenameFormat
}

func pipelineAffectingFieldsChanged(old, updated config.PipelineConfig) bool {
	return old.Width != updated.Width || old.Height != updated.Height || old.FPS != updated.FPS ||
		old.BitrateKbps != updated.BitrateKbps || old.IncludeMic != updated.IncludeMic ||
		old.IncludeBg != updated.IncludeBg || old.MicNode != updated.MicNode || old.BgNode != updated.BgNode ||
		old.ClipDuration != updated.ClipDuration
}

func (s *Supervisor) selectLoop(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("context cancelled, shutting down")
			return
		case sig := <-sigCh:
			s.logger.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
			return
		case cmd, ok := <-s.listener.Commands:
			if !ok {
				s.logger.Warn().Msg("control command channel closed, shutting down")
				return
			}
			switch cmd {
			case control.CommandSave:
				go s.orchestrator.Save(ctx, s.pipelineCfg)
			case control.CommandExit:
				s.logger.Info().Msg("received exit command, shutting down")
				return
			}
		case reloaded := <-s.reloadCh:
			// Applied on the select loop goroutine, the same one that reads
			// s.pipelineCfg for each save, so no lock is needed here.
			s.onSettingsReloaded(reloaded)
		}
	}
}

// cleanup runs the fixed shutdown sequence: broadcast, unbind hotkey, stop
// pipeline, close portal session, remove sockets/pidfile, final broadcast.
func (s *Supervisor) cleanup() {
	if s.broadcaster != nil {
		s.broadcaster.SendStatus("Shutting down...")
	}

	unregisterHyprlandHotkey(s.env.DesktopSession, s.logger)

	if s.housekeeping != nil {
		if err := s.housekeeping.Shutdown(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to shut down housekeeping scheduler")
		}
	}
	if s.settingsWatcher != nil {
		if err := s.settingsWatcher.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close settings watcher")
		}
	}

	if s.pipe != nil {
		s.pipe.Stop()
	}
	if s.session != nil {
		s.session.Close()
	}
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close control socket")
		}
	}
	if s.pidFile != nil {
		if err := s.pidFile.Release(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to release pid file")
		}
	}

	if s.broadcaster != nil {
		s.broadcaster.SendStatus("Inactive")
	}
}
