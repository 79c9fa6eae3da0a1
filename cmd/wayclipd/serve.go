package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sentry "github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/konyogony/wayclip/pkg/daemonenv"
	"github.com/konyogony/wayclip/pkg/pipeline"
	"github.com/konyogony/wayclip/pkg/supervisor"
)

func newServeCmd() *cobra.Command {
	var settingsPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the wayclipd capture daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), settingsPath)
		},
	}

	cmd.Flags().StringVar(&settingsPath, "settings", defaultSettingsPath(), "path to the settings JSON file")
	return cmd
}

func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "wayclip", "settings.json")
}

func runServe(ctx context.Context, settingsPath string) error {
	env, err := daemonenv.Load()
	if err != nil {
		return fmt.Errorf("load ambient environment: %w", err)
	}

	logger, closeLog, err := setupLogging(env)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer closeLog()

	if env.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: env.SentryDSN}); err != nil {
			logger.Warn().Err(err).Msg("failed to initialize sentry")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	pipeline.Init()

	sup, err := supervisor.New(settingsPath, logger)
	if err != nil {
		reportFatal(logger, env, err, "failed to initialize supervisor")
		return err
	}

	if err := sup.Run(ctx); err != nil {
		reportFatal(logger, env, err, "wayclipd exited with an error")
		return err
	}
	return nil
}

func setupLogging(env daemonenv.Env) (zerolog.Logger, func(), error) {
	if err := os.MkdirAll(env.LogDir, 0o755); err != nil {
		return zerolog.Logger{}, nil, err
	}

	logPath := filepath.Join(env.LogDir, fmt.Sprintf("wayclip-%s.log", time.Now().Format("2006-01-02_15-04-05")))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Logger{}, nil, err
	}

	writer := zerolog.MultiLevelWriter(os.Stderr, logFile)
	logger := zerolog.New(writer).With().Timestamp().Logger()
	return logger, func() { logFile.Close() }, nil
}

func reportFatal(logger zerolog.Logger, env daemonenv.Env, err error, msg string) {
	logger.Error().Err(err).Msg(msg)
	if env.SentryDSN != "" {
		sentry.CaptureException(fmt.Errorf("%s: %w", msg, err))
	}
}
