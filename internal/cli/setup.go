package cli

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/wsyeabsera/taskstream/internal/config"
	"github.com/wsyeabsera/taskstream/internal/eventlog"
	"github.com/wsyeabsera/taskstream/internal/session"
	"github.com/wsyeabsera/taskstream/internal/stream"
	"github.com/wsyeabsera/taskstream/internal/taskapi"
)

// loadOrCreateConfig finds an existing config or creates a default one in
// the current directory, walking up the directory tree first.
func loadOrCreateConfig(configPath string, logger *slog.Logger) (*config.Config, string, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, configPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current directory: %w", err)
	}

	if foundPath := config.Find(cwd); foundPath != "" {
		logger.Info("found existing config", "path", foundPath)
		cfg, err := config.LoadFromFile(foundPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, foundPath, nil
	}

	// No config found, create default in current directory
	cfg := config.GenerateDefault()
	path := filepath.Join(cwd, config.DefaultFileName)
	if err := cfg.SaveToFile(path); err != nil {
		return nil, "", fmt.Errorf("failed to create default config: %w", err)
	}
	logger.Info("created default config", "path", path)

	return cfg, path, nil
}

// buildController wires a session controller from the config. The returned
// cleanup closes the event log, if one was opened.
func buildController(cmd *cobra.Command, logger *slog.Logger) (*session.Controller, func(), error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}

	cfg, cfgPath, err := loadOrCreateConfig(configPath, logger)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("loaded configuration", "path", cfgPath)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	// The stream client must not carry a global timeout: the channel stays
	// open for the whole execution. Snapshot fetches get the configured one.
	apiClient := taskapi.NewClient(cfg.API.BaseURL, &http.Client{
		Timeout: time.Duration(cfg.API.RequestTimeoutS) * time.Second,
	}, logger)
	streamClient := stream.NewHTTPClient(cfg.Stream.Endpoint, &http.Client{}, logger)

	ctrl := session.NewController(
		streamClient,
		apiClient,
		apiClient,
		cfg.Stream.ExecutionTargetID,
		cfg.Stream.SummaryFormat,
		logger,
	)
	ctrl.SetPollSchedule(
		time.Duration(cfg.Poll.IntervalMs)*time.Millisecond,
		cfg.Poll.MaxIterations,
	)

	cleanup := func() {}
	if cfg.EventLogDir != "" {
		sessionID := uuid.New().String()[:8]
		logPath := filepath.Join(cfg.EventLogDir, fmt.Sprintf("session-%s.ndjson", sessionID))
		evtLog, err := eventlog.NewEventLog(logPath, logger)
		if err != nil {
			logger.Warn("failed to open event log, continuing without", "error", err)
		} else {
			ctrl.SetEventLogger(evtLog)
			cleanup = func() { evtLog.Close() }
		}
	}

	return ctrl, cleanup, nil
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}
