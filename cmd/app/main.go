package main

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"screencap/internal/bootstrap"
	"screencap/internal/config"
	"screencap/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	settings, loadErr := config.NewJSONStore(config.SettingsPath()).Load()
	if loadErr != nil {
		settings = config.DefaultSettings()
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:  settings.LogLevel,
		Format: "json",
		File:   config.LogPath(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "configure logging: %v\n", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(logger)
	if loadErr != nil {
		logger.Warn("settings unreadable, using defaults", "path", config.SettingsPath(), "error", loadErr)
	}

	app, err := bootstrap.NewProduction(logger)
	if err != nil {
		logger.Error("bootstrap app", "error", err)
		return 1
	}
	logger.Info("starting desktop app",
		"profile", app.ActiveProfile().ID,
		"export_dir", settings.ExportDir,
		"log_file", config.LogPath(),
	)

	if err := app.Run(frontendAssets()); err != nil {
		logger.Error("run app", "error", err)
		return 1
	}
	return 0
}

// frontendAssets serves a prebuilt UI from SCREENCAP_FRONTEND when set.
func frontendAssets() fs.FS {
	dir := strings.TrimSpace(os.Getenv("SCREENCAP_FRONTEND"))
	if dir == "" {
		return nil
	}
	return os.DirFS(dir)
}
