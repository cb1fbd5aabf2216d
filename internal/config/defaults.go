package config

import (
	"os"
	"path/filepath"
	"strings"

	"screencap/internal/domain"
	"screencap/internal/profile"
)

// AppDirName is the per-user state directory under $HOME.
const AppDirName = ".screencap"

// HomeDir returns the user's home directory, or "." when it is unknown.
func HomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return homeDir
}

// AppDir returns ~/.screencap.
func AppDir() string {
	return filepath.Join(HomeDir(), AppDirName)
}

// SettingsPath returns ~/.screencap/settings.json.
func SettingsPath() string {
	return filepath.Join(AppDir(), "settings.json")
}

// ProfilesPath returns the optional profile overrides file.
func ProfilesPath() string {
	return filepath.Join(AppDir(), "profiles.toml")
}

// LogPath returns the desktop app's log file.
func LogPath() string {
	return filepath.Join(AppDir(), "logs", "screencap.log")
}

// ScratchDir returns the transcode scratch directory.
func ScratchDir() string {
	return filepath.Join(AppDir(), "scratch")
}

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		IncludeMic:         true,
		IncludeSystemAudio: true,
		ActiveProfile:      profile.DefaultID,
		ExportDir:          filepath.Join(HomeDir(), "Videos", "Screencap"),
		LogLevel:           "info",
	}
}

// Normalize trims user input and restores defaults for blank or unknown
// values.
func Normalize(cfg domain.Settings) domain.Settings {
	defaults := DefaultSettings()

	cfg.ExportDir = strings.TrimSpace(cfg.ExportDir)
	if cfg.ExportDir == "" {
		cfg.ExportDir = defaults.ExportDir
	} else if rest, ok := strings.CutPrefix(cfg.ExportDir, "~"); ok && (rest == "" || rest[0] == '/' || rest[0] == filepath.Separator) {
		cfg.ExportDir = filepath.Join(HomeDir(), rest)
	}

	switch id := domain.ProfileID(strings.ToLower(strings.TrimSpace(string(cfg.ActiveProfile)))); id {
	case domain.ProfileLow, domain.ProfileMedium, domain.ProfileHigh, domain.ProfileServer:
		cfg.ActiveProfile = id
	default:
		cfg.ActiveProfile = defaults.ActiveProfile
	}

	switch level := strings.ToLower(strings.TrimSpace(cfg.LogLevel)); level {
	case "debug", "info", "warn", "error":
		cfg.LogLevel = level
	case "warning":
		cfg.LogLevel = "warn"
	default:
		cfg.LogLevel = defaults.LogLevel
	}
	return cfg
}
