package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"screencap/internal/artifact"
	"screencap/internal/audiograph"
	"screencap/internal/capture"
	"screencap/internal/config"
	"screencap/internal/device"
	"screencap/internal/diagnostics"
	"screencap/internal/domain"
	"screencap/internal/export"
	"screencap/internal/ffmpeg"
	"screencap/internal/jobs"
	"screencap/internal/metrics"
	"screencap/internal/preview"
	"screencap/internal/profile"
	"screencap/internal/transcode"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

const (
	stopTimeout    = 30 * time.Second
	previewTimeout = 10 * time.Second
	probeTimeout   = 10 * time.Second
)

// Deps are the platform collaborators an App is assembled from. Tests swap
// the device, encoder and runtime layers for fakes.
type Deps struct {
	Store       config.Store
	Profiles    *profile.Registry
	Devices     device.Devices
	Encoders    capture.EncoderFactory
	LoadRuntime transcode.LoadFunc
	Grabber     preview.FrameGrabber
	Checker     *diagnostics.Checker
	NewTicker   capture.NewTickerFunc
	MaxElapsed  int
	Logger      *slog.Logger
}

// App wires configuration, the capture session, the library, the transcode
// job and UI runtime callbacks.
type App struct {
	Store      config.Store
	Profiles   *profile.Registry
	Session    *capture.Session
	Library    *artifact.Store
	Jobs       *jobs.Manager
	Transcoder *transcode.Service
	Exporter   *export.Exporter
	Events     *jobs.EventBus
	Logger     *slog.Logger

	runtime  *transcode.LazyRuntime
	previews *preview.Generator
	observer *metrics.Observer
	checker  *diagnostics.Checker

	mu          sync.Mutex
	settings    domain.Settings
	diagnostics domain.DiagnosticReport
	pending     *PendingRecording
	runtimeCtx  context.Context
}

// NewProduction assembles the App on top of ffmpeg.
func NewProduction(logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := ensureLocalBinOnPATH(config.HomeDir()); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	store := config.NewJSONStore(config.SettingsPath())
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	profiles, err := LoadProfiles(config.ProfilesPath(), settings.ActiveProfile, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	codec, err := ffmpeg.ProbeVideoCodec(ctx, "ffmpeg")
	if err != nil {
		logger.Warn("webm encoder probe failed, assuming vp9", "error", err)
		codec = ffmpeg.CodecVP9
	}

	return Assemble(Deps{
		Store:       store,
		Profiles:    profiles,
		Devices:     ffmpeg.NewDevices("ffmpeg", logger),
		Encoders:    ffmpeg.NewRecorder("ffmpeg", codec, logger),
		LoadRuntime: ffmpeg.Loader("ffmpeg", config.ScratchDir(), logger),
		Grabber:     ffmpeg.NewFrameGrabber("ffmpeg", logger),
		Checker:     diagnostics.NewChecker(),
		Logger:      logger,
	})
}

// LoadProfiles builds the registry from the builtin presets plus optional
// TOML overrides, selecting active when it exists.
func LoadProfiles(overridesPath string, active domain.ProfileID, logger *slog.Logger) (*profile.Registry, error) {
	presets, err := profile.LoadOverrides(overridesPath, profile.Builtin())
	if err != nil {
		return nil, fmt.Errorf("load profile overrides: %w", err)
	}
	registry, err := profile.NewRegistry(presets, active)
	if errors.Is(err, profile.ErrUnknownProfile) {
		if logger != nil {
			logger.Warn("saved profile unknown, using default", "profile", active)
		}
		registry, err = profile.NewRegistry(presets, profile.DefaultID)
	}
	if err != nil {
		return nil, fmt.Errorf("build profile registry: %w", err)
	}
	return registry, nil
}

// Assemble wires an App from deps.
func Assemble(deps Deps) (*App, error) {
	if deps.Store == nil {
		return nil, errors.New("settings store is required")
	}
	if deps.Devices == nil || deps.Encoders == nil {
		return nil, errors.New("capture devices and encoder factory are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	settings, err := deps.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	profiles := deps.Profiles
	if profiles == nil {
		profiles = profile.Default()
		if err := profiles.SetActive(settings.ActiveProfile); err != nil {
			logger.Warn("saved profile unknown, using default", "profile", settings.ActiveProfile)
		}
	}

	a := &App{
		Store:    deps.Store,
		Profiles: profiles,
		Library:  artifact.NewStore(nil),
		Jobs:     jobs.NewManager(),
		Events:   jobs.NewEventBus(1000),
		Logger:   logger,
		observer: metrics.NewObserver(),
		checker:  deps.Checker,
		settings: settings,
	}
	if deps.Grabber != nil {
		a.previews = preview.NewGenerator(deps.Grabber)
	}

	a.Session = capture.NewSession(capture.Config{
		Devices:    deps.Devices,
		Audio:      audiograph.NewBuilder(deps.Devices, logger),
		Encoders:   deps.Encoders,
		Profiles:   profiles,
		MaxElapsed: deps.MaxElapsed,
		NewTicker:  deps.NewTicker,
		Listener:   a.onSession,
		Logger:     logger,
	})

	a.runtime = transcode.NewLazyRuntime(deps.LoadRuntime)
	a.Transcoder = transcode.NewService(a.Jobs, transcode.NewPipeline(a.runtime), profiles,
		transcode.WithLogger(logger),
		transcode.WithListener(a.onJob),
	)
	a.Exporter = export.New(a.Library, a.Transcoder, profiles, logger)

	if a.checker != nil {
		a.diagnostics = a.checker.Run(settings, profiles.Active())
	}
	return a, nil
}

// Run starts the Wails desktop application and binds backend methods. A nil
// frontend serves ./frontend from the working directory.
func (a *App) Run(frontend fs.FS) error {
	assetOptions := &assetserver.Options{}
	if frontend != nil {
		assetOptions.Assets = frontend
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Screencap",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			a.runtimeCtx = nil
			a.mu.Unlock()
			if err := a.Close(ctx); err != nil {
				a.Logger.Warn("shutdown", "error", err)
			}
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Close stops an active recording, drops the pending one, revokes every
// library reference and releases the encoder runtime.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	switch a.Session.State() {
	case domain.SessionAcquiring, domain.SessionRecording, domain.SessionPaused:
		stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
		if _, err := a.Session.Stop(stopCtx); err != nil && !errors.Is(err, capture.ErrInvalidState) {
			errs = append(errs, fmt.Errorf("stop recording: %w", err))
		}
		cancel()
	}
	if err := a.DiscardRecording(); err != nil && !errors.Is(err, ErrNoPendingRecording) {
		errs = append(errs, err)
	}
	a.Library.Close()
	a.observer.Library(0, 0)
	if err := a.runtime.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close encoder runtime: %w", err))
	}
	return errors.Join(errs...)
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	a.mu.Lock()
	a.settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, applies the profile choice,
// then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Profiles.SetActive(normalized.ActiveProfile); err != nil {
		return domain.Settings{}, err
	}
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.refreshDiagnosticsFromSettings(normalized)
	return normalized, nil
}

// ListProfiles returns every preset in display order.
func (a *App) ListProfiles() []domain.Profile {
	return a.Profiles.List()
}

// ActiveProfile returns the selected preset.
func (a *App) ActiveProfile() domain.Profile {
	return a.Profiles.Active()
}

// SelectProfile switches the active preset and persists the choice. An
// unknown id leaves the selection unchanged.
func (a *App) SelectProfile(id string) (domain.Profile, error) {
	if err := a.Profiles.SetActive(domain.ProfileID(id)); err != nil {
		return a.Profiles.Active(), err
	}
	active := a.Profiles.Active()

	a.mu.Lock()
	settings := a.settings
	a.mu.Unlock()
	settings.ActiveProfile = active.ID
	if err := a.Store.Save(settings); err != nil {
		return active, fmt.Errorf("save settings: %w", err)
	}
	a.refreshDiagnosticsFromSettings(settings)
	a.Logger.Info("profile selected", "profile", active.ID)
	return active, nil
}

// PickExportDirectory opens a native directory picker for exports.
func (a *App) PickExportDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select export directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenExportFolder opens the given path (or configured export dir) in the
// file manager.
func (a *App) OpenExportFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.settings.ExportDir
		a.mu.Unlock()
	}
	if target == "" {
		return errors.New("export path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve export path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	return a.refreshDiagnosticsFromSettings(config.Normalize(settings)), nil
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	active := a.Profiles.Active()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings = settings
	if a.checker != nil {
		a.diagnostics = a.checker.Run(settings, active)
	}
	return a.diagnostics
}

// currentSettings returns the cached settings.
func (a *App) currentSettings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, errors.New("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
