package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/gofrs/flock"

	"screencap/internal/transcode"
)

const lockFileName = ".screencap.lock"

// ScratchRuntime runs ffmpeg against a private scratch directory that plays
// the role of the encoder's virtual filesystem. One process owns a directory
// at a time.
type ScratchRuntime struct {
	ffmpegPath string
	dir        string
	lock       *flock.Flock
	logger     *slog.Logger
}

var _ transcode.Runtime = (*ScratchRuntime)(nil)

// Loader returns a transcode.LoadFunc opening a ScratchRuntime in dir.
func Loader(ffmpegPath, dir string, logger *slog.Logger) transcode.LoadFunc {
	return func(ctx context.Context) (transcode.Runtime, error) {
		return OpenScratchRuntime(ctx, ffmpegPath, dir, logger)
	}
}

// OpenScratchRuntime checks that ffmpeg runs, then creates and locks dir.
func OpenScratchRuntime(ctx context.Context, ffmpegPath, dir string, logger *slog.Logger) (*ScratchRuntime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	path, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	version, err := Version(ctx, path)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock scratch dir: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("scratch dir %s is in use by another process", dir)
	}

	logger = logger.With("component", "transcode_runtime")
	logger.Info("encoder runtime loaded", "ffmpeg", path, "version", version, "scratch", dir)
	return &ScratchRuntime{ffmpegPath: path, dir: dir, lock: lock, logger: logger}, nil
}

// Dir returns the scratch directory.
func (r *ScratchRuntime) Dir() string { return r.dir }

// WriteFile stores data under name in the scratch directory.
func (r *ScratchRuntime) WriteFile(name string, data []byte) error {
	path, err := r.path(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ReadFile loads name from the scratch directory.
func (r *ScratchRuntime) ReadFile(name string) ([]byte, error) {
	path, err := r.path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// DeleteFile removes name. A missing file is not an error.
func (r *ScratchRuntime) DeleteFile(name string) error {
	path, err := r.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Exec runs ffmpeg in the scratch directory, streaming each stderr line
// (including carriage-return progress updates) to onLog.
func (r *ScratchRuntime) Exec(ctx context.Context, args []string, onLog func(line string)) (transcode.CommandLog, error) {
	full := append([]string{"-hide_banner", "-nostdin", "-y"}, args...)
	log := transcode.CommandLog{Command: r.ffmpegPath, Args: full, ExitCode: -1}

	cmd := exec.CommandContext(ctx, r.ffmpegPath, full...)
	cmd.Dir = r.dir
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return log, err
	}
	if err := cmd.Start(); err != nil {
		return log, err
	}

	tail := newTailWriter(40)
	if err := streamLines(stderr, tail, onLog); err != nil {
		r.logger.Debug("encoder log stream ended early", "error", err)
	}
	err = cmd.Wait()
	log.ExitCode = exitCode(err)
	log.Stderr = tail.String()
	return log, err
}

// Close releases the scratch directory lock.
func (r *ScratchRuntime) Close() error {
	return r.lock.Unlock()
}

// path confines name to the scratch directory.
func (r *ScratchRuntime) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || name == lockFileName {
		return "", fmt.Errorf("invalid scratch file name %q", name)
	}
	return filepath.Join(r.dir, name), nil
}
