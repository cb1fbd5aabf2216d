package diagnostics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"screencap/internal/domain"
	"screencap/internal/ffmpeg"
)

// Host sizing below which heavier profiles are flagged.
const (
	minHighMemory = 8 << 30
	minHighCPUs   = 4
	minFreeDisk   = 1 << 30
)

// HostStats is the slice of machine capacity the checks look at.
type HostStats struct {
	TotalMemory uint64
	LogicalCPUs int
}

// Dependencies are the OS hooks a Checker uses. Nil fields fall back to the
// real implementation.
type Dependencies struct {
	LookPath   func(string) (string, error)
	MkdirAll   func(string, os.FileMode) error
	CreateTemp func(string, string) (*os.File, error)
	Remove     func(string) error
	Display    func() error
	Host       func() (HostStats, error)
	FreeDisk   func(string) (uint64, error)
}

// Checker validates external tools, the export directory, the display server
// and host capacity.
type Checker struct {
	lookPath   func(string) (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	display    func() error
	host       func() (HostStats, error)
	freeDisk   func(string) (uint64, error)
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return NewCheckerWith(Dependencies{})
}

// NewCheckerWith creates a checker with injectable dependencies.
func NewCheckerWith(deps Dependencies) *Checker {
	c := &Checker{
		lookPath:   exec.LookPath,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		display:    hostDisplay,
		host:       hostStats,
		freeDisk:   freeDisk,
	}
	if deps.LookPath != nil {
		c.lookPath = deps.LookPath
	}
	if deps.MkdirAll != nil {
		c.mkdirAll = deps.MkdirAll
	}
	if deps.CreateTemp != nil {
		c.createTemp = deps.CreateTemp
	}
	if deps.Remove != nil {
		c.remove = deps.Remove
	}
	if deps.Display != nil {
		c.display = deps.Display
	}
	if deps.Host != nil {
		c.host = deps.Host
	}
	if deps.FreeDisk != nil {
		c.freeDisk = deps.FreeDisk
	}
	return c
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings, active domain.Profile) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool("ffmpeg", domain.DiagnosticStatusFail, "Install ffmpeg and ensure the binary is available on PATH before recording."),
		c.checkTool("ffprobe", domain.DiagnosticStatusWarn, "ffprobe ships with ffmpeg; it is used to read durations of files exported from the CLI."),
		c.checkDisplay(),
		c.checkExportDir(settings.ExportDir),
		c.checkHost(active),
	}

	report := domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		Items:       items,
	}
	for _, item := range items {
		switch item.Status {
		case domain.DiagnosticStatusFail:
			report.HasFailures = true
		case domain.DiagnosticStatusWarn:
			report.HasWarnings = true
		}
	}
	return report
}

// checkTool verifies a CLI executable is on PATH.
func (c *Checker) checkTool(name string, missing domain.DiagnosticStatus, hint string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  missing,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    hint,
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkDisplay verifies a screen grab input exists for this session.
func (c *Checker) checkDisplay() domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "display",
		Name: "Display server",
	}
	if err := c.display(); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Screen capture is unavailable: %v", err)
		item.Hint = "Run from a graphical X11 session (set DISPLAY), or log into an Xorg session instead of Wayland."
		return item
	}
	item.Status = domain.DiagnosticStatusPass
	item.Message = "Screen capture input is available."
	return item
}

// checkExportDir validates export directory existence, write access and
// free space.
func (c *Checker) checkExportDir(exportDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "export_dir",
		Name: "Export directory",
	}

	if strings.TrimSpace(exportDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Export directory is empty."
		item.Hint = "Set an export directory where recordings can be written."
		return item
	}

	if err := c.mkdirAll(exportDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create export directory: %s", exportDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(exportDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Export directory is not writable: %s", exportDir)
		item.Hint = "Choose a writable directory for exported recordings."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	if free, err := c.freeDisk(exportDir); err == nil && free < minFreeDisk {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Only %s free in %s", humanize.IBytes(free), exportDir)
		item.Hint = "Long recordings can exceed the remaining space; free some disk or pick another directory."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", exportDir)
	return item
}

// checkHost compares machine capacity with what the active profile needs.
func (c *Checker) checkHost(active domain.Profile) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "host_capacity",
		Name: "Host capacity",
	}

	stats, err := c.host()
	if err != nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Cannot read host capacity: %v", err)
		return item
	}
	summary := fmt.Sprintf("%s memory, %d CPUs", humanize.IBytes(stats.TotalMemory), stats.LogicalCPUs)

	switch {
	case active.ExternalOnly:
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Profile %q is meant for conversion on a dedicated machine (%s here).", active.ID, summary)
		item.Hint = "Download the WebM and convert it elsewhere, or switch to the high profile."
	case active.ID == domain.ProfileHigh && (stats.TotalMemory < minHighMemory || stats.LogicalCPUs < minHighCPUs):
		item.Status = domain.DiagnosticStatusWarn
		item.Message = fmt.Sprintf("Profile %q may struggle on this host (%s).", active.ID, summary)
		item.Hint = "Switch to the medium profile if recordings stutter or exports are slow."
	default:
		item.Status = domain.DiagnosticStatusPass
		item.Message = summary
	}
	return item
}

func hostDisplay() error {
	_, err := ffmpeg.HostPlatform().Display(30)
	return err
}

func hostStats() (HostStats, error) {
	vmem, err := mem.VirtualMemory()
	if err != nil {
		return HostStats{}, fmt.Errorf("read memory: %w", err)
	}
	counts, err := cpu.Counts(true)
	if err != nil {
		return HostStats{}, fmt.Errorf("read cpu count: %w", err)
	}
	return HostStats{TotalMemory: vmem.Total, LogicalCPUs: counts}, nil
}

func freeDisk(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
