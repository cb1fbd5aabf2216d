package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/viper"

	"screencap/internal/bootstrap"
	"screencap/internal/config"
	"screencap/internal/logging"
)

// commandContext lazily builds the logger and the App shared by subcommands.
type commandContext struct {
	viper *viper.Viper

	appOnce sync.Once
	app     *bootstrap.App
	appErr  error
	logger  *slog.Logger
	closeFn func() error
}

func newCommandContext(v *viper.Viper) *commandContext {
	return &commandContext{viper: v}
}

func (c *commandContext) ensureApp() (*bootstrap.App, error) {
	c.appOnce.Do(func() {
		settings, err := config.NewJSONStore(config.SettingsPath()).Load()
		if err != nil {
			c.appErr = fmt.Errorf("load settings: %w", err)
			return
		}

		level := c.viper.GetString("log-level")
		if strings.TrimSpace(level) == "" {
			level = settings.LogLevel
		}
		logger, closeFn, err := logging.New(logging.Options{
			Level:  level,
			Format: resolveLogFormat(c.viper.GetString("log-format"), os.Stderr),
		})
		if err != nil {
			c.appErr = err
			return
		}
		c.logger, c.closeFn = logger, closeFn

		c.app, c.appErr = bootstrap.NewProduction(logger)
	})
	return c.app, c.appErr
}

func (c *commandContext) close(ctx context.Context) error {
	var err error
	if c.app != nil {
		err = c.app.Close(ctx)
	}
	if c.closeFn != nil {
		_ = c.closeFn()
	}
	return err
}

// resolveLogFormat picks console output on a terminal and JSON otherwise
// unless a format was given explicitly.
func resolveLogFormat(flag string, out io.Writer) string {
	if format := strings.ToLower(strings.TrimSpace(flag)); format != "" {
		return format
	}
	if isTerminal(out) {
		return "console"
	}
	return "json"
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
