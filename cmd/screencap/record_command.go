package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"screencap/internal/artifact"
	"screencap/internal/bootstrap"
	"screencap/internal/jobs"
)

func newRecordCommand(ctx *commandContext) *cobra.Command {
	var duration time.Duration
	var out string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the screen to a WebM file",
		Long:  "Record the screen until --duration elapses, the capture ceiling is reached or the command is interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			if _, err := app.StartRecording(); err != nil {
				return errors.New(bootstrap.UserMessage(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recording with profile %s, press Ctrl+C to stop\n", app.ActiveProfile().ID)

			events, cancel := app.SubscribeEvents(16)
			defer cancel()
			var deadline <-chan time.Time
			if duration > 0 {
				timer := time.NewTimer(duration)
				defer timer.Stop()
				deadline = timer.C
			}
			waitForStop(cmd, app, events, deadline)

			pending := app.PendingRecording()
			if pending == nil {
				if pending, err = app.StopRecording(); err != nil {
					return errors.New(bootstrap.UserMessage(err))
				}
			}
			if pending == nil {
				return errors.New("recording was cancelled before it started")
			}
			defer func() { _ = app.DiscardRecording() }()

			data, _, ok := app.OpenBlob(pending.Ref)
			if !ok {
				return bootstrap.ErrNoPendingRecording
			}
			path := out
			if path == "" {
				settings, err := app.GetSettings()
				if err != nil {
					return err
				}
				title := "Recording " + time.Now().Format(artifact.TitleLayout)
				path = filepath.Join(settings.ExportDir, artifact.Filename(title, "webm"))
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("write recording: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s, %s)\n", path, artifact.FormatDuration(pending.Duration), humanize.IBytes(uint64(len(data))))
			if pending.Degraded {
				fmt.Fprintln(cmd.OutOrStdout(), "Some audio sources were unavailable; the recording may be missing sound.")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop automatically after this long (0 records until interrupted)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (defaults to the export directory)")
	return cmd
}

// waitForStop blocks until the deadline or an interrupt, or until the
// session stops on its own. Elapsed ticks are echoed on a terminal.
func waitForStop(cmd *cobra.Command, app *bootstrap.App, events <-chan jobs.Event, deadline <-chan time.Time) {
	interactive := isTerminal(cmd.OutOrStdout())
	for {
		select {
		case <-deadline:
			return
		case <-cmd.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Source != jobs.SourceSession {
				continue
			}
			switch {
			case event.Type == jobs.EventTypeTick && interactive:
				fmt.Fprintf(cmd.OutOrStdout(), "\r%s", artifact.FormatDuration(event.Elapsed))
			case event.Type == jobs.EventTypeWarning:
				fmt.Fprintf(cmd.ErrOrStderr(), "\n%s\n", event.Message)
			case event.Type == jobs.EventTypeResult || event.Type == jobs.EventTypeError:
				if interactive {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				return
			}
		}
	}
}
