package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"screencap/internal/artifact"
	"screencap/internal/bootstrap"
	"screencap/internal/domain"
	"screencap/internal/ffmpeg"
	"screencap/internal/jobs"
)

const probeTimeout = 30 * time.Second

func newExportCommand(ctx *commandContext) *cobra.Command {
	var duration int
	var profileID string
	var out string

	cmd := &cobra.Command{
		Use:   "export <input.webm>",
		Short: "Convert a WebM recording to MP4 with a quality profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			input := args[0]
			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			if duration <= 0 {
				probeCtx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
				duration, err = ffmpeg.ProbeDuration(probeCtx, "ffprobe", input)
				cancel()
				if err != nil {
					return fmt.Errorf("read duration (pass --duration to skip ffprobe): %w", err)
				}
			}
			if profileID != "" {
				// Applies to this run only; the saved selection is untouched.
				if err := app.Profiles.SetActive(domain.ProfileID(profileID)); err != nil {
					return errors.New(bootstrap.UserMessage(err))
				}
			}

			saved, err := app.Library.Save(data, duration, "video/webm")
			if err != nil {
				return err
			}
			res, err := app.Exporter.Export(cmd.Context(), saved.ID, domain.FormatMP4)
			if err != nil {
				return errors.New(bootstrap.UserMessage(err))
			}

			events, cancel := app.SubscribeEvents(64)
			reported := make(chan struct{})
			go func() {
				defer close(reported)
				reportProgress(cmd, events)
			}()
			download, err := app.Exporter.Complete(cmd.Context(), res)
			cancel()
			<-reported
			if err != nil {
				return errors.New(bootstrap.UserMessage(err))
			}
			defer app.Exporter.Release(download)

			path := out
			if path == "" {
				base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
				path = filepath.Join(filepath.Dir(input), artifact.Filename(base, string(domain.FormatMP4)))
			}
			mp4, _, ok := app.OpenBlob(download.Ref)
			if !ok {
				return artifact.ErrNotFound
			}
			if err := os.WriteFile(path, mp4, 0o644); err != nil {
				return fmt.Errorf("write mp4: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s, profile %s)\n", path, humanize.IBytes(uint64(len(mp4))), app.ActiveProfile().ID)
			return nil
		},
	}
	cmd.Flags().IntVar(&duration, "duration", 0, "Input duration in seconds (probed with ffprobe when omitted)")
	cmd.Flags().StringVarP(&profileID, "profile", "p", "", "Quality profile for this conversion")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (defaults next to the input)")
	return cmd
}

// reportProgress prints job progress until the subscription closes.
func reportProgress(cmd *cobra.Command, events <-chan jobs.Event) {
	interactive := isTerminal(cmd.OutOrStdout())
	last := -1
	for event := range events {
		if event.Source != jobs.SourceJob || event.Type != jobs.EventTypeProgress {
			continue
		}
		pct := int(event.Progress)
		if pct == last {
			continue
		}
		last = pct
		if interactive {
			fmt.Fprintf(cmd.OutOrStdout(), "\rConverting %3d%%", pct)
		} else if pct%10 == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Converting %d%%\n", pct)
		}
	}
	if interactive && last >= 0 {
		fmt.Fprintln(cmd.OutOrStdout())
	}
}
