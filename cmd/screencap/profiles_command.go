package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"screencap/internal/bootstrap"
	"screencap/internal/domain"
)

func newProfilesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List quality profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Active", "ID", "Capture", "Bitrate", "MP4", "Max MP4", "External"},
				profileRows(app.ListProfiles(), app.ActiveProfile().ID),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "use <id>",
		Short: "Select and save the active profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			active, err := app.SelectProfile(args[0])
			if err != nil {
				return errors.New(bootstrap.UserMessage(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Active profile: %s (%s)\n", active.ID, active.Label)
			return nil
		},
	})
	return cmd
}

func profileRows(profiles []domain.Profile, active domain.ProfileID) [][]string {
	rows := make([][]string, 0, len(profiles))
	for _, p := range profiles {
		marker := ""
		if p.ID == active {
			marker = "*"
		}
		rows = append(rows, []string{
			marker,
			string(p.ID),
			fmt.Sprintf("%dx%d@%d", p.Capture.Width, p.Capture.Height, p.Capture.FrameRate),
			humanize.SI(float64(p.Capture.VideoBitsPerSecond), "bps"),
			fmt.Sprintf("%dpx crf %d %s", p.Export.ScaleWidth, p.Export.CRF, p.Export.Preset),
			strconv.Itoa(p.Export.MaxDuration) + "s",
			yesNo(p.ExternalOnly),
		})
	}
	return rows
}
