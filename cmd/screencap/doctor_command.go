package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"screencap/internal/domain"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var fix string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check host dependencies for recording and conversion",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			report := app.GetDiagnostics()
			if fix != "" {
				report, err = app.InstallOrFixDiagnostic(fix)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "fix %s: %v\n", fix, err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Check", "Status", "Details"},
				diagnosticRows(report),
				nil,
			))
			if report.HasFailures {
				return errors.New("one or more required checks failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fix, "fix", "", "Try to remediate one check by id, e.g. tool_ffmpeg or export_dir")
	return cmd
}

func diagnosticRows(report domain.DiagnosticReport) [][]string {
	rows := make([][]string, 0, len(report.Items))
	for _, item := range report.Items {
		details := item.Message
		if item.Hint != "" && item.Status != domain.DiagnosticStatusPass {
			details += "\n" + item.Hint
		}
		rows = append(rows, []string{item.Name, string(item.Status), details})
	}
	return rows
}
