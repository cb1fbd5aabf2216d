package main

import (
	"github.com/spf13/cobra"

	"screencap/internal/domain"
	"screencap/internal/httpapi"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			for _, item := range app.GetDiagnostics().Items {
				if item.Status != domain.DiagnosticStatusPass {
					app.Logger.Warn("diagnostic", "id", item.ID, "status", item.Status, "message", item.Message)
				}
			}
			return httpapi.New(app, app.Logger).ListenAndServe(cmd.Context(), ctx.viper.GetString("addr"))
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:7420", "Listen address")
	_ = ctx.viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}
