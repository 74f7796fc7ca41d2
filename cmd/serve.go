package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"handlescope/internal/bootstrap"
	"handlescope/internal/bootstrap/logging"
	"handlescope/internal/errs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the counting API until interrupted",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := cmd.Context()

		if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
			if err := app.InitSchema(ctx); err != nil {
				return errs.Wrap(err, "initialize schema")
			}
		}

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		logging.Info(ctx, "serving",
			slog.String("addr", app.Config.Server.Addr),
			slog.String("manager", app.Manager.Name()),
		)
		<-ctx.Done()
		logging.Info(ctx, "shutdown requested")
		return nil
	}, bootstrap.HTTPModule),
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("migrate", true, "Migrate the schema before serving")
}
