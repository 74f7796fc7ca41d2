package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"handlescope/internal/bootstrap/logging"
	"handlescope/internal/errs"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "handlescope",
	Short:        "Unit-of-work handle scoping over SQLite",
	Long:         "Serves and exercises request-scoped database handles. Cobra + Viper + fx + GORM(SQLite no-cgo).",
	SilenceUsage: true,
}

// Execute runs the root command. It is called once by main.main().
func Execute(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	ctx = logging.WithLogger(ctx, logging.New(rootCmd.ErrOrStderr(), "info"))
	ctx = logging.WithAttrs(ctx, slog.String("app", "handlescope"))

	rootCmd.SetContext(ctx)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Error(ctx, "command execution failed", slog.Any("err", errs.Loggable(err)))
		return errs.Wrap(err, "execute root command")
	}

	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file path (default ./configs/config.yaml when present)")
}
