package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"handlescope/internal/bootstrap"
	"handlescope/internal/errs"
)

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of counting entries",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		var n int64
		err := app.UnitOfWork.Read(cmd.Context(), func(ctx context.Context) error {
			var err error
			n, err = app.Counting.Count(ctx)
			return err
		})
		if err != nil {
			return errs.Wrap(err, "count entries")
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), n); err != nil {
			return errs.Wrap(err, "write count output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(countCmd)
}
