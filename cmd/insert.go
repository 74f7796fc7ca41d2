package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"handlescope/internal/bootstrap"
	"handlescope/internal/bootstrap/logging"
	"handlescope/internal/errs"
	"handlescope/internal/usecase/counting"
)

var insertCmd = &cobra.Command{
	Use:   "insert",
	Short: "Insert counting entries, optionally failing part way",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		size, _ := cmd.Flags().GetInt("size")
		failOn, _ := cmd.Flags().GetInt("fail-on")
		atomic, _ := cmd.Flags().GetBool("atomic")
		workers, _ := cmd.Flags().GetInt("workers")
		failOnce, _ := cmd.Flags().GetBool("fail-once")
		linked, _ := cmd.Flags().GetBool("linked")

		ctx := logging.WithAttrs(cmd.Context(),
			slog.Int("size", size),
			slog.Bool("atomic", atomic),
			slog.Int("workers", workers),
		)

		insert := func(ctx context.Context) error {
			if workers <= 1 && !linked {
				return app.Counting.Insert(ctx, size, failOn)
			}
			return app.Counting.InsertConcurrent(ctx, counting.InsertConcurrentInput{
				Workers:  workers,
				FailOnce: failOnce,
				FailOn:   failOn,
				Size:     size,
				Linked:   linked,
			})
		}

		var err error
		if atomic {
			err = app.UnitOfWork.WithTx(ctx, insert)
		} else {
			err = app.UnitOfWork.Read(ctx, insert)
		}

		var total int64
		countErr := app.UnitOfWork.Read(ctx, func(ctx context.Context) error {
			var err error
			total, err = app.Counting.Count(ctx)
			return err
		})
		if countErr == nil {
			if _, werr := fmt.Fprintf(cmd.OutOrStdout(), "entries: %d\n", total); werr != nil {
				return errs.Wrap(werr, "write insert output")
			}
		}

		if err != nil {
			return errs.Join(errs.Wrap(err, "insert entries"), countErr)
		}
		return countErr
	}),
}

func init() {
	rootCmd.AddCommand(insertCmd)
	insertCmd.Flags().Int("size", 1, "Rows to insert per worker")
	insertCmd.Flags().Int("fail-on", counting.NoFailure, "Fail when reaching this row (1-based)")
	insertCmd.Flags().Bool("atomic", true, "Run the insert as one unit of work")
	insertCmd.Flags().Int("workers", 1, "Concurrent insert workers")
	insertCmd.Flags().Bool("fail-once", false, "Hand fail-on to exactly one worker")
	insertCmd.Flags().Bool("linked", false, "Start workers that share the caller's handle (linked manager)")
}
