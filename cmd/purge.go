package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/NgigiN/stkpush/internal/retention"
)

func purgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete transaction records older than the retention horizon",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			horizon, _ := cmd.Flags().GetDuration("horizon")
			if horizon <= 0 {
				horizon = a.cfg.RetentionHorizon
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			n, err := retention.NewSweeper(a.db, horizon, a.log).Run(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d transactions older than %s\n", n, horizon)
			return nil
		},
	}

	cmd.Flags().Duration("horizon", 0, "Retention horizon (defaults to RETENTION_HORIZON)")
	return cmd
}
