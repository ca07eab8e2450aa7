package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [phone] [amount]",
		Short: "Report whether a payer/amount pair already has a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}

			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			paid, err := a.service.Paid(cmd.Context(), args[0], amount)
			if err != nil {
				return err
			}
			if paid {
				fmt.Printf("%s: Ksh%d already on record\n", args[0], amount)
			} else {
				fmt.Printf("%s: no Ksh%d record\n", args[0], amount)
			}
			return nil
		},
	}
}
