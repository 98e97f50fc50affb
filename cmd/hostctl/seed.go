package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/openpdv/pdvhost/internal/model"
)

func newSeedCmd(e env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Manage the fiscal sequence seed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set NUMBER",
		Short: "Store the number the fiscal sequence continues from when no note was issued",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || n < 0 {
				return fmt.Errorf("seed must be a non-negative integer, got %q", args[0])
			}
			return withStore(cmd, e, func(ctx context.Context, s store) error {
				if err := s.PutSetting(ctx, model.SequenceSeedKey, strconv.FormatInt(n, 10)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %d\n", model.SequenceSeedKey, n)
				return nil
			})
		},
	})
	return cmd
}
