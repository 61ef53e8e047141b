package main

import (
	"github.com/spf13/cobra"

	"harbour/internal/ops"
)

func newUpdateCmd(globals *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Re-resolve dependencies and rewrite the lockfile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := globals.loadContext()
			if err != nil {
				return err
			}
			proj, err := ops.LoadProject(".")
			if err != nil {
				return err
			}
			if err := ops.UpdateProject(ctx, proj); err != nil {
				return err
			}
			ctx.Log.Info("lockfile updated")
			return nil
		},
	}
}
