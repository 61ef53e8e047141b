package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"harbour/internal/ops"
)

func newDoctorCmd(globals *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the build environment: compilers, git, state directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := globals.loadContext()
			if err != nil {
				return err
			}
			report := ops.Doctor(ctx)
			ops.RenderDoctor(os.Stdout, report)
			if !report.Healthy() {
				return fmt.Errorf("environment is not ready to build")
			}
			return nil
		},
	}
}
