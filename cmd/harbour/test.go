package main

import (
	"github.com/spf13/cobra"

	"harbour/internal/ops"
)

func newTestCmd(globals *globalFlags) *cobra.Command {
	var profile, cppStd string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Build the project and run its test executables",
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
			return ops.TestProject(cmd.Context(), ctx, proj, ops.BuildOptions{
				Profile: profile,
				Jobs:    globals.jobs,
				CppStd:  cppStd,
			})
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "debug", "build profile")
	cmd.Flags().StringVar(&cppStd, "cpp-std", "", "override the effective C++ standard")
	return cmd
}
