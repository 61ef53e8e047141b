package main

import (
	"github.com/spf13/cobra"

	"harbour/internal/ops"
)

func newBuildCmd(globals *globalFlags) *cobra.Command {
	var profile, cppStd string
	var targets []string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Resolve dependencies and build the current project",
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
			res, err := ops.BuildProject(cmd.Context(), ctx, proj, ops.BuildOptions{
				Profile: profile,
				Jobs:    globals.jobs,
				CppStd:  cppStd,
				Targets: targets,
			})
			if err != nil {
				return err
			}
			ctx.Log.Info("build finished", "executed", res.Executed, "fresh", res.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "debug", "build profile")
	cmd.Flags().StringVar(&cppStd, "cpp-std", "", "override the effective C++ standard")
	cmd.Flags().StringSliceVar(&targets, "target", nil, "restrict the build to the named targets")
	return cmd
}
