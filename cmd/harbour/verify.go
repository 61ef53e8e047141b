package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"harbour/internal/ops"
)

func newVerifyCmd(globals *globalFlags) *cobra.Command {
	var profile, cppStd, format string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run the CI-grade gate: resolve, lockfile, constraints, plan, build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := ops.ParseVerifyFormat(format)
			if err != nil {
				return err
			}
			ctx, err := globals.loadContext()
			if err != nil {
				return err
			}
			proj, err := ops.LoadProject(".")
			if err != nil {
				return err
			}
			res := ops.VerifyProject(cmd.Context(), ctx, proj, ops.BuildOptions{
				Profile: profile,
				Jobs:    globals.jobs,
				CppStd:  cppStd,
			})
			if err := ops.RenderVerify(os.Stdout, res, outFormat); err != nil {
				return err
			}
			if !res.Passed {
				return fmt.Errorf("verification failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "debug", "build profile")
	cmd.Flags().StringVar(&cppStd, "cpp-std", "", "override the effective C++ standard")
	cmd.Flags().StringVar(&format, "format", "human", "output format: human, json, or github")
	return cmd
}
