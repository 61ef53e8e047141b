package main

import (
	"os"

	"github.com/spf13/cobra"

	"harbour/internal/ops"
)

func newTreeCmd(globals *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print the resolved dependency tree",
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
			return ops.Tree(os.Stdout, ctx, proj)
		},
	}
}

func newFlagsCmd(globals *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "flags <target>",
		Short: "Print a target's effective compile and link surface with provenance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := globals.loadContext()
			if err != nil {
				return err
			}
			proj, err := ops.LoadProject(".")
			if err != nil {
				return err
			}
			return ops.Flags(os.Stdout, ctx, proj, args[0])
		},
	}
}

func newLinkplanCmd(globals *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "linkplan <target>",
		Short: "Print the ordered link inputs of an executable or shared library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := globals.loadContext()
			if err != nil {
				return err
			}
			proj, err := ops.LoadProject(".")
			if err != nil {
				return err
			}
			return ops.LinkPlan(os.Stdout, ctx, proj, args[0])
		},
	}
}

func newExplainCmd(globals *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "explain <package>",
		Short: "Print every dependency path leading to a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := globals.loadContext()
			if err != nil {
				return err
			}
			proj, err := ops.LoadProject(".")
			if err != nil {
				return err
			}
			return ops.Explain(os.Stdout, ctx, proj, args[0])
		},
	}
}
