package main

import (
	"github.com/spf13/cobra"

	"harbour/internal/harbourcfg"
)

// globalFlags are the persistent flags every subcommand inherits.
type globalFlags struct {
	verbose bool
	home    string
	jobs    int
}

// loadContext assembles the harbourcfg.Context from the flag overrides.
func (g *globalFlags) loadContext() (*harbourcfg.Context, error) {
	return harbourcfg.Load(harbourcfg.Context{
		HomeDir: g.home,
		Jobs:    g.jobs,
		Verbose: g.verbose,
	})
}

func newRootCmd() *cobra.Command {
	globals := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "harbour",
		Short:         "A package manager and build system for C and C++ projects",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&globals.verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&globals.home, "home", "", "harbour state directory (default ~/.harbour)")
	cmd.PersistentFlags().IntVarP(&globals.jobs, "jobs", "j", 0, "compile-phase parallelism (default: CPU count)")

	cmd.AddCommand(
		newBuildCmd(globals),
		newTestCmd(globals),
		newUpdateCmd(globals),
		newDoctorCmd(globals),
		newVerifyCmd(globals),
		newTreeCmd(globals),
		newFlagsCmd(globals),
		newLinkplanCmd(globals),
		newExplainCmd(globals),
		newNewCmd(globals),
		newAddCmd(globals),
		newRmCmd(globals),
		newRegistryCmd(globals),
	)
	return cmd
}
