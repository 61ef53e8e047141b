package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"harbour/internal/registryops"
)

func newRegistryCmd(globals *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Manage the git-backed registries dependencies resolve from",
	}
	cmd.AddCommand(
		newRegistryInitCmd(globals),
		newRegistryCloneCmd(globals),
		newRegistryAddCmd(globals),
		newRegistryRmCmd(globals),
		newRegistryUpdateCmd(globals),
		newRegistryStatusCmd(globals),
		newRegistryDeleteCmd(globals),
	)
	return cmd
}

func newRegistryInitCmd(globals *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init <name> <git-url>",
		Short: "Create a new registry backed by an empty git remote",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := globals.loadContext()
			if err != nil {
				return err
			}
			return registryops.Init(ctx, args[0], args[1])
		},
	}
}

func newRegistryCloneCmd(globals *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clone <git-url>",
		Short: "Clone an existing registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := globals.loadContext()
			if err != nil {
				return err
			}
			name, err := registryops.Clone(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Cloned registry %q\n", name)
			return nil
		},
	}
}

func newRegistryAddCmd(globals *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "add <registry> <package-git-url>",
		Short: "Publish a package version into a registry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := globals.loadContext()
			if err != nil {
				return err
			}
			return registryops.Add(ctx, args[0], args[1])
		},
	}
}

func newRegistryRmCmd(globals *globalFlags) *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "rm <registry> <package>",
		Short: "Remove a package (or one version) from a registry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := globals.loadContext()
			if err != nil {
				return err
			}
			return registryops.Rm(ctx, args[0], args[1], version)
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "remove only this version")
	return cmd
}

func newRegistryUpdateCmd(globals *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "update [registry]",
		Short: "Pull the latest state of one or all registries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := globals.loadContext()
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return registryops.Update(ctx, name)
		},
	}
}

func newRegistryStatusCmd(globals *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <registry>",
		Short: "Print a registry's packages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := globals.loadContext()
			if err != nil {
				return err
			}
			idx, err := registryops.LoadIndex(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("registry %s (%s)\n", idx.Name, idx.GitURL)
			names := make([]string, 0, len(idx.Packages))
			for name := range idx.Packages {
				names = append(names, name)
			}
			sort.Strings(names)
			if len(names) == 0 {
				fmt.Println("  no packages published")
				return nil
			}
			for _, name := range names {
				fmt.Printf("  %s (%s)\n", name, idx.Packages[name].UUID)
			}
			return nil
		},
	}
}

func newRegistryDeleteCmd(globals *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <registry>",
		Short: "Remove the local clone of a registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := globals.loadContext()
			if err != nil {
				return err
			}
			return registryops.Delete(ctx, args[0])
		},
	}
}
