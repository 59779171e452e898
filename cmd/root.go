// Package cmd implements the dmearchive CLI commands.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/eykd/dmearchive/internal/config"
)

// NewRootCmd creates the root dmearchive command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dmearchive",
		Short:         "dmearchive - register sequencing and imaging data with the HPC DME archive",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE:          rootRunE,
	}
	root.PersistentFlags().String("config", config.DefaultPath, "configuration file")
	root.PersistentFlags().BoolP("verbose", "v", false, "log at debug level")

	root.AddCommand(NewTarsCmd(newDefaultTarsIO()))
	root.AddCommand(NewDirsCmd(newDefaultDirsIO()))
	root.AddCommand(NewStageCmd(newDefaultStageIO()))
	root.AddCommand(NewHiTIFCmd(newDefaultHiTIFIO()))
	root.AddCommand(NewDeriveCmd())
	root.AddCommand(NewStatusCmd(newDefaultStatusReader()))
	return root
}

func rootRunE(cmd *cobra.Command, _ []string) error {
	return cmd.Help()
}
