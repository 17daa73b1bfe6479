package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/cdctrack/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "cdctrack", version.String())
			return err
		},
	}
}
