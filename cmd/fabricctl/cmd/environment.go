package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opengovern/fabric-bridge/adapters"
)

func newEnvironmentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "environment WORKSPACE_NAME",
		Short: "Print the deployment stage (dev, tst or prd) for a workspace name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), adapters.EnvironmentFor(args[0]))
			return nil
		},
	}
}
