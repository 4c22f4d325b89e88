package cmd

import (
	"github.com/spf13/cobra"

	"github.com/opengovern/fabric-bridge/adapters"
)

func newWorkspacesCmd(a *app) *cobra.Command {
	var (
		mustContain   string
		eitherContain []string
	)

	cmd := &cobra.Command{
		Use:   "workspaces",
		Short: "List workspaces, optionally filtered by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fabric, err := a.fabric()
			if err != nil {
				return err
			}
			items, err := fabric.ListWorkspaces(cmd.Context())
			if err != nil {
				return err
			}

			if mustContain != "" || len(eitherContain) > 0 {
				either := eitherContain
				if len(either) == 0 {
					either = []string{""}
				}
				items = adapters.FilterItems(items, mustContain, either)
			}
			if items == nil {
				items = []adapters.Item{}
			}
			return printJSON(cmd.OutOrStdout(), items)
		},
	}

	cmd.Flags().StringVar(&mustContain, "must-contain", "", "keep names containing this text")
	cmd.Flags().StringSliceVar(&eitherContain, "either-contain", nil, "keep names containing any of these")
	return cmd
}
