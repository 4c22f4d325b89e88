package cmd

import (
	"github.com/spf13/cobra"
)

func newRefreshSQLEndpointCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-sql-endpoint WORKSPACE_ID SQL_ENDPOINT_ID",
		Short: "Sync a SQL analytics endpoint with its lakehouse tables",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fabric, err := a.fabric()
			if err != nil {
				return err
			}
			res, err := fabric.RefreshSQLEndpoint(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}
