package cmd

import (
	"github.com/spf13/cobra"

	"github.com/opengovern/fabric-bridge/adapters"
)

func newShortcutsCmd(a *app) *cobra.Command {
	var source, target adapters.LakehouseRef

	cmd := &cobra.Command{
		Use:   "shortcuts TABLE...",
		Short: "Create table shortcuts from one lakehouse in another",
		Long: `Create a OneLake shortcut in the target lakehouse's Tables folder for each
named table of the source lakehouse. Shortcuts that already exist are
overwritten.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fabric, err := a.fabric()
			if err != nil {
				return err
			}
			res, err := fabric.CreateTableShortcuts(cmd.Context(), args, source, target)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	f := cmd.Flags()
	f.StringVar(&source.WorkspaceID, "source-workspace", "", "workspace id of the source lakehouse")
	f.StringVar(&source.LakehouseID, "source-lakehouse", "", "source lakehouse id")
	f.StringVar(&target.WorkspaceID, "target-workspace", "", "workspace id of the target lakehouse")
	f.StringVar(&target.LakehouseID, "target-lakehouse", "", "target lakehouse id")
	for _, name := range []string{"source-workspace", "source-lakehouse", "target-workspace", "target-lakehouse"} {
		cobra.CheckErr(cmd.MarkFlagRequired(name))
	}
	return cmd
}
