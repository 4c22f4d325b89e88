package cmd

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newClusterURLCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cluster-url",
		Short: "Print the Power BI cluster URL used by the metadata endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pbi, err := a.powerBI()
			if err != nil {
				return err
			}
			u, err := pbi.ClusterURL(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}
}

func newWorkspaceIconCmd(a *app) *cobra.Command {
	var (
		clusterURL string
		set        string
	)

	cmd := &cobra.Command{
		Use:   "workspace-icon WORKSPACE_ID",
		Short: "Show or change a workspace icon",
		Long: `Without --set, print the workspace's metadata, which includes its iconUrl.
With --set, change the icon: "default" restores the built-in icon, @file.png
uploads a PNG, and any other value is taken as base64 PNG data.

Changing the icon requires admin rights on the workspace.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pbi, err := a.powerBI()
			if err != nil {
				return err
			}
			cluster := clusterURL
			if cluster == "" {
				if cluster, err = pbi.ClusterURL(cmd.Context()); err != nil {
					return err
				}
			}

			if set == "" {
				meta, err := pbi.WorkspaceMetadata(cmd.Context(), cluster, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), meta)
			}

			icon, err := readIcon(set)
			if err != nil {
				return err
			}
			res, err := pbi.SetWorkspaceIcon(cmd.Context(), cluster, args[0], icon)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&clusterURL, "cluster-url", "", "cluster URL (discovered when empty)")
	cmd.Flags().StringVar(&set, "set", "", `new icon: "default", @file.png or base64 PNG`)
	return cmd
}

func readIcon(value string) (string, error) {
	if !strings.HasPrefix(value, "@") {
		return value, nil
	}
	data, err := os.ReadFile(strings.TrimPrefix(value, "@"))
	if err != nil {
		return "", fmt.Errorf("reading icon: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

