package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// AppInfo describes one registered app.
type AppInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// NewAppsCommand creates the apps command.
func NewAppsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "apps",
		Short:         "List the apps that can be mounted",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := registry(rootOpts).List()
			infos := make([]AppInfo, len(list))
			for i, a := range list {
				infos[i] = AppInfo{Name: a.Name, Description: a.Description}
			}

			if rootOpts.Format == "json" {
				f := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
				return f.Success(infos)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%s\n", info.Name, info.Description)
			}
			return tw.Flush()
		},
	}
}
