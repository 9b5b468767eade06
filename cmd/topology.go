package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/aegiscore/internal/config"
	"github.com/xkilldash9x/aegiscore/internal/service"
)

// newTopologyCmd creates the `topology` command.
func newTopologyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "Print the network topology with live node status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, _ config.Interface, core *service.Components) error {
				topo, _ := core.Projector.Project(ctx)
				return printJSON(cmd.OutOrStdout(), topo)
			})
		},
	}
}
