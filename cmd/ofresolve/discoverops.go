package main

import (
	"github.com/spf13/cobra"

	"github.com/oidf-tools/ofresolve/internal/entityid"
)

var discoverOPsCmd = &cobra.Command{
	Use:   "discover-ops <relying-party-id>",
	Short: "Discover the OpenID Providers reachable from relying-party-id's trust anchors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := entityid.Parse(args[0])
		if err != nil {
			return err
		}
		anchors, err := anchorIDs()
		if err != nil {
			return err
		}
		ops, err := newCore().DiscoverOPs(cmd.Context(), id, anchors)
		if err != nil {
			return err
		}
		return printJSON(ops)
	},
}

func init() {
	rootCmd.AddCommand(discoverOPsCmd)
}
