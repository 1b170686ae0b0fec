package main

import (
	"github.com/spf13/cobra"

	"github.com/oidf-tools/ofresolve/internal/endpoints"
	"github.com/oidf-tools/ofresolve/internal/entityid"
)

var (
	listEntityType  string
	listTrustMarked bool
	listTrustMarkID string
)

var listCmd = &cobra.Command{
	Use:   "list <entity-id>",
	Short: "List an entity's subordinates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := entityid.Parse(args[0])
		if err != nil {
			return err
		}
		filter := endpoints.ListFilter{
			EntityType:  listEntityType,
			TrustMarked: listTrustMarked,
			TrustMarkID: listTrustMarkID,
		}
		ids, err := newCore().ListSubordinates(cmd.Context(), id, filter)
		if err != nil {
			return err
		}
		return printJSON(ids)
	},
}

func init() {
	listCmd.Flags().StringVar(&listEntityType, "entity-type", "", "filter subordinates by entity type")
	listCmd.Flags().BoolVar(&listTrustMarked, "trust-marked", false, "only list subordinates holding a trust mark")
	listCmd.Flags().StringVar(&listTrustMarkID, "trust-mark-id", "", "only list subordinates holding this specific trust mark")
	rootCmd.AddCommand(listCmd)
}
