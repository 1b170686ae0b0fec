package main

import (
	"github.com/spf13/cobra"

	"github.com/oidf-tools/ofresolve/internal/entityid"
	"github.com/oidf-tools/ofresolve/internal/statement"
)

var resolveEntityType string

var resolveCmd = &cobra.Command{
	Use:   "resolve <entity-id>",
	Short: "Resolve entity-id's effective metadata against a single trust anchor's policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := entityid.Parse(args[0])
		if err != nil {
			return err
		}
		anchor, err := singleAnchorID()
		if err != nil {
			return err
		}
		metadata, err := newCore().Resolve(cmd.Context(), id, anchor, statement.EntityType(resolveEntityType))
		if err != nil {
			return err
		}
		return printJSON(metadata)
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveEntityType, "type", "", "entity type to resolve metadata for, e.g. openid_relying_party")
	_ = resolveCmd.MarkFlagRequired("type")
	rootCmd.AddCommand(resolveCmd)
}
