package main

import (
	"github.com/spf13/cobra"

	"github.com/oidf-tools/ofresolve/internal/entityid"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <entity-id> <issuer-id>",
	Short: "Fetch and verify the subordinate statement issuer-id issues about entity-id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := entityid.Parse(args[0])
		if err != nil {
			return err
		}
		issuer, err := entityid.Parse(args[1])
		if err != nil {
			return err
		}
		stmt, err := newCore().FetchStatement(cmd.Context(), id, issuer)
		if err != nil {
			return err
		}
		return printJSON(stmt)
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
