package main

import (
	"github.com/spf13/cobra"

	"github.com/oidf-tools/ofresolve/internal/entityid"
	"github.com/oidf-tools/ofresolve/internal/graph"
	"github.com/oidf-tools/ofresolve/internal/subtree"
)

var subtreeCmd = &cobra.Command{
	Use:   "subtree <entity-id>",
	Short: "Discover the federation subtree rooted at entity-id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := entityid.Parse(args[0])
		if err != nil {
			return err
		}
		disc := subtree.New(newCore().Endpoints())
		root, err := disc.Discover(cmd.Context(), id)
		if err != nil {
			return err
		}
		if err := printJSON(root.Serialize()); err != nil {
			return err
		}
		if exportPath == "" {
			return nil
		}
		if isDotExport() {
			dot, err := graph.SubtreeDOT(root)
			if err != nil {
				return err
			}
			return writeExport(dot)
		}
		out, err := graph.SubtreeJSON(root)
		if err != nil {
			return err
		}
		return writeExport(string(out))
	},
}

func init() {
	rootCmd.AddCommand(subtreeCmd)
}
