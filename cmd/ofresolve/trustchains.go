package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/oidf-tools/ofresolve/internal/entityid"
	"github.com/oidf-tools/ofresolve/internal/graph"
	"github.com/oidf-tools/ofresolve/internal/resolver"
)

var trustChainsCmd = &cobra.Command{
	Use:   "trust-chains <entity-id>",
	Short: "Resolve every trust chain from entity-id up to a trust anchor",
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

		res := resolver.New(newCore().Endpoints())
		chains, err := res.Resolve(cmd.Context(), id, anchors)
		if err != nil {
			return err
		}
		if err := printJSON(chains); err != nil {
			return err
		}
		for _, ch := range chains {
			exp := time.Unix(ch.Expiration(), 0)
			fmt.Fprintf(cmd.OutOrStdout(), "# %s (expires %s)\n", ch.Summary(), humanize.Time(exp))
		}

		if exportPath == "" {
			return nil
		}
		if isDotExport() {
			tree, err := res.ResolveTree(cmd.Context(), id, anchors)
			if err != nil {
				return err
			}
			dot, err := graph.TrustTreeDOT(tree)
			if err != nil {
				return err
			}
			return writeExport(dot)
		}
		out, err := graph.ChainsJSON(chains)
		if err != nil {
			return err
		}
		return writeExport(string(out))
	},
}

func init() {
	rootCmd.AddCommand(trustChainsCmd)
}
