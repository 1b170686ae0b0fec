package main

import (
	"github.com/spf13/cobra"

	"github.com/oidf-tools/ofresolve/internal/entityid"
)

var verifyFlag bool

var entityConfigCmd = &cobra.Command{
	Use:   "entity-config <entity-id>",
	Short: "Fetch and print an entity's self-signed entity configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := entityid.Parse(args[0])
		if err != nil {
			return err
		}
		stmt, err := newCore().GetEntityConfig(cmd.Context(), id, verifyFlag)
		if err != nil {
			return err
		}
		return printJSON(stmt)
	},
}

var entityMetadataCmd = &cobra.Command{
	Use:   "entity-metadata <entity-id>",
	Short: "Fetch and print an entity's published metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := entityid.Parse(args[0])
		if err != nil {
			return err
		}
		md, err := newCore().GetEntityMetadata(cmd.Context(), id, verifyFlag)
		if err != nil {
			return err
		}
		return printJSON(md)
	},
}

var entityJWKSCmd = &cobra.Command{
	Use:   "entity-jwks <entity-id>",
	Short: "Fetch and print an entity's published jwks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := entityid.Parse(args[0])
		if err != nil {
			return err
		}
		jwks, err := newCore().GetEntityJWKS(cmd.Context(), id)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(append(jwks, '\n'))
		return err
	},
}

func init() {
	for _, c := range []*cobra.Command{entityConfigCmd, entityMetadataCmd} {
		c.Flags().BoolVar(&verifyFlag, "verify", true, "verify the entity's signature over its own configuration")
	}
	rootCmd.AddCommand(entityConfigCmd, entityMetadataCmd, entityJWKSCmd)
}
