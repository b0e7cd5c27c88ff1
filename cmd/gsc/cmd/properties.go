package cmd

import (
	"github.com/spf13/cobra"

	"search-analytics-node/internal/node"
	"search-analytics-node/internal/properties"
)

func newPropertiesCmd(opts *rootOptions) *cobra.Command {
	var typ, verification string

	cmd := &cobra.Command{
		Use:   "properties",
		Short: "List the Search Console properties the credential can access",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeNode(cmd, opts, node.PropertiesNode, properties.Request{
				Type:         properties.TypeFilter(typ),
				Verification: properties.VerificationFilter(verification),
			})
		},
	}

	cmd.Flags().StringVar(&typ, "type", string(properties.AnyType), "Property type: all, urlprefix, domain")
	cmd.Flags().StringVar(&verification, "verification", string(properties.AnyVerification), "Verification: all, verified, unverified")

	return cmd
}
