package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lacquerai/engine/internal/protocol"
)

// schemaCmd represents the schema command
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Output the JSON schema of request and response lines",
	Long:  `Output the JSON schema describing one line of engine input and one line of engine output.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaBytes, err := protocol.Schema()
		if err != nil {
			return fmt.Errorf("failed to generate schema: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(schemaBytes))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
