package main

import (
	"fmt"

	"github.com/liamcoop/linker/provider"
	"github.com/spf13/cobra"
)

func validateCmd() *cobra.Command {
	var dataFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a data file before importing it",
		Long: `Decode a shortcuts document and check every shortcut, rule, table and
entry. All problems are reported at once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := provider.ReadFile(dataFile)
			if err != nil {
				return err
			}

			if err := doc.Validate(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s is invalid:\n%v\n", dataFile, err)
				return fmt.Errorf("%w: %s", provider.ErrInvalidDocument, dataFile)
			}

			rules := 0
			for _, c := range doc.Shortcuts {
				rules += len(c.Rules)
			}
			entries := 0
			for _, t := range doc.Tables {
				entries += len(t.Entries)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d shortcuts (%d rules), %d tables (%d entries)\n",
				dataFile, len(doc.Shortcuts), rules, len(doc.Tables), entries)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dataFile, "data", "d", "", "Data file to validate (JSON or YAML)")
	cmd.MarkFlagRequired("data")

	return cmd
}
