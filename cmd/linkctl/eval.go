package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/liamcoop/linker/provider"
	"github.com/liamcoop/linker/resolver"
	"github.com/spf13/cobra"
)

func evalCmd() *cobra.Command {
	var (
		dataFile string
		origin   string
		params   map[string]string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "eval <query...>",
		Short: "Resolve a query and print its trace",
		Long: `Resolve a query against the shortcuts and tables in a data file and
print every step taken, followed by the result.

linkctl flags go before the query. Everything from the first query word
on, including --name=value flags, is part of the query.

Examples:
  linkctl eval --data linker.yaml go mr 42
  linkctl eval --data linker.yaml go env 7 --env=prod
  linkctl eval --data linker.json --param version=18 find docs react ts
  linkctl eval --data linker.yaml --json "go mr 42"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := resolver.NewService(provider.NewFileProvider(dataFile), origin)

			eval, err := svc.Resolve(cmd.Context(), strings.Join(args, " "), "", params)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(eval)
			}
			return printEvaluation(cmd.OutOrStdout(), eval)
		},
	}

	cmd.Flags().StringVarP(&dataFile, "data", "d", "", "Data file with shortcuts and tables (JSON or YAML)")
	cmd.Flags().StringVar(&origin, "origin", "", "Origin the linker is served from, so absolute links to it chain")
	cmd.Flags().StringToStringVarP(&params, "param", "p", nil, "URL parameter as name=value (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the evaluation as JSON")
	cmd.MarkFlagRequired("data")
	cmd.Flags().SetInterspersed(false)

	return cmd
}

// printEvaluation writes one line per step, indented by chain depth, then
// the result
func printEvaluation(w io.Writer, eval resolver.Evaluation) error {
	for _, step := range eval.Steps {
		indent := strings.Repeat("  ", resolver.StepDepth(step))
		if _, err := fmt.Fprintf(w, "%s%s\n", indent, resolver.Describe(step)); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w, describeResult(eval.Result))
	if err != nil {
		return err
	}

	if f, ok := eval.Result.(resolver.Failure); ok {
		return errors.New(f.Message)
	}
	return nil
}

func describeResult(r resolver.Result) string {
	switch r := r.(type) {
	case resolver.Redirect:
		return "=> redirect " + r.URL
	case resolver.Navigate:
		return "=> navigate " + r.To
	case resolver.Picker:
		var b strings.Builder
		fmt.Fprintf(&b, "=> pick one of %d entries from %q", len(r.Entries), r.Table.Key)
		for _, e := range r.Entries {
			fmt.Fprintf(&b, "\n   - %s [%s] %s", e.Description, strings.Join(e.Tags, ","), r.EntryURL(e))
		}
		return b.String()
	case resolver.Failure:
		return "=> error " + r.Message
	default:
		return "=> none"
	}
}
