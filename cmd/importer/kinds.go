package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/medimport/internal/core"
)

func newKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List import kinds and the columns they accept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, kind := range core.Kinds() {
				schema, _ := core.Lookup(kind)
				fmt.Fprintf(w, "%s\t(%s)\tkey: %v\n", kind, schema.Label, schema.KeyFields)
				for _, f := range schema.Fields {
					req := ""
					if f.Required {
						req = "required"
					}
					fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", f.Name, f.Type, req, strings.Join(f.Aliases, ", "))
				}
			}
			return w.Flush()
		},
	}
}
