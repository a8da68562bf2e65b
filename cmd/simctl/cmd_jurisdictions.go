package main

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"custodywatch/internal/jurisdiction"
)

func newJurisdictionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "jurisdictions",
		Aliases: []string{"counties"},
		Short:   "List the covered jurisdictions and their sources",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATE\tSOURCE\tROSTER")
			for _, e := range jurisdiction.Default().Entries() {
				roster := fmt.Sprint(opts.cfg.Simulation.RosterSize)
				if slices.Contains(opts.cfg.Simulation.SparseJurisdictions, e.Jurisdiction.ID) {
					roster = "none"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					e.Jurisdiction.ID, e.Jurisdiction.Name, e.Jurisdiction.StateCode, e.Source.SourceKind, roster)
			}
			return tw.Flush()
		},
	}
}
