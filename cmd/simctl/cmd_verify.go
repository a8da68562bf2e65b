package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"custodywatch/internal/app"
	"custodywatch/internal/platform/config"
	"custodywatch/pkg/platform/audit"
)

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	var (
		file   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify an audit chain from a file or the configured store",
		Long: `Verify recomputes every payload and entry hash and checks each link. The
chain comes from --file (a JSON array as written by "simctl run --out", "-"
for stdin) or, without --file, from the configured postgres or badger store.
Exits 2 when the chain is broken.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var entries []audit.Entry
			if file != "" {
				var err error
				if entries, err = readEntries(cmd, file); err != nil {
					return err
				}
			} else {
				if opts.cfg.Storage.Driver == config.DriverMemory {
					return fmt.Errorf("nothing to verify: storage driver is %q; pass --file", config.DriverMemory)
				}
				ctx := cmd.Context()
				store, closeStore, err := app.OpenStore(ctx, opts.cfg.Storage, opts.log)
				if err != nil {
					return err
				}
				defer closeStore()
				if entries, err = store.List(ctx); err != nil {
					return fmt.Errorf("list audit entries: %w", err)
				}
			}
			return printReport(cmd.OutOrStdout(), audit.Verify(entries), asJSON)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", `chain file to verify ("-" for stdin)`)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the integrity report as JSON")
	return cmd
}
