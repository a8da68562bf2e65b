package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"custodywatch/internal/app"
	"custodywatch/internal/platform/config"
	"custodywatch/pkg/platform/audit"
	"custodywatch/pkg/platform/sentinel"
)

// importer is a store that can write a whole chain atomically.
type importer interface {
	Import(ctx context.Context, entries []audit.Entry) error
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load an exported chain into the configured store",
		Long: `Import verifies the chain in --file and writes it to the configured
postgres or badger store, which must be empty. A broken chain is refused.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.cfg.Storage.Driver == config.DriverMemory {
				return fmt.Errorf("import needs a persistent storage driver, got %q", config.DriverMemory)
			}
			entries, err := readEntries(cmd, file)
			if err != nil {
				return err
			}
			if report := audit.Verify(entries); !report.Intact {
				_ = printReport(cmd.ErrOrStderr(), report, false)
				return fmt.Errorf("refusing to import: %w", errChainBroken)
			}

			ctx := cmd.Context()
			store, closeStore, err := app.OpenStore(ctx, opts.cfg.Storage, opts.log)
			if err != nil {
				return err
			}
			defer closeStore()

			existing, err := store.List(ctx)
			if err != nil {
				return fmt.Errorf("list audit entries: %w", err)
			}
			if len(existing) > 0 {
				return fmt.Errorf("store already holds %d entries: %w", len(existing), sentinel.ErrConflict)
			}

			if imp, ok := store.(importer); ok {
				err = imp.Import(ctx, entries)
			} else {
				err = appendAll(ctx, store, entries)
			}
			if err != nil {
				return fmt.Errorf("import chain: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries into %s\n", len(entries), opts.cfg.Storage.Driver)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", `chain file to import ("-" for stdin)`)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func appendAll(ctx context.Context, store audit.Store, entries []audit.Entry) error {
	for _, e := range entries {
		if err := store.Append(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
