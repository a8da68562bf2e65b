package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"custodywatch/internal/platform/config"
	"custodywatch/internal/platform/logger"
	"custodywatch/pkg/platform/audit"
)

// Exit codes.
const (
	exitError       = 1
	exitChainBroken = 2
)

var errChainBroken = errors.New("audit chain broken")

func exitCode(err error) int {
	if errors.Is(err, errChainBroken) {
		return exitChainBroken
	}
	return exitError
}

// rootOptions is the state shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	cfg        config.Config
	log        *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "simctl",
		Short:         "Run, inspect and verify custodywatch simulations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.configPath
			if path == "" {
				path = os.Getenv("CUSTODYWATCH_CONFIG")
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			opts.cfg = cfg
			// Logs go to stderr so stdout stays clean for exports.
			opts.log = logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, "text")
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file (default $CUSTODYWATCH_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(opts),
		newVerifyCmd(opts),
		newImportCmd(opts),
		newJurisdictionsCmd(opts),
		newTailCmd(opts),
	)
	return root
}

// readEntries decodes an exported chain from path, or stdin for "-".
func readEntries(cmd *cobra.Command, path string) ([]audit.Entry, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open chain file: %w", err)
		}
		defer f.Close()
		r = f
	}
	var entries []audit.Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode chain file: %w", err)
	}
	return entries, nil
}

// writeEntries encodes the chain to path, or stdout for "-".
func writeEntries(cmd *cobra.Command, path string, entries []audit.Entry) error {
	var w io.Writer
	if path == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create chain file: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("write chain file: %w", err)
	}
	return nil
}

func printReport(w io.Writer, report audit.IntegrityReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else if report.Intact {
		fmt.Fprintf(w, "chain intact: %d entries checked\n", report.Checked)
	} else {
		fmt.Fprintf(w, "chain BROKEN at index %d (sequence %d): %s\n", report.BrokenIndex, report.BrokenSequence, report.Reason)
	}
	if !report.Intact {
		return fmt.Errorf("%w at sequence %d", errChainBroken, report.BrokenSequence)
	}
	return nil
}
