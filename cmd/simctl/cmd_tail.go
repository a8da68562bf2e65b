package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"custodywatch/internal/changeevent"
	platformkafka "custodywatch/internal/platform/kafka"
	pstrings "custodywatch/pkg/platform/strings"
)

var errLimitReached = errors.New("limit reached")

func newTailCmd(opts *rootOptions) *cobra.Command {
	var (
		brokers []string
		group   string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print change events from the Kafka stream",
		Long: `Tail consumes the change-event topic from the earliest offset and prints
one line per event update until interrupted or --limit messages were read.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg.Kafka
			if len(brokers) > 0 {
				cfg.Brokers = pstrings.DedupeAndTrim(brokers)
			}
			if len(cfg.Brokers) == 0 {
				return errors.New("no kafka brokers: set kafka.brokers, KAFKA_BROKERS or --brokers")
			}

			consumer, err := platformkafka.NewConsumer(platformkafka.Config{
				Brokers:  cfg.Brokers,
				Topic:    cfg.Topic,
				ClientID: "custodywatch-simctl",
			}, group, opts.log)
			if err != nil {
				return err
			}
			defer consumer.Close()

			out := cmd.OutOrStdout()
			seen := 0
			err = consumer.Run(cmd.Context(), platformkafka.HandlerFunc(func(_ context.Context, msg *platformkafka.Message) error {
				var sum changeevent.Summary
				if err := json.Unmarshal(msg.Value, &sum); err != nil {
					opts.log.Warn("skipping undecodable message", "partition", msg.Partition, "offset", msg.Offset, "error", err)
					return nil
				}
				fmt.Fprintf(out, "%s  %-8s  %-36s  %-6s  %-12s  %.2f  %v\n",
					sum.UpdatedAt.Format("2006-01-02T15:04:05Z"), sum.Status, sum.EventID,
					sum.JurisdictionID, sum.PersonID, sum.Confidence, sum.Fields)
				seen++
				if limit > 0 && seen >= limit {
					return errLimitReached
				}
				return nil
			}))
			if errors.Is(err, errLimitReached) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringSliceVar(&brokers, "brokers", nil, "override kafka.brokers")
	cmd.Flags().StringVar(&group, "group", "", "consumer group (default: none, nothing is committed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many messages (0 = until interrupted)")
	return cmd
}
