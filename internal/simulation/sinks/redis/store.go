package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"custodywatch/internal/changeevent"
	"custodywatch/internal/health"
)

const defaultRecentLimit = 100

// Store writes the mirror with go-redis. Keys:
//
//	<prefix>county:<id>     hash of the county's health
//	<prefix>counties        set of mirrored county IDs
//	<prefix>events:recent   newest-first list of event summaries, capped
type Store struct {
	client      goredis.Cmdable
	prefix      string
	recentLimit int64
}

// NewStore creates a store writing under prefix.
func NewStore(client goredis.Cmdable, prefix string) *Store {
	return &Store{client: client, prefix: prefix, recentLimit: defaultRecentLimit}
}

func (s *Store) countyKey(id string) string { return s.prefix + "county:" + id }
func (s *Store) countiesKey() string        { return s.prefix + "counties" }
func (s *Store) recentKey() string          { return s.prefix + "events:recent" }

// Write applies one batch in a single pipeline.
func (s *Store) Write(ctx context.Context, counties []health.CountyHealth, events []changeevent.Summary) error {
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, h := range counties {
			last := ""
			if !h.LastSuccessfulObservationAt.IsZero() {
				last = h.LastSuccessfulObservationAt.UTC().Format(time.RFC3339Nano)
			}
			pipe.HSet(ctx, s.countyKey(h.JurisdictionID),
				"status", string(h.Status),
				"consecutive_failures", h.ConsecutiveFailures,
				"last_successful_observation_at", last,
			)
			pipe.SAdd(ctx, s.countiesKey(), h.JurisdictionID)
		}
		for _, e := range events {
			raw, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal event %s: %w", e.EventID, err)
			}
			pipe.LPush(ctx, s.recentKey(), raw)
		}
		if len(events) > 0 {
			pipe.LTrim(ctx, s.recentKey(), 0, s.recentLimit-1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write redis mirror: %w", err)
	}
	return nil
}

// County reads one mirrored county back.
func (s *Store) County(ctx context.Context, id string) (health.CountyHealth, bool, error) {
	vals, err := s.client.HGetAll(ctx, s.countyKey(id)).Result()
	if err != nil {
		return health.CountyHealth{}, false, fmt.Errorf("read county %s: %w", id, err)
	}
	if len(vals) == 0 {
		return health.CountyHealth{}, false, nil
	}
	h := health.CountyHealth{JurisdictionID: id, Status: health.Status(vals["status"])}
	if h.ConsecutiveFailures, err = strconv.Atoi(vals["consecutive_failures"]); err != nil {
		return health.CountyHealth{}, false, fmt.Errorf("county %s failures: %w", id, err)
	}
	if ts := vals["last_successful_observation_at"]; ts != "" {
		if h.LastSuccessfulObservationAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return health.CountyHealth{}, false, fmt.Errorf("county %s timestamp: %w", id, err)
		}
	}
	return h, true, nil
}

// Recent returns up to n of the newest mirrored events.
func (s *Store) Recent(ctx context.Context, n int64) ([]changeevent.Summary, error) {
	raws, err := s.client.LRange(ctx, s.recentKey(), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent events: %w", err)
	}
	out := make([]changeevent.Summary, 0, len(raws))
	for _, raw := range raws {
		var sum changeevent.Summary
		if err := json.Unmarshal([]byte(raw), &sum); err != nil {
			return nil, fmt.Errorf("decode recent event: %w", err)
		}
		out = append(out, sum)
	}
	return out, nil
}
