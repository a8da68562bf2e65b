package main

import (
	"context"
	"log/slog"

	"custodywatch/internal/platform/config"
	platformkafka "custodywatch/internal/platform/kafka"
	platformredis "custodywatch/internal/platform/redis"
	"custodywatch/internal/simulation"
	"custodywatch/internal/simulation/sinks"
	kafkasink "custodywatch/internal/simulation/sinks/kafka"
	redissink "custodywatch/internal/simulation/sinks/redis"
)

// runner is a background component that stops when its context ends.
type runner interface {
	Run(ctx context.Context) error
}

// attachSinks connects the configured outbound sinks to svc. It returns the
// sink loops to run and a func that releases their clients.
func attachSinks(ctx context.Context, cfg config.Config, svc *simulation.Service, m *sinks.Metrics, log *slog.Logger) ([]runner, func(), error) {
	var (
		loops   []runner
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kcfg := platformkafka.Config{
			Brokers:           cfg.Kafka.Brokers,
			Topic:             cfg.Kafka.Topic,
			Partitions:        cfg.Kafka.Partitions,
			ReplicationFactor: cfg.Kafka.ReplicationFactor,
			ClientID:          "custodywatch-server",
		}
		producer, err := platformkafka.NewProducer(kcfg)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = producer.Close(context.Background()) })
		if err := platformkafka.EnsureTopic(ctx, producer.Client(), kcfg, log); err != nil {
			closeAll()
			return nil, nil, err
		}

		sink := kafkasink.New(producer, kafkasink.WithLogger(log), kafkasink.WithMetrics(m))
		svc.OnChangeEvent(sink.HandleChangeEvent)
		svc.OnEventTransition(func(tr simulation.EventTransition) { sink.HandleChangeEvent(tr.Event) })
		loops = append(loops, sink)
		log.InfoContext(ctx, "kafka sink enabled", "topic", kcfg.Topic, "brokers", kcfg.Brokers)
	}

	client, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	if client != nil {
		closers = append(closers, func() { _ = client.Close() })
		sink := redissink.New(redissink.NewStore(client, cfg.Redis.KeyPrefix),
			redissink.WithLogger(log),
			redissink.WithMetrics(m),
		)
		svc.OnHealthUpdate(sink.HandleHealthUpdate)
		svc.OnChangeEvent(sink.HandleChangeEvent)
		svc.OnEventTransition(func(tr simulation.EventTransition) { sink.HandleChangeEvent(tr.Event) })
		// Seed the mirror with every county so it is complete before the
		// first health change.
		for _, h := range svc.Health() {
			sink.HandleHealthUpdate(h)
		}
		loops = append(loops, sink)
		log.InfoContext(ctx, "redis sink enabled", "key_prefix", cfg.Redis.KeyPrefix)
	}

	return loops, closeAll, nil
}
