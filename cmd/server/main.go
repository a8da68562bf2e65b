package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"custodywatch/internal/app"
	"custodywatch/internal/platform/config"
	"custodywatch/internal/platform/httpserver"
	"custodywatch/internal/platform/logger"
	"custodywatch/internal/platform/metrics"
	"custodywatch/internal/platform/middleware"
	"custodywatch/internal/simulation/sinks"
	httptransport "custodywatch/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies and owns the process lifecycle. The
// simulation, the HTTP API, the audit writer and the sinks run in one
// errgroup; a signal or the first failure stops them all.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "custodywatch: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CUSTODYWATCH_CONFIG"))
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()

	store, closeStore, err := app.OpenStore(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer closeStore()

	core, err := app.Build(ctx, cfg, app.Deps{
		Store:     store,
		Logger:    log,
		Registry:  reg,
		Serialize: true,
	})
	if err != nil {
		return err
	}

	loops, closeSinks, err := attachSinks(ctx, cfg, core.Service, sinks.NewMetrics(reg), log)
	if err != nil {
		return err
	}
	defer closeSinks()

	srv := httpserver.New(cfg.Server.Addr, newRouter(core, log, reg))

	// The audit writer and the sinks outlive the signal: the simulation has
	// to stop, and record that it stopped, before they are cancelled.
	writerCtx, cancelWriter := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWriter()
	sinkCtx, cancelSinks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelSinks()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := core.Writer.Run(writerCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	for _, l := range loops {
		g.Go(func() error {
			return l.Run(sinkCtx)
		})
	}

	g.Go(func() error {
		log.InfoContext(ctx, "starting custodywatch", "addr", cfg.Server.Addr, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		defer func() {
			cancelSinks()
			cancelWriter()
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("graceful shutdown failed", "error", err)
			}
		}()

		if err := core.Service.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return core.Service.Stop(stopCtx)
	})

	err = g.Wait()
	if report := core.Service.VerifyChain(); !report.Intact {
		log.Error("audit chain broken at shutdown", "sequence", report.BrokenSequence, "reason", report.Reason)
	}
	log.Info("custodywatch stopped", "entries", core.Ledger.Len(), "error", err)
	return err
}

func newRouter(core *app.Core, log *slog.Logger, reg *metrics.Registry) http.Handler {
	return httptransport.NewRouter(
		httptransport.NewHandler(core.Service, core.Directory, log),
		httptransport.WithLogger(log),
		httptransport.WithRequestMetrics(middleware.NewMetrics(reg)),
		httptransport.WithMetricsHandler(reg.Handler()),
	)
}
