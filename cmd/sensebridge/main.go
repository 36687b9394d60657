// Command sensebridge is an MCP server exposing a remote analytics
// platform's visualization data through four discoverable tools, speaking
// the protocol over stdio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/sensebridge/sensebridge/internal/config"
	"github.com/sensebridge/sensebridge/internal/observe"
	"github.com/sensebridge/sensebridge/internal/qix"
	"github.com/sensebridge/sensebridge/internal/retry"
	"github.com/sensebridge/sensebridge/internal/server"
	"github.com/sensebridge/sensebridge/internal/session"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sensebridge: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sensebridge: %v\n", err)
		}
		return 1
	}

	// The MCP transport owns stdout, so logs go to stderr.
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: server.Version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	retryPolicy := retry.Policy{
		MaxRetries: cfg.Retrieval.MaxRetries,
		Delay:      cfg.Retrieval.RetryDelay.Std(),
	}
	sessions := session.NewManager(session.ManagerConfig{
		Dial: func(ctx context.Context) (qix.Session, error) {
			return qix.Dial(ctx, cfg.Engine.URL, qix.DialOptions{APIKey: cfg.Engine.APIKey})
		},
		DefaultAppID: cfg.Engine.AppID,
		Retry:        retryPolicy,
		Metrics:      metrics,
	})
	catalog := qix.NewRESTCatalog(cfg.Engine.RESTURL, cfg.Engine.APIKey, nil)

	srv := server.New(server.Config{
		Sessions:  sessions,
		Catalog:   catalog,
		Retrieval: cfg.Retrieval,
		Metrics:   metrics,
	})

	slog.Info("sensebridge starting",
		"config", *configPath,
		"engine_url", cfg.Engine.URL,
		"default_app", cfg.Engine.AppID,
		"page_size", cfg.Retrieval.PageSize,
		"max_rows", cfg.Retrieval.MaxRows,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.RunStdio(gctx)
	})

	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		httpSrv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}

		g.Go(func() error {
			slog.Info("metrics endpoint listening", "addr", cfg.Server.MetricsAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(sctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}

	slog.Info("sensebridge stopped")
	return 0
}

// newLogger builds the process logger writing to stderr at the configured
// level.
func newLogger(level config.LogLevel) *slog.Logger {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
