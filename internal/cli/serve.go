package cli

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nadzzz/voiceloop/internal/app"
	"github.com/nadzzz/voiceloop/internal/health"
	"github.com/nadzzz/voiceloop/internal/transport"
	grpctransport "github.com/nadzzz/voiceloop/internal/transport/grpc"
	httptransport "github.com/nadzzz/voiceloop/internal/transport/http"
	"github.com/nadzzz/voiceloop/internal/version"
)

func NewServeCmd(deps *Dependencies, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon with the HTTP/WebSocket and gRPC surfaces",
		Long:  "Run voiceloop as a daemon. Intents arrive over HTTP, state is pushed over WebSocket, and health checks and metrics are served on the health port.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(deps, opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app.App) error {
	cfg := a.Config
	slog.Info("voiceloop starting", "version", version.Version)

	var transports []transport.Transport
	if cfg.Transports.GRPC.Enabled {
		transports = append(transports, grpctransport.New(cfg.Transports.GRPC.Port))
	}
	if cfg.Transports.HTTP.Enabled {
		transports = append(transports, httptransport.New(cfg.Transports.HTTP.Port))
	}
	if len(transports) == 0 {
		return errors.New("no transports enabled, enable at least one in config")
	}

	healthServer := health.New(cfg.Server.HealthPort, a.Metrics.Handler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return healthServer.ListenAndServe(gctx) })
	for _, t := range transports {
		g.Go(func() error {
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(gctx, a.Pipeline); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
				return err
			}
			return nil
		})
	}

	healthServer.SetReady(true)
	slog.Info("voiceloop ready",
		"transports", len(transports),
		"health_port", cfg.Server.HealthPort)

	<-gctx.Done()
	slog.Info("shutdown signal received, draining...")
	healthServer.SetReady(false)

	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	err := g.Wait()
	slog.Info("voiceloop stopped")
	return err
}
