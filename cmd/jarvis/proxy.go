package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nadzzz/jarvis/internal/config"
	"github.com/nadzzz/jarvis/internal/health"
	"github.com/nadzzz/jarvis/internal/proxy"
)

func newProxyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proxy",
		Short: "Run the answer proxy in front of the language model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runProxy(ctx, cfg)
		},
	}
}

func runProxy(parent context.Context, cfg *config.Config) error {
	slog.Info("jarvis proxy starting", "version", version, "backend", cfg.Proxy.Backend)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	up, err := newUpstream(ctx, cfg.Proxy)
	if err != nil {
		return err
	}

	srv := proxy.New(cfg.Proxy, up)
	healthServer := health.New(cfg.Server.HealthPort, cfg.Server.GRPCHealthPort, "jarvis.proxy")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	g.Go(func() error { return healthServer.ListenAndServe(gctx) })
	g.Go(func() error { return healthServer.ServeGRPC(gctx) })

	healthServer.SetReady(true)
	slog.Info("jarvis proxy ready", "port", cfg.Proxy.Port, "health_port", cfg.Server.HealthPort)

	err = g.Wait()
	slog.Info("jarvis proxy stopped")
	return err
}

func newUpstream(ctx context.Context, cfg config.ProxyConfig) (proxy.Upstream, error) {
	switch cfg.Backend {
	case "gemini":
		g, err := proxy.NewGemini(ctx, cfg.Gemini, "")
		if err != nil {
			return nil, err
		}
		slog.Info("using gemini upstream", "model", cfg.Gemini.Model)
		return g, nil
	case "local":
		slog.Info("using local upstream", "endpoint", cfg.Local.Endpoint, "model", cfg.Local.Model)
		return proxy.NewLocal(cfg.Local), nil
	default:
		return nil, fmt.Errorf("unknown proxy backend %q", cfg.Backend)
	}
}
