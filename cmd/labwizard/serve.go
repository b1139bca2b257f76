package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/snspd-lab/labwizard/internal/instruments"
	"github.com/snspd-lab/labwizard/internal/web"
	"github.com/snspd-lab/labwizard/internal/web/stream"
	"github.com/snspd-lab/labwizard/internal/web/wizardsession"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the measurement-wizard HTTP API",
	Long: `Serve the wizard API: measurement catalog, instrument registry, topology
validation, capability resolution, and simulated runs with live progress over
WebSocket. Wizard sessions live in memory unless server.redis_addr is
configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := mustConfig()
		if err != nil {
			return err
		}
		defer log.Sync()

		var sessions wizardsession.Store
		if cfg.Server.RedisAddr != "" {
			store := wizardsession.NewRedisStore(cfg.Server.RedisAddr, "", 0)
			if err := store.Ping(cmd.Context()); err != nil {
				return err
			}
			sessions = store
		} else {
			sessions = wizardsession.NewMemoryStore()
		}
		defer sessions.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		hub := stream.NewHub(log)
		go hub.Run(ctx)

		reg := instruments.BuildRegistry(log)
		api := web.NewAPI(reg, hub, sessions, log)
		srv := web.NewServer(cfg.Server.Addr(), api.Routes(), log)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
