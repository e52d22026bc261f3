package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kelpline/msgcore/internal/auth"
	"github.com/kelpline/msgcore/internal/frontdoor"
	"github.com/kelpline/msgcore/internal/metrics"
	"github.com/kelpline/msgcore/internal/registry"
	"github.com/kelpline/msgcore/internal/rpcpool"
)

func newFrontDoorCmd() *cobra.Command {
	var bindOverride string
	cmd := &cobra.Command{
		Use:   "frontdoor",
		Short: "Run the HTTP Front Door (C10): whitelist/auth gate in front of the RPC/HTTP backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFrontDoor(bindOverride)
		},
	}
	cmd.Flags().StringVar(&bindOverride, "bind", ":8000", "HTTP bind address")
	return cmd
}

// frontDoorRoutes is the route table of spec §4.10. It is a small, fixed
// set matching the external interface (spec §6): chat ingest speaks RPC,
// everything else the front door fronts is a plain HTTP backend.
func frontDoorRoutes() []frontdoor.Route {
	return []frontdoor.Route{
		{PathPrefix: "/api/chat", Kind: frontdoor.KindRPC, RequireAuth: true, Rewrite: "", ServiceName: "ingest"},
		{PathPrefix: "/api/friends", Kind: frontdoor.KindHTTP, RequireAuth: true, Rewrite: "", ServiceName: "friend-service"},
		{PathPrefix: "/api/groups", Kind: frontdoor.KindHTTP, RequireAuth: true, Rewrite: "", ServiceName: "group-service"},
	}
}

func runFrontDoor(bind string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := buildLogger("frontdoor", cfg.Logging)
	defer log.Sync()

	jwt := auth.NewJWTManager(cfg.Auth.JWTSecret)
	registryClient := registry.New(registryBaseURL(cfg), log)

	routes := frontDoorRoutes()
	pools := make(map[string]*rpcpool.Pool, len(routes))
	poolCancels := make([]func(), 0, len(routes))
	for _, route := range routes {
		p := rpcpool.New(registryClient, route.ServiceName, cfg.Registry.PollInterval, log)
		ctx, cancel := context.WithCancel(context.Background())
		poolCancels = append(poolCancels, cancel)
		go p.Run(ctx)
		pools[route.ServiceName] = p
	}

	whitelist := frontdoor.Whitelist{
		IPs:   map[string]struct{}{"127.0.0.1": {}},
		Paths: map[string]struct{}{"/healthz": {}},
	}
	fd := frontdoor.New(routes, whitelist, jwt, pools, log)

	reg := metrics.New("frontdoor")
	httpSrv := &http.Server{Addr: bind, Handler: fd.Router()}
	metricsSrv := serveMetrics(fmt.Sprintf(":%d", cfg.RPC.BindPort+2000), cfg.Metrics, reg, log)

	go func() {
		log.Info("frontdoor: listening", zap.String("addr", bind))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("frontdoor: http server error", zap.Error(err))
		}
	}()

	shutdownCtx := waitForShutdown(log)
	for _, cancel := range poolCancels {
		cancel()
	}
	httpSrv.Shutdown(shutdownCtx)
	metricsSrv.Shutdown(shutdownCtx)
	return nil
}
