package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kelpline/msgcore/internal/config"
	"github.com/kelpline/msgcore/internal/logging"
	"github.com/kelpline/msgcore/internal/metrics"
)

// loadConfig reads the persistent flags every subcommand shares.
func loadConfig() (*config.Config, error) {
	return config.Load(globalConfigPath, serviceConfigPath)
}

func buildLogger(service string, cfg config.Logging) *zap.Logger {
	return logging.New(logging.Options{Level: cfg.Level, Pretty: cfg.Pretty, Service: service})
}

// serveMetrics starts the shared /healthz and (if enabled) /metrics HTTP
// endpoint carried by every long-running binary (SPEC_FULL §3), and runs reg's
// Sampler in the background. It returns the *http.Server so callers can fold
// it into their own shutdown sequence.
func serveMetrics(addr string, cfg config.Metrics, reg *metrics.Registry, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if cfg.Enabled {
		mux.Handle(cfg.Path, promhttp.Handler())
	}

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	sampler := metrics.NewSampler(reg, 15*time.Second)
	go sampler.Run(make(chan struct{}))

	return srv
}

// grpcInsecureOpts is the dial option set every internal gRPC client uses;
// the service mesh terminates TLS at the edge, not between core components.
func grpcInsecureOpts() []grpc.DialOption {
	return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
}

// ingestAddr is the static address of the chat ingest RPC service. A gateway
// dials it directly rather than through a C5 pool because a gateway only
// ever needs one ingest endpoint at a time and the ingest side is typically
// fronted by its own load balancer; this mirrors the teacher's direct-dial
// pattern for its single upstream NATS connection.
func ingestAddr(cfg *config.Config) string {
	return fmt.Sprintf("%s:%d", cfg.RPC.BindHost, cfg.RPC.BindPort)
}

// registryBaseURL builds the C4 registry client's base URL from config.
func registryBaseURL(cfg *config.Config) string {
	return fmt.Sprintf("%s://%s:%d", cfg.Registry.Protocol, cfg.Registry.Host, cfg.Registry.Port)
}

// waitForShutdown blocks until SIGINT/SIGTERM, then returns a context
// carrying a 30s grace period for the caller's own shutdown sequence,
// mirroring the teacher's waitForShutdown/Shutdown split.
func waitForShutdown(log *zap.Logger) context.Context {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	ctx, _ := context.WithTimeout(context.Background(), 30*time.Second)
	return ctx
}
