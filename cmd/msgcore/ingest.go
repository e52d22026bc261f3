package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/kelpline/msgcore/internal/ingest"
	"github.com/kelpline/msgcore/internal/metrics"
	"github.com/kelpline/msgcore/internal/registry"
	"github.com/kelpline/msgcore/pkg/queue"
	"github.com/kelpline/msgcore/pkg/rpc"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run the Chat Ingest RPC (C6): assigns server_id/send_time and publishes to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest()
		},
	}
}

func runIngest() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := buildLogger("ingest", cfg.Logging)
	defer log.Sync()

	producer, err := queue.NewProducer(queue.ProducerConfig{
		Brokers:      cfg.Queue.Brokers,
		Topic:        cfg.Queue.Topic,
		Acks:         cfg.Queue.ProducerAcks,
		MaxRetries:   cfg.Queue.MaxRetries,
		RetryBackoff: cfg.Queue.RetryBackoff,
	}, log)
	if err != nil {
		return fmt.Errorf("new producer: %w", err)
	}
	defer producer.Close()

	svc := ingest.New(producer, log)

	grpcServer := grpc.NewServer()
	rpc.RegisterChatServiceServer(grpcServer, svc)

	reg := metrics.New("ingest")
	rpcBind := fmt.Sprintf("%s:%d", cfg.RPC.BindHost, cfg.RPC.BindPort)
	lis, err := net.Listen("tcp", rpcBind)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	registryClient := registry.New(registryBaseURL(cfg), log)
	selfID := registry.ID("ingest", cfg.RPC.BindHost, cfg.RPC.BindPort)
	regCtx, regCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := registryClient.Register(regCtx, registry.Record{ID: selfID, Name: "ingest", Host: cfg.RPC.BindHost, Port: cfg.RPC.BindPort}); err != nil {
		log.Warn("ingest: registry registration failed", zap.Error(err))
	}
	regCancel()

	metricsSrv := serveMetrics(fmt.Sprintf(":%d", cfg.RPC.BindPort+1000), cfg.Metrics, reg, log)

	go func() {
		log.Info("ingest: rpc listening", zap.String("addr", rpcBind))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("ingest: rpc server error", zap.Error(err))
		}
	}()

	shutdownCtx := waitForShutdown(log)
	deregCtx, deregCancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = registryClient.Deregister(deregCtx, selfID)
	deregCancel()
	grpcServer.GracefulStop()
	metricsSrv.Shutdown(shutdownCtx)
	return nil
}
