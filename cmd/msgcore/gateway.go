package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/kelpline/msgcore/internal/auth"
	"github.com/kelpline/msgcore/internal/errs"
	"github.com/kelpline/msgcore/internal/gateway"
	"github.com/kelpline/msgcore/internal/metrics"
	"github.com/kelpline/msgcore/internal/registry"
	"github.com/kelpline/msgcore/internal/types"
	"github.com/kelpline/msgcore/pkg/rpc"
)

func newGatewayCmd() *cobra.Command {
	var bindOverride string
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the WebSocket gateway (C9): accepts client connections and answers pushes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(bindOverride)
		},
	}
	cmd.Flags().StringVar(&bindOverride, "bind", "", "override gateway.bind_host:bind_port")
	return cmd
}

func runGateway(bindOverride string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := buildLogger("gateway", cfg.Logging)
	defer log.Sync()

	jwt := auth.NewJWTManager(cfg.Auth.JWTSecret)

	reg := metrics.New("gateway")
	ingestConn, err := grpc.NewClient(ingestAddr(cfg), grpcInsecureOpts()...)
	if err != nil {
		return fmt.Errorf("dial ingest: %w", err)
	}
	defer ingestConn.Close()
	chatClient := rpc.NewChatServiceClient(ingestConn)

	forward := func(ctx context.Context, msg *types.Msg) error {
		resp, err := chatClient.SendMsg(ctx, &rpc.SendMsgRequest{Msg: *msg})
		if err != nil {
			return errs.Wrap(err, errs.KindTransient, "gateway: forward to ingest")
		}
		if resp.Err != "" {
			return errs.New(errs.KindTransient, resp.Err)
		}
		return nil
	}

	gw := gateway.New(cfg.Gateway.Name, jwt, cfg.Gateway.HeartbeatInterval, forward, log)

	grpcServer := grpc.NewServer()
	rpc.RegisterMsgGatewayServiceServer(grpcServer, gw)

	bind := bindOverride
	if bind == "" {
		bind = fmt.Sprintf("%s:%d", cfg.Gateway.BindHost, cfg.Gateway.BindPort)
	}
	rpcBind := fmt.Sprintf("%s:%d", cfg.RPC.BindHost, cfg.RPC.BindPort)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", gw.ServeWS)
	httpSrv := &http.Server{Addr: bind, Handler: mux, WriteTimeout: cfg.Gateway.WriteTimeout}

	registryClient := registry.New(registryBaseURL(cfg), log)
	selfID := registry.ID(cfg.Gateway.Name, cfg.Gateway.BindHost, cfg.Gateway.BindPort)
	regCtx, regCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := registryClient.Register(regCtx, registry.Record{
		ID: selfID, Name: cfg.Gateway.Name, Host: cfg.Gateway.BindHost, Port: cfg.Gateway.BindPort,
		Tags: cfg.Gateway.Tags,
	}); err != nil {
		log.Warn("gateway: registry registration failed", zap.Error(err))
	}
	regCancel()

	metricsSrv := serveMetrics(fmt.Sprintf(":%d", cfg.RPC.BindPort+1000), cfg.Metrics, reg, log)

	go func() {
		log.Info("gateway: ws listening", zap.String("addr", bind))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("gateway: http server error", zap.Error(err))
		}
	}()
	go func() {
		lis, err := net.Listen("tcp", rpcBind)
		if err != nil {
			log.Error("gateway: rpc listen failed", zap.Error(err))
			return
		}
		log.Info("gateway: rpc listening", zap.String("addr", rpcBind))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gateway: rpc server error", zap.Error(err))
		}
	}()

	shutdownCtx := waitForShutdown(log)
	deregCtx, deregCancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = registryClient.Deregister(deregCtx, selfID)
	deregCancel()
	grpcServer.GracefulStop()
	httpSrv.Shutdown(shutdownCtx)
	metricsSrv.Shutdown(shutdownCtx)
	return nil
}
