package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kelpline/msgcore/internal/dispatcher"
	"github.com/kelpline/msgcore/internal/groupcache"
	"github.com/kelpline/msgcore/internal/history"
	"github.com/kelpline/msgcore/internal/metrics"
	"github.com/kelpline/msgcore/internal/pusher"
	"github.com/kelpline/msgcore/internal/registry"
	"github.com/kelpline/msgcore/internal/rpcpool"
	"github.com/kelpline/msgcore/internal/seq"
	"github.com/kelpline/msgcore/internal/types"
	"github.com/kelpline/msgcore/pkg/queue"
)

func newDispatcherCmd() *cobra.Command {
	var groupServiceURL string
	cmd := &cobra.Command{
		Use:   "dispatcher",
		Short: "Run the Queue Consumer / Dispatcher (C7): the message plane's hardest subsystem",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatcher(groupServiceURL)
		},
	}
	cmd.Flags().StringVar(&groupServiceURL, "group-service-url", "http://localhost:8600", "base URL of the external group repository")
	return cmd
}

func runDispatcher(groupServiceURL string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := buildLogger("dispatcher", cfg.Logging)
	defer log.Sync()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.History.DSN)
	if err != nil {
		return fmt.Errorf("pgxpool: %w", err)
	}
	defer pool.Close()

	if err := history.Migrate(cfg.History.DSN); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	hist := history.New(pool, log)

	sendSeq := seq.NewStore(seq.Send, cfg.Cache.SeqStep, hist, log)
	recvSeq := seq.NewStore(seq.Recv, cfg.Cache.SeqStep, hist, log)
	if err := recoverSeqSnapshots(ctx, hist, sendSeq, recvSeq); err != nil {
		log.Warn("dispatcher: seq snapshot recovery failed", zap.Error(err))
	}

	groupRepo := groupcache.NewHTTPRepository(groupServiceURL, log)
	groups := groupcache.New(groupRepo)

	registryClient := registry.New(registryBaseURL(cfg), log)
	pool5 := rpcpool.New(registryClient, cfg.Gateway.Name, cfg.Registry.PollInterval, log)
	poolCtx, poolCancel := context.WithCancel(context.Background())
	go pool5.Run(poolCtx)

	push := pusher.New(pool5, cfg.RPC.RequestTimeout, log)

	disp := dispatcher.New(sendSeq, recvSeq, groups, hist, push, log)

	consumer, err := queue.NewConsumer(cfg.Queue.Brokers, cfg.Queue.Group, cfg.Queue.Topic, disp.HandleRecord, log)
	if err != nil {
		poolCancel()
		return fmt.Errorf("new consumer: %w", err)
	}

	cleanerCtx, cleanerCancel := context.WithCancel(context.Background())
	go hist.RunCleaner(cleanerCtx, history.CleanerConfig{
		Interval: cfg.History.CleanerInterval,
		MaxAge:   24 * time.Hour,
		Except:   parseMsgTypeNames(cfg.History.CleanerExcept, log),
	})

	reg := metrics.New("dispatcher")
	metricsSrv := serveMetrics(fmt.Sprintf(":%d", cfg.RPC.BindPort+1000), cfg.Metrics, reg, log)

	consumeCtx, consumeCancel := context.WithCancel(context.Background())
	go func() {
		if err := consumer.Run(consumeCtx); err != nil {
			log.Error("dispatcher: consumer stopped", zap.Error(err))
		}
	}()

	shutdownCtx := waitForShutdown(log)
	consumeCancel()
	cleanerCancel()
	poolCancel()
	consumer.Close()
	metricsSrv.Shutdown(shutdownCtx)
	return nil
}

func recoverSeqSnapshots(ctx context.Context, hist *history.Store, sendSeq, recvSeq *seq.Store) error {
	sendSnaps, recvSnaps, err := hist.LoadSnapshots(ctx)
	if err != nil {
		return err
	}
	sendSeq.SetBulk(sendSnaps)
	recvSeq.SetBulk(recvSnaps)
	return nil
}

func parseMsgTypeNames(names []string, log *zap.Logger) []types.MsgType {
	out := make([]types.MsgType, 0, len(names))
	for _, name := range names {
		t, ok := types.ParseMsgType(name)
		if !ok {
			log.Warn("dispatcher: unknown msg type name in cleaner_except", zap.String("name", name))
			continue
		}
		out = append(out, t)
	}
	return out
}
