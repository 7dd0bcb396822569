package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/agentpay/agentpay/internal/approval"
	"github.com/agentpay/agentpay/internal/audit"
	"github.com/agentpay/agentpay/internal/config"
	"github.com/agentpay/agentpay/internal/coord"
	"github.com/agentpay/agentpay/internal/gateway"
	"github.com/agentpay/agentpay/internal/notify"
	"github.com/agentpay/agentpay/internal/org"
	"github.com/agentpay/agentpay/internal/queue"
	"github.com/agentpay/agentpay/internal/txn"
	"github.com/agentpay/agentpay/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the charge and approval-email workers",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	coordStore, redisClient, err := coord.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	slog.Info("connected to redis")

	txnStore := txn.NewStore(pool)
	orgStore := org.NewStore(pool)
	auditStore := audit.NewStore(pool)
	issuer := approval.NewIssuer(cfg.Auth.JWTSecret, coordStore, cfg.Budget.ApprovalTokenTTL)
	broker := queue.NewRedisBroker(redisClient)

	stripeGateway := gateway.NewStripeGateway(cfg.Stripe.SecretKey)
	mailer := notify.NewSMTPMailer(cfg.Email.SMTPAddr, cfg.Email.From)

	chargeProcessor := worker.NewChargeProcessor(txnStore, orgStore, stripeGateway, auditStore)
	emailProcessor := worker.NewEmailProcessor(txnStore, orgStore, issuer, mailer, cfg.App.BaseURL)

	chargeWorker := queue.NewWorker(broker, queue.ChargeQueue, chargeProcessor.Process, cfg.Queue.MaxAttempts, cfg.Queue.PopTimeout)
	emailWorker := queue.NewWorker(broker, queue.ApprovalEmailQueue, emailProcessor.Process, cfg.Queue.MaxAttempts, cfg.Queue.PopTimeout)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		slog.Info("worker starting", "queue", queue.ChargeQueue)
		chargeWorker.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		slog.Info("worker starting", "queue", queue.ApprovalEmailQueue)
		emailWorker.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")

	cancel()
	chargeWorker.Stop()
	emailWorker.Stop()
	wg.Wait()

	return nil
}
