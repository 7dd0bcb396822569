package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentpay/agentpay/internal/agent"
	"github.com/agentpay/agentpay/internal/api"
	"github.com/agentpay/agentpay/internal/approval"
	"github.com/agentpay/agentpay/internal/audit"
	"github.com/agentpay/agentpay/internal/auth"
	"github.com/agentpay/agentpay/internal/budget"
	"github.com/agentpay/agentpay/internal/config"
	"github.com/agentpay/agentpay/internal/coord"
	"github.com/agentpay/agentpay/internal/metrics"
	"github.com/agentpay/agentpay/internal/notify"
	"github.com/agentpay/agentpay/internal/org"
	"github.com/agentpay/agentpay/internal/queue"
	"github.com/agentpay/agentpay/internal/ratelimit"
	"github.com/agentpay/agentpay/internal/txn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

const sessionTTL = 24 * time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the AgentPay API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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
	agentStore := agent.NewStore(pool)
	auditStore := audit.NewStore(pool)
	limitsStore := budget.NewLimitsStore(pool, coordStore, cfg.Budget.LimitsCacheTTL)
	ledger := budget.NewLedger(coordStore)
	issuer := approval.NewIssuer(cfg.Auth.JWTSecret, coordStore, cfg.Budget.ApprovalTokenTTL)

	authService := auth.NewService(agent.NewAuthAdapter(agentStore))
	sessions := auth.NewSessionManager(cfg.Auth.JWTSecret, sessionTTL)
	limiter := ratelimit.New(coordStore, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	jobs := queue.NewClient(queue.NewRedisBroker(redisClient))
	mailer := notify.NewSMTPMailer(cfg.Email.SMTPAddr, cfg.Email.From)

	m := metrics.New()
	m.RegisterDBPoolCollector(func() (total, idle, acquired int32) {
		stat := pool.Stat()
		return stat.TotalConns(), stat.IdleConns(), stat.AcquiredConns()
	})

	router := api.NewRouter(api.RouterDeps{
		Txns:    txnStore,
		Limits:  limitsStore,
		Ledger:  ledger,
		Auditor: auditStore,
		Jobs:    jobs,
		Tokens:  issuer,
		Orgs:    orgStore,
		Agents:  agentStore,
		Audits:  auditStore,

		Auth:     authService,
		Sessions: sessions,
		Limiter:  limiter,
		Coord:    coordStore,
		Mailer:   mailer,
		Metrics:  m,

		WebhookSecret:   cfg.Stripe.WebhookSecret,
		BaseURL:         cfg.App.BaseURL,
		DashboardOrigin: cfg.App.DashboardOrigin,
		AllowedOrigins:  cfg.CORS.AllowedOrigins,

		DBPing:    pool.Ping,
		RedisPing: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return srv.Shutdown(shutdownCtx)
}
