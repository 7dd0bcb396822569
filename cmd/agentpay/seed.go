package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentpay/agentpay/internal/agent"
	"github.com/agentpay/agentpay/internal/auth"
	"github.com/agentpay/agentpay/internal/budget"
	"github.com/agentpay/agentpay/internal/config"
	"github.com/agentpay/agentpay/internal/coord"
	"github.com/agentpay/agentpay/internal/org"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

const (
	seedAdminEmail = "admin@example.com"

	seedDailyLimitCents        = 100000
	seedPerTxLimitCents        = 50000
	seedApprovalThresholdCents = 10000
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a demo organization and agent",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	coordStore, redisClient, err := coord.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	orgStore := org.NewStore(pool)
	agentStore := agent.NewStore(pool)
	limitsStore := budget.NewLimitsStore(pool, coordStore, cfg.Budget.LimitsCacheTTL)

	// Check if seed has already run.
	if _, err := orgStore.GetByAdminEmail(ctx, seedAdminEmail); err == nil {
		slog.Info("demo data already exists, skipping seed")
		return nil
	}

	o, err := orgStore.Create(ctx, uuid.NewString(), "Demo Organization", seedAdminEmail, "")
	if err != nil {
		return fmt.Errorf("creating demo organization: %w", err)
	}
	slog.Info("created organization", "id", o.ID, "name", o.Name)

	hash, plaintext, err := auth.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("generating api key: %w", err)
	}

	ag, err := agentStore.Create(ctx, agent.CreateAgentInput{
		ID:             uuid.NewString(),
		OrganizationID: o.ID,
		Name:           "demo-agent",
		APIKeyHash:     hash,
	})
	if err != nil {
		return fmt.Errorf("creating demo agent: %w", err)
	}

	if _, err := limitsStore.Set(ctx, budget.SetLimitsInput{
		AgentID:                ag.ID,
		DailyLimitCents:        seedDailyLimitCents,
		PerTxLimitCents:        seedPerTxLimitCents,
		ApprovalThresholdCents: seedApprovalThresholdCents,
	}); err != nil {
		return fmt.Errorf("setting demo agent limits: %w", err)
	}

	slog.Info("created demo agent", "id", ag.ID, "name", ag.Name)
	fmt.Printf("\n=== Demo Data Seeded ===\n")
	fmt.Printf("Organization: %s (%s)\n", o.Name, o.ID)
	fmt.Printf("Agent:        %s (%s)\n", ag.Name, ag.ID)
	fmt.Printf("API Key:      %s\n", plaintext)
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl -X POST -H 'Authorization: Bearer %s' -H 'Content-Type: application/json' \\\n", plaintext)
	fmt.Printf("    -d '{\"amount_cents\": 2500, \"purpose\": \"api credits\", \"idempotency_key\": \"demo-1\"}' \\\n")
	fmt.Printf("    http://localhost:%d/v1/payment-request\n", cfg.Server.Port)

	return nil
}
