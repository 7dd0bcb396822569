package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "agentpay",
	Short: "AgentPay payment authorization control plane",
	Long:  "AgentPay sits between autonomous agents and a payment gateway, enforcing per-agent budgets, routing above-threshold payments through human approval, and settling charges asynchronously.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/agentpay.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
