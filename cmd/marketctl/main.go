package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	redisAddr  string
	redisPass  string
	redisDB    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "marketctl",
		Short: "Operator CLI for the options market-data pipeline",
		Long:  "Inspect queue depth, tail and requeue the dead-letter queue, and read cache keys",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Redis address (overrides config)")
	rootCmd.PersistentFlags().StringVar(&redisPass, "redis-pass", "", "Redis password (overrides config)")
	rootCmd.PersistentFlags().IntVar(&redisDB, "redis-db", -1, "Redis database (overrides config)")

	rootCmd.AddCommand(
		queueCmd(),
		dlqCmd(),
		cacheCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
