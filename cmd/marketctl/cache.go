package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/oriys/optionspulse/internal/bus"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Read the bus's cached latest-value and derived-analytics keys",
	}
	cmd.AddCommand(
		cacheGetCmd(),
		cacheUnderlyingCmd(),
		cacheChainCmd(),
		cachePCRCmd(),
		cacheOHLCCmd(),
		cacheIVCmd(),
	)
	return cmd
}

func cacheGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the raw value stored at a cache key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printCacheKey(args[0])
		},
	}
}

func cacheUnderlyingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "underlying <product>",
		Short: "Print the cached latest underlying price for a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printCacheKey(fmt.Sprintf("latest:underlying:%s", args[0]))
		},
	}
}

func cacheChainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chain <product> <expiry>",
		Short: "Print the cached latest enriched option chain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printCacheKey(fmt.Sprintf("latest:chain:%s:%s", args[0], args[1]))
		},
	}
}

func cachePCRCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pcr <product> <expiry>",
		Short: "Print the cached put-call ratio summary",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printCacheKey(fmt.Sprintf("latest:pcr:%s:%s", args[0], args[1]))
		},
	}
}

func cacheOHLCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ohlc <product> <window-minutes>",
		Short: "Print the cached OHLC window",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			window, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid window-minutes: %w", err)
			}
			return printCacheKey(fmt.Sprintf("ohlc:%s:%dm", args[0], window))
		},
	}
}

func cacheIVCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "iv <product>",
		Short: "Print the cached implied-volatility surface",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printCacheKey(fmt.Sprintf("iv_surface:%s", args[0]))
		},
	}
}

func printCacheKey(key string) error {
	b, cfg, err := getBus()
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.CacheOp)
	defer cancel()

	value, err := b.Get(ctx, key)
	if errors.Is(err, bus.ErrNotFound) {
		fmt.Printf("%s: (not set)\n", key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	fmt.Printf("%s: %s\n", key, value)
	return nil
}
