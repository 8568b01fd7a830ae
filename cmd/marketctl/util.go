package main

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/optionspulse/internal/bus"
	"github.com/oriys/optionspulse/internal/config"
)

func getBus() (*bus.Bus, *config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
	}
	config.LoadFromEnv(cfg)

	if redisAddr != "" {
		cfg.Bus.Addr = redisAddr
	}
	if redisPass != "" {
		cfg.Bus.Password = redisPass
	}
	if redisDB >= 0 {
		cfg.Bus.DB = redisDB
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.BusRead)
	defer cancel()

	b, err := bus.Dial(ctx, bus.Config{Addr: cfg.Bus.Addr, Password: cfg.Bus.Password, DB: cfg.Bus.DB}, cfg.Timeouts.BusRead)
	if err != nil {
		return nil, nil, fmt.Errorf("dial bus: %w", err)
	}
	return b, cfg, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
