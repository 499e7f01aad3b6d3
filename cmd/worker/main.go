package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"unimarket-backend/internal/config"
	"unimarket-backend/internal/infrastructure/events"
	"unimarket-backend/internal/interfaces/router"
	"unimarket-backend/internal/pkg/logger"

	"github.com/rs/zerolog/log"
)

// The worker releases escrow for paid orders whose auto-release time has passed.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	logger.Setup(cfg.Env, cfg.LogLevel)

	db, err := router.OpenDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database open")
	}
	pub := router.NewPublisher(cfg)
	if k, ok := pub.(*events.KafkaPublisher); ok {
		defer k.Close()
	}
	orders := router.NewOrders(cfg, db, pub)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval := cfg.AutoReleaseInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("auto-release worker started")
	for {
		n, err := orders.ReleaseDue(ctx, time.Now())
		if err != nil {
			log.Error().Err(err).Msg("auto-release sweep failed")
		} else if n > 0 {
			log.Info().Int("released", n).Msg("auto-release sweep")
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("auto-release worker stopping")
			return
		case <-ticker.C:
		}
	}
}
