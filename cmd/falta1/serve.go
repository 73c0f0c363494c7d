package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/logger"
	"github.com/spf13/cobra"
	"github.com/susu3304/falta1/internal/api"
	"github.com/susu3304/falta1/internal/auth"
	"github.com/susu3304/falta1/internal/bot"
	"github.com/susu3304/falta1/internal/config"
	"github.com/susu3304/falta1/internal/db"
	"github.com/susu3304/falta1/internal/notify"
	"github.com/susu3304/falta1/internal/pix"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, PIX webhook and push channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer initLogger(true).Close()
			return runServe()
		},
	}
}

func runServe() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	// Run migrations
	if err := database.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	provider, err := pix.NewProvider(cfg)
	if err != nil {
		return err
	}

	hub := notify.NewHub()
	var broker notify.Broker = notify.NewMemoryBroker(hub)
	if cfg.RedisURL != "" {
		rb, err := notify.NewRedisBroker(cfg.RedisURL, hub)
		if err != nil {
			return err
		}
		defer rb.Close()
		if err := rb.Ping(ctx); err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}
		broker = rb
		logger.Info("serve: relaying settlements through redis")
	}

	// Optional Discord announcer
	var announcer api.Announcer
	if cfg.DiscordToken != "" {
		discordBot, err := bot.New(cfg.DiscordToken, cfg.DiscordChannelID, database)
		if err != nil {
			return err
		}
		if err := discordBot.Start(); err != nil {
			return err
		}
		defer discordBot.Stop()
		announcer = discordBot
	}

	apiServer := api.New(cfg, api.Deps{
		Store:     database,
		Provider:  provider,
		Hub:       hub,
		Broker:    broker,
		Auth:      auth.NewChecker(cfg.DeleteRatePerMinute),
		Announcer: announcer,
	})
	expiry := pix.NewExpiryWorker(database, broker)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(apiServer.Start)
	g.Go(func() error { return expiry.Run(gctx) })
	g.Go(func() error { return broker.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("serve: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return apiServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
