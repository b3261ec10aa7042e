// promobot - loyalty account provisioning bot
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"promobot/internal/bot"
	"promobot/internal/config"
	"promobot/internal/loyalty"
	"promobot/internal/offers"
	"promobot/internal/onboarding"
	"promobot/internal/store"
	"promobot/internal/telegram"
)

// syncInterval is how often the background worker wakes up; the cache itself
// skips refreshes until the UTC day rolls over.
const syncInterval = time.Hour

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting bot", "brand", cfg.API.BrandName, "mode", cfg.Telegram.Mode)

	accounts, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := accounts.Close(); closeErr != nil {
			slog.Error("Failed to close account store", "error", closeErr)
		}
	}()
	slog.Info("Database connected", "path", cfg.DBPath)

	client := loyalty.NewClient(loyalty.Config{
		APIRoot:                 cfg.API.Root,
		BrandName:               cfg.API.BrandName,
		AnonymousCSRF:           cfg.API.AnonymousCSRF,
		ModuleVersion:           cfg.API.ModuleVersion,
		SMSAPIVersion:           cfg.API.SMSAPIVersion,
		NextStepAPIVersion:      cfg.API.NextStepAPIVersion,
		LoginAPIVersion:         cfg.API.LoginAPIVersion,
		CreateAccountAPIVersion: cfg.API.CreateAccountAPIVersion,
		OfferSyncAPIVersion:     cfg.API.OfferSyncAPIVersion,
		LegalDocumentIDs:        cfg.API.LegalDocumentIDs,
		RegisterLocale:          cfg.API.RegisterLocale,
		RegisterStoreID:         cfg.API.RegisterStoreID,
		Timeout:                 cfg.HTTPTimeout,
	})

	cache := offers.NewCache(client)
	flow := onboarding.New(client, accounts)
	tg := telegram.NewClient(cfg.Telegram.BotToken)

	dispatcher := bot.New(bot.Config{
		Sender:         tg,
		Store:          accounts,
		Cache:          cache,
		Flow:           flow,
		AdminIDs:       cfg.Telegram.AdminIDs,
		CDNRoot:        cfg.CDNRoot,
		EANFrontendURL: cfg.EANFrontendURL,
		HTTPTimeout:    cfg.HTTPTimeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	switch cfg.Telegram.Mode {
	case config.ModeWebhook:
		wh := telegram.NewWebhook(cfg.Telegram.WebhookListenAddr, cfg.Telegram.WebhookSecret, dispatcher)
		if err := tg.SetWebhook(ctx, cfg.Telegram.WebhookPublicURL, cfg.Telegram.WebhookSecret); err != nil {
			slog.Error("Failed to register webhook", "error", err)
			os.Exit(1)
		}
		slog.Info("Webhook registered", "url", cfg.Telegram.WebhookPublicURL, "addr", cfg.Telegram.WebhookListenAddr)
		g.Go(func() error {
			return wh.Serve(ctx)
		})
	default:
		if err := tg.DeleteWebhook(ctx); err != nil {
			slog.Warn("Failed to delete stale webhook", "error", err)
		}
		poller := telegram.NewPoller(tg, dispatcher)
		slog.Info("Long polling started")
		g.Go(func() error {
			return poller.Run(ctx)
		})
	}

	// Daily offer refresh.
	g.Go(func() error {
		ticker := time.NewTicker(syncInterval)
		defer ticker.Stop()

		if err := cache.Sync(ctx, accounts, false); err != nil {
			slog.Warn("Initial offer sync failed", "error", err)
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := cache.Sync(ctx, accounts, false); err != nil {
					slog.Warn("Offer sync failed", "error", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Bot stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Bot stopped successfully")
}
