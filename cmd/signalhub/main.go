package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/user/signalhub/internal/api"
	"github.com/user/signalhub/internal/collector"
	"github.com/user/signalhub/internal/config"
	"github.com/user/signalhub/internal/discord"
	"github.com/user/signalhub/internal/jsonfeed"
	"github.com/user/signalhub/internal/peer"
	"github.com/user/signalhub/internal/storage"
	"github.com/user/signalhub/internal/twitch"
	"github.com/user/signalhub/pkg/logger"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Try to initialize basic logger for error output
		logger.Init("info", "")
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	if err := logger.Init(cfg.Log.Level, cfg.Log.File); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	logger.Info().Msg("Starting signal hub")

	// Initialize database
	db, err := storage.NewDatabase(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()
	logger.Info().Str("path", cfg.Database.Path).Msg("Database initialized")

	ctx := context.Background()

	// Apply operator-owned community configuration
	if err := applyCommunityConfig(ctx, db, cfg.Communities); err != nil {
		logger.Fatal().Err(err).Msg("Failed to apply community configuration")
	}
	logger.Info().Int("communities", len(cfg.Communities)).Msg("Community configuration applied")

	engine := collector.NewEngine()
	scheduler := collector.NewScheduler(db)

	// A collector with invalid configuration is disabled; the others still run.
	if err := cfg.Discord.Validate(); err == nil {
		discordAdapter, err := discord.New(cfg.Discord.Token, engine)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create Discord collector")
		}
		discordAdapter.OnPush(func() {
			scheduler.Kick(discord.AdapterName)
		})
		if err := discordAdapter.Open(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Discord")
		}
		defer discordAdapter.Close()
		scheduler.Register(discordAdapter, time.Duration(cfg.Discord.RefreshInterval)*time.Second)
	} else {
		logger.Warn().Err(err).Msg("Discord collector disabled")
	}

	if err := cfg.Twitch.Validate(); err == nil {
		twitchAdapter := twitch.New(ctx, cfg.Twitch.ClientID, cfg.Twitch.ClientSecret, engine)
		scheduler.Register(twitchAdapter, time.Duration(cfg.Twitch.RefreshInterval)*time.Second)
	} else {
		logger.Warn().Err(err).Msg("Twitch collector disabled")
	}

	scheduler.Register(
		jsonfeed.New(engine, time.Duration(cfg.JSONFeed.RequestTimeout)*time.Second),
		time.Duration(cfg.JSONFeed.RefreshInterval)*time.Second)
	scheduler.Register(
		peer.New(engine, time.Duration(cfg.Peer.RequestTimeout)*time.Second),
		time.Duration(cfg.Peer.RefreshInterval)*time.Second)

	scheduler.Start()

	// Setup HTTP server
	handler := api.NewHandler(db)
	server := &http.Server{
		Addr:    cfg.ServerAddress(),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info().Str("address", cfg.ServerAddress()).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down...")

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("Shutdown complete")
}

// applyCommunityConfig upserts the operator-onboarded communities. These
// fields are operator-owned; collectors refresh display fields later but
// never touch tags, channel configuration or the configured flag.
func applyCommunityConfig(ctx context.Context, db *storage.Database, communities []config.CommunityConfig) error {
	return db.WithTx(ctx, func(st *storage.Store) error {
		for _, c := range communities {
			_, err := st.Communities().Upsert(ctx, storage.Fields{
				"external_id":        c.ExternalID,
				"platform":           storage.Platform(c.Platform),
				"name":               c.Name,
				"tags":               c.Tags,
				"custom_description": c.CustomDescription,
				"url":                c.URL,
				"private_channel_id": c.PrivateChannelID,
				"public_channel_id":  c.PublicChannelID,
				"events_url":         c.EventsURL,
				"configured":         true,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
