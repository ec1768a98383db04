package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Nemupy/tokumei-jinro/internal/discordbot"
	"github.com/Nemupy/tokumei-jinro/internal/env"
	"github.com/Nemupy/tokumei-jinro/internal/game"
	"github.com/Nemupy/tokumei-jinro/internal/localdb"
	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	"github.com/Nemupy/tokumei-jinro/internal/status"
	"github.com/Nemupy/tokumei-jinro/internal/types"
	"github.com/Nemupy/tokumei-jinro/internal/version"
	"github.com/Nemupy/tokumei-jinro/internal/webserver"
	"go.uber.org/zap"
)

func main() {
	logger.Init(false)
	defer logger.Sync()

	env.LoadEnv()
	if env.Value.DebugMode {
		logger.Init(true)
		logger.Info("Debug mode enabled")
	}

	logger.Info("Starting tokumei-jinro", zap.String("version", version.String()))

	if env.Value.DiscordToken == nil {
		logger.Fatal("DISCORD_TOKEN is not set")
	}
	if env.Value.GuildID == nil {
		logger.Fatal("GUILD_ID is not set")
	}

	if _, err := localdb.SetupDB(env.Value.DBPath); err != nil {
		logger.Fatal("Failed to setup database", zap.Error(err))
	}
	defer localdb.Close()

	cleanupRelayLog()

	session, err := discordbot.NewSession(*env.Value.DiscordToken)
	if err != nil {
		logger.Fatal("Failed to create discord session", zap.Error(err))
	}

	guildID := *env.Value.GuildID
	platform := discordbot.NewPlatform(session, guildID, deref(env.Value.CategoryID))

	history := game.SQLiteHistory{}
	manager := game.NewManager(platform, game.Options{
		Observer: types.ChannelID(deref(env.Value.LogChannelID)),
		RelayLog: history,
		History:  history,
	})
	if env.Value.LogChannelID == nil {
		logger.Info("LOG_CHANNEL_ID is not set, observer relay disabled")
	}

	if err := webserver.StartWebServer(webserver.Config{
		Port:                  env.Value.ServerPort,
		PublicURL:             env.Value.PublicURL,
		Sessions:              manager.Store(),
		RelayLogRetentionDays: env.Value.RelayLogRetentionDays,
	}); err != nil {
		logger.Fatal("Failed to start web server", zap.Error(err))
	}

	status.RegisterConnectionChangeCallback(func(connected bool) {
		if !connected {
			logger.Warn("Discord gateway disconnected, waiting for reconnect")
		}
	})

	bot := discordbot.New(session, platform, manager, guildID)
	if err := bot.Start(); err != nil {
		logger.Fatal("Failed to start discord bot", zap.Error(err))
	}

	logger.Info("Server started",
		zap.Int("port", env.Value.ServerPort),
		zap.String("spectator", fmt.Sprintf("%s/", env.Value.PublicURL)))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	bot.Close()
	webserver.Shutdown()

	logger.Info("Shutdown complete")
}

// cleanupRelayLog drops relay rows older than the retention window.
func cleanupRelayLog() {
	days := env.Value.RelayLogRetentionDays
	if days <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	if err := localdb.CleanupRelayMessagesBefore(cutoff); err != nil {
		logger.Warn("Failed to cleanup relay log", zap.Error(err))
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
