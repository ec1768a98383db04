package env

import (
	"os"
	"strconv"
	"strings"

	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type EnvValue struct {
	DiscordToken *string
	GuildID      *string
	CategoryID   *string
	LogChannelID *string

	ServerPort int
	PublicURL  string
	DBPath     string
	DebugMode  bool

	// 0 disables relay log cleanup.
	RelayLogRetentionDays int
}

var Value EnvValue

// LoadEnv reads .env (if present) and then the process environment into Value.
func LoadEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to load .env file", zap.Error(err))
	}

	Value = EnvValue{
		DiscordToken:          optional("DISCORD_TOKEN", "TOKEN"),
		GuildID:               optional("GUILD_ID"),
		CategoryID:            optional("CATEGORY_ID"),
		LogChannelID:          optional("LOG_CHANNEL_ID"),
		ServerPort:            intValue("SERVER_PORT", 8080),
		PublicURL:             strings.TrimRight(os.Getenv("PUBLIC_URL"), "/"),
		DBPath:                stringValue("DB_PATH", "tokumei-jinro.db"),
		DebugMode:             boolValue("DEBUG_MODE"),
		RelayLogRetentionDays: intValue("RELAY_LOG_RETENTION_DAYS", 7),
	}

	if Value.PublicURL == "" {
		Value.PublicURL = "http://localhost:" + strconv.Itoa(Value.ServerPort)
	}
}

// optional returns the first non-empty value among keys, or nil.
func optional(keys ...string) *string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return &v
		}
	}
	return nil
}

func stringValue(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intValue(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn("Invalid integer environment value, using default",
			zap.String("key", key),
			zap.String("value", raw),
			zap.Int("default", fallback))
		return fallback
	}
	return n
}

func boolValue(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
