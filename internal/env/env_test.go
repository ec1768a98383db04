package env

import "testing"

func TestLoadEnv(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("TOKEN", "legacy-token")
	t.Setenv("GUILD_ID", " 1355794280815394816 ")
	t.Setenv("CATEGORY_ID", "")
	t.Setenv("LOG_CHANNEL_ID", "42")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("PUBLIC_URL", "")
	t.Setenv("DB_PATH", "")
	t.Setenv("DEBUG_MODE", "true")
	t.Setenv("RELAY_LOG_RETENTION_DAYS", "oops")

	LoadEnv()

	if Value.DiscordToken == nil || *Value.DiscordToken != "legacy-token" {
		t.Fatalf("TOKEN fallback not applied: %v", Value.DiscordToken)
	}
	if Value.GuildID == nil || *Value.GuildID != "1355794280815394816" {
		t.Fatalf("GUILD_ID not trimmed: %v", Value.GuildID)
	}
	if Value.CategoryID != nil {
		t.Fatalf("empty CATEGORY_ID should be nil, got %q", *Value.CategoryID)
	}
	if Value.ServerPort != 9090 {
		t.Fatalf("unexpected ServerPort: got=%d want=9090", Value.ServerPort)
	}
	if Value.PublicURL != "http://localhost:9090" {
		t.Fatalf("unexpected PublicURL: %q", Value.PublicURL)
	}
	if Value.DBPath != "tokumei-jinro.db" {
		t.Fatalf("unexpected DBPath: %q", Value.DBPath)
	}
	if !Value.DebugMode {
		t.Fatalf("DebugMode should be enabled")
	}
	if Value.RelayLogRetentionDays != 7 {
		t.Fatalf("invalid retention should fall back to 7, got %d", Value.RelayLogRetentionDays)
	}
}
