package discordbot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nemupy/tokumei-jinro/internal/game"
	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	"github.com/Nemupy/tokumei-jinro/internal/status"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// eventTimeout bounds the platform calls made while handling one event.
const eventTimeout = 2 * time.Minute

// Bot connects the game to Discord.
type Bot struct {
	session  *discordgo.Session
	platform *Platform
	game     *game.Manager
	guildID  string
}

// NewSession creates the discordgo session with the intents the game needs.
func NewSession(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, errors.New("discord token is not set")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent
	return s, nil
}

func New(session *discordgo.Session, platform *Platform, manager *game.Manager, guildID string) *Bot {
	return &Bot{
		session:  session,
		platform: platform,
		game:     manager,
		guildID:  guildID,
	}
}

// Start opens the gateway connection and registers the slash commands.
func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onInteractionCreate)
	b.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Connect) {
		status.SetBotConnected(true)
	})
	b.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		status.SetBotConnected(false)
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	if _, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, b.guildID, commands()); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	logger.Info("Slash commands registered", zap.String("guild_id", b.guildID), zap.Int("count", len(commands())))
	return nil
}

func (b *Bot) Close() {
	if err := b.session.Close(); err != nil {
		logger.Warn("Failed to close discord session", zap.Error(err))
	}
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	logger.Info("Logged in to Discord",
		zap.String("user", r.User.Username),
		zap.String("user_id", r.User.ID),
		zap.Int("guilds", len(r.Guilds)))
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.GuildID != b.guildID {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	b.game.HandleMessage(ctx, incomingMessage(m.Message, s.State.User.ID))
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while handling interaction", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(ctx, i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(ctx, i)
	}
}

// respondEphemeral replies to the interaction user only.
func (b *Bot) respondEphemeral(i *discordgo.InteractionCreate, content string) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		logger.Warn("Failed to respond to interaction", zap.Error(err))
	}
}

func (b *Bot) deferEphemeral(i *discordgo.InteractionCreate) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		logger.Warn("Failed to defer interaction", zap.Error(err))
	}
}

func (b *Bot) followup(i *discordgo.InteractionCreate, content string) {
	if _, err := b.session.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: content}); err != nil {
		logger.Warn("Failed to send followup", zap.Error(err))
	}
}
