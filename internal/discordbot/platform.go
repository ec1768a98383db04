package discordbot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Nemupy/tokumei-jinro/internal/delivery"
	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	"github.com/Nemupy/tokumei-jinro/internal/types"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// maxAttachmentSize is Discord's upload limit for bots without boosts.
const maxAttachmentSize = 25 << 20

var errAttachmentTooLarge = errors.New("attachment exceeds upload limit")

// Platform implements game.Platform on top of a discordgo session.
type Platform struct {
	session    *discordgo.Session
	guildID    string
	categoryID string
	httpClient *http.Client
}

func NewPlatform(session *discordgo.Session, guildID, categoryID string) *Platform {
	return &Platform{
		session:    session,
		guildID:    guildID,
		categoryID: categoryID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CreatePrivateChannel creates a text channel hidden from @everyone, visible to member and the bot.
func (p *Platform) CreatePrivateChannel(ctx context.Context, member types.Player, name string) (types.ChannelID, error) {
	ch, err := p.session.GuildChannelCreateComplex(p.guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             p.categoryID,
		PermissionOverwrites: privateOverwrites(p.guildID, string(member.ID), p.botUserID()),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to create channel %s: %w", name, err)
	}

	logger.Info("Private channel created",
		zap.String("channel_id", ch.ID),
		zap.String("name", name),
		zap.String("member_id", string(member.ID)))
	return types.ChannelID(ch.ID), nil
}

// privateOverwrites hides a channel from @everyone (whose role ID is the guild ID).
func privateOverwrites(guildID, memberID, botID string) []*discordgo.PermissionOverwrite {
	overwrites := []*discordgo.PermissionOverwrite{
		{
			ID:   guildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
		{
			ID:    memberID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages,
		},
	}
	if botID != "" {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    botID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionManageWebhooks,
		})
	}
	return overwrites
}

func (p *Platform) DeleteChannel(ctx context.Context, channel types.ChannelID) error {
	if _, err := p.session.ChannelDelete(string(channel), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	return nil
}

// ResolveEndpoint creates a webhook in channel. The endpoint is "<webhook id>/<token>".
func (p *Platform) ResolveEndpoint(ctx context.Context, channel types.ChannelID) (string, error) {
	hook, err := p.session.WebhookCreate(string(channel), "Anon-WG-"+string(channel), "", discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to create webhook: %w", err)
	}
	return encodeEndpoint(hook.ID, hook.Token), nil
}

func encodeEndpoint(id, token string) string {
	return id + "/" + token
}

func decodeEndpoint(endpoint string) (id, token string, err error) {
	id, token, ok := strings.Cut(endpoint, "/")
	if !ok || id == "" || token == "" {
		return "", "", fmt.Errorf("malformed webhook endpoint")
	}
	return id, token, nil
}

// Impersonate posts msg through the webhook behind endpoint.
func (p *Platform) Impersonate(ctx context.Context, endpoint string, msg delivery.Message) error {
	id, token, err := decodeEndpoint(endpoint)
	if err != nil {
		return err
	}

	params := webhookParams(msg)
	for _, att := range msg.Attachments {
		file, err := p.download(ctx, att)
		if err != nil {
			// the text still goes out; a missing file should not silence the message
			logger.Warn("Failed to fetch attachment", zap.String("filename", att.Filename), zap.Error(err))
			continue
		}
		params.Files = append(params.Files, file)
	}
	if params.Content == "" && len(params.Files) == 0 {
		return fmt.Errorf("nothing to send: every attachment failed")
	}

	if _, err := p.session.WebhookExecute(id, token, false, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to execute webhook: %w", err)
	}
	return nil
}

func webhookParams(msg delivery.Message) *discordgo.WebhookParams {
	params := &discordgo.WebhookParams{
		Content:   msg.Content,
		Username:  msg.Username,
		AvatarURL: msg.AvatarURL,
	}
	if msg.SuppressMentions {
		params.AllowedMentions = &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}}
	}
	return params
}

func (p *Platform) download(ctx context.Context, att types.Attachment) (*discordgo.File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxAttachmentSize {
		return nil, errAttachmentTooLarge
	}

	contentType := att.ContentType
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	return &discordgo.File{
		Name:        att.Filename,
		ContentType: contentType,
		Reader:      bytes.NewReader(data),
	}, nil
}

// Announce posts an embed as the bot.
func (p *Platform) Announce(ctx context.Context, channel types.ChannelID, a delivery.Announcement) error {
	if _, err := p.session.ChannelMessageSendEmbed(string(channel), announcementEmbed(a), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send announcement: %w", err)
	}
	return nil
}

func announcementEmbed(a delivery.Announcement) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       a.Title,
		Description: a.Description,
		Color:       a.Color,
	}
	if a.ThumbnailURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: a.ThumbnailURL}
	}
	return embed
}

func (p *Platform) botUserID() string {
	if p.session == nil || p.session.State == nil || p.session.State.User == nil {
		return ""
	}
	return p.session.State.User.ID
}
