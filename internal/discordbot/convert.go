package discordbot

import (
	"strings"

	"github.com/Nemupy/tokumei-jinro/internal/relay"
	"github.com/Nemupy/tokumei-jinro/internal/types"
	"github.com/bwmarrin/discordgo"
)

// playerFromMember prefers the guild nickname, then the global display name, then the username.
func playerFromMember(member *discordgo.Member, user *discordgo.User) types.Player {
	if user == nil && member != nil {
		user = member.User
	}
	if user == nil {
		return types.Player{}
	}

	name := user.Username
	if user.GlobalName != "" {
		name = user.GlobalName
	}
	if member != nil && member.Nick != "" {
		name = member.Nick
	}

	return types.Player{
		ID:          types.PlayerID(user.ID),
		DisplayName: name,
		AvatarURL:   user.AvatarURL(""),
	}
}

// interactionPlayer is the user who triggered i.
func interactionPlayer(i *discordgo.InteractionCreate) types.Player {
	if i.Member != nil {
		return playerFromMember(i.Member, i.Member.User)
	}
	return playerFromMember(nil, i.User)
}

func incomingMessage(m *discordgo.Message, botID string) relay.IncomingMessage {
	msg := relay.IncomingMessage{
		ID:          m.ID,
		Author:      playerFromMember(m.Member, m.Author),
		ChannelID:   types.ChannelID(m.ChannelID),
		Content:     m.Content,
		FromSelf:    m.Author != nil && m.Author.ID == botID,
		FromWebhook: m.WebhookID != "" || (m.Author != nil && m.Author.Bot),
	}
	for _, att := range m.Attachments {
		if att == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, types.Attachment{
			Filename:    att.Filename,
			URL:         att.URL,
			ContentType: att.ContentType,
		})
	}
	return msg
}

const (
	actionJoin  = "join"
	actionStart = "start"
	actionVote  = "vote"
)

func customID(action, id string) string {
	return action + ":" + id
}

func parseCustomID(raw string) (action, id string, ok bool) {
	action, id, ok = strings.Cut(raw, ":")
	if !ok || action == "" || id == "" {
		return "", "", false
	}
	return action, id, true
}
