package discordbot

import (
	"context"
	"fmt"

	"github.com/Nemupy/tokumei-jinro/internal/identity"
	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	"github.com/Nemupy/tokumei-jinro/internal/types"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	commandStart     = "start"
	commandFinish    = "finish"
	commandVoteStart = "vote_start"
)

func commands() []*discordgo.ApplicationCommand {
	minPlayers := float64(identity.MinPlayers)
	return []*discordgo.ApplicationCommand{
		{
			Name:        commandStart,
			Description: "募集を開始します",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "num",
					Description: "最大参加可能人数(3-20)",
					Required:    true,
					MinValue:    &minPlayers,
					MaxValue:    float64(identity.MaxPlayers),
				},
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "target",
					Description: "ターゲット",
				},
			},
		},
		{
			Name:        commandFinish,
			Description: "ゲームを終了します",
		},
		{
			Name:        commandVoteStart,
			Description: "投票を開始します",
		},
	}
}

func (b *Bot) handleCommand(ctx context.Context, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	logger.Debug("Slash command received", zap.String("command", data.Name))

	switch data.Name {
	case commandStart:
		b.handleStart(i, data)
	case commandFinish:
		b.handleFinish(ctx, i)
	case commandVoteStart:
		b.handleVoteStart(ctx, i)
	}
}

func (b *Bot) handleStart(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	owner := interactionPlayer(i)

	var capacity int
	var target *types.Player
	for _, opt := range data.Options {
		switch opt.Name {
		case "num":
			capacity = int(opt.IntValue())
		case "target":
			user := opt.UserValue(nil)
			if user == nil {
				continue
			}
			var member *discordgo.Member
			if data.Resolved != nil {
				if resolved, ok := data.Resolved.Users[user.ID]; ok {
					user = resolved
				}
				member = data.Resolved.Members[user.ID]
			}
			p := playerFromMember(member, user)
			target = &p
		}
	}

	snap, err := b.game.Open(owner, capacity, target)
	if err != nil {
		b.respondEphemeral(i, userMessage(err))
		return
	}

	err = b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{recruitmentEmbed(snap)},
			Components: recruitmentComponents(snap),
		},
	})
	if err != nil {
		logger.Error("Failed to post recruitment", zap.Error(err), zap.String("recruitment_id", snap.ID))
	}
}

func (b *Bot) handleFinish(ctx context.Context, i *discordgo.InteractionCreate) {
	b.deferEphemeral(i)

	deleted, err := b.game.Terminate(ctx)
	if err != nil {
		b.followup(i, userMessage(err))
		return
	}
	b.followup(i, fmt.Sprintf("終了！ %d個のチャンネルを削除しました。", deleted))
}

func (b *Bot) handleVoteStart(ctx context.Context, i *discordgo.InteractionCreate) {
	s, choices, err := b.game.OpenVoting()
	if err != nil {
		b.respondEphemeral(i, userMessage(err))
		return
	}
	b.deferEphemeral(i)

	menu := voteMenu(s.ID(), choices)
	sent := 0
	for _, ch := range s.PlayerChannels() {
		if _, err := b.session.ChannelMessageSendComplex(string(ch), menu, discordgo.WithContext(ctx)); err != nil {
			logger.Warn("Failed to send vote menu", zap.String("channel_id", string(ch)), zap.Error(err))
			continue
		}
		sent++
	}

	logger.Info("Vote menus sent", zap.String("session_id", s.ID()), zap.Int("channels", sent))
	b.followup(i, "各チャンネルに投票メニューを送信しました。")
}
