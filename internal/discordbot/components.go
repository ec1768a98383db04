package discordbot

import (
	"context"
	"fmt"

	"github.com/Nemupy/tokumei-jinro/internal/enrollment"
	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	"github.com/Nemupy/tokumei-jinro/internal/types"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) handleComponent(ctx context.Context, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	action, id, ok := parseCustomID(data.CustomID)
	if !ok {
		logger.Debug("Unknown component", zap.String("custom_id", data.CustomID))
		return
	}

	switch action {
	case actionJoin:
		b.handleJoin(ctx, i, id)
	case actionStart:
		b.handleGameStart(ctx, i, id)
	case actionVote:
		b.handleVote(ctx, i, id, data.Values)
	}
}

func (b *Bot) handleJoin(ctx context.Context, i *discordgo.InteractionCreate, recruitmentID string) {
	b.deferEphemeral(i)

	snap, err := b.game.Join(ctx, recruitmentID, interactionPlayer(i))
	if err != nil {
		b.followup(i, userMessage(err))
		return
	}

	b.updateRecruitment(i, snap)

	player := interactionPlayer(i)
	b.followup(i, fmt.Sprintf("参加完了！ <#%s> へどうぞ。", snap.Channels[player.ID]))
}

func (b *Bot) handleGameStart(ctx context.Context, i *discordgo.InteractionCreate, recruitmentID string) {
	requester := interactionPlayer(i)
	b.deferEphemeral(i)

	s, err := b.game.Start(ctx, recruitmentID, requester.ID)
	if err != nil {
		b.followup(i, userMessage(err))
		return
	}

	empty := []discordgo.MessageComponent{}
	if i.Message != nil {
		if _, err := b.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
			ID:         i.Message.ID,
			Channel:    i.ChannelID,
			Components: &empty,
		}); err != nil {
			logger.Warn("Failed to close recruitment message", zap.Error(err))
		}
	}

	b.followup(i, fmt.Sprintf("ゲーム開始！ターゲット: %s", s.Target().DisplayName))
}

func (b *Bot) handleVote(ctx context.Context, i *discordgo.InteractionCreate, sessionID string, values []string) {
	if len(values) == 0 {
		return
	}

	b.deferEphemeral(i)

	voter := interactionPlayer(i)
	progress, err := b.game.CastVote(ctx, sessionID, voter.ID, types.PlayerID(values[0]))
	if err != nil {
		b.followup(i, userMessage(err))
		return
	}
	b.followup(i, fmt.Sprintf("投票完了。 (現在の進捗: %d/%d)", progress.Cast, progress.Total))
}

// updateRecruitment redraws the recruitment message after a join.
func (b *Bot) updateRecruitment(i *discordgo.InteractionCreate, snap enrollment.Snapshot) {
	if i.Message == nil {
		return
	}
	embeds := []*discordgo.MessageEmbed{recruitmentEmbed(snap)}
	components := recruitmentComponents(snap)
	if _, err := b.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         i.Message.ID,
		Channel:    i.ChannelID,
		Embeds:     &embeds,
		Components: &components,
	}); err != nil {
		logger.Warn("Failed to update recruitment message", zap.Error(err), zap.String("recruitment_id", snap.ID))
	}
}
