package discordbot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Nemupy/tokumei-jinro/internal/enrollment"
	"github.com/Nemupy/tokumei-jinro/internal/game"
	"github.com/Nemupy/tokumei-jinro/internal/identity"
	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	"github.com/Nemupy/tokumei-jinro/internal/voting"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	colorOrange = 0xE67E22
)

func recruitmentEmbed(snap enrollment.Snapshot) *discordgo.MessageEmbed {
	targetName := "ランダム抽選"
	if snap.Target != nil {
		targetName = snap.Target.DisplayName
	}

	players := "なし"
	if len(snap.Players) > 0 {
		lines := make([]string, 0, len(snap.Players))
		for _, p := range snap.Players {
			lines = append(lines, "・"+p.DisplayName)
		}
		players = strings.Join(lines, "\n")
	}

	return &discordgo.MessageEmbed{
		Title: "👤 匿名分身人狼 募集",
		Description: fmt.Sprintf("ターゲット: **%s**\n最大定員: **%d名**\n募集主: <@%s>\n※%d名以上で開始可能になります。",
			targetName, snap.Capacity, snap.Owner.ID, identity.MinPlayers),
		Color: colorOrange,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  fmt.Sprintf("参加者 (%d/%d)", len(snap.Players), snap.Capacity),
				Value: players,
			},
		},
	}
}

// recruitmentComponents shows the join button, disabled once full, and the start button from MinPlayers on.
func recruitmentComponents(snap enrollment.Snapshot) []discordgo.MessageComponent {
	join := discordgo.Button{
		Label:    "参加する",
		Style:    discordgo.SuccessButton,
		CustomID: customID(actionJoin, snap.ID),
	}
	if snap.Full() {
		join.Label = "募集終了"
		join.Disabled = true
	}

	buttons := []discordgo.MessageComponent{join}
	if snap.CanStart() {
		buttons = append(buttons, discordgo.Button{
			Label:    "分身を作成して開始！",
			Style:    discordgo.DangerButton,
			CustomID: customID(actionStart, snap.ID),
		})
	}

	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: buttons},
	}
}

func voteMenu(sessionID string, choices []voting.Choice) *discordgo.MessageSend {
	options := make([]discordgo.SelectMenuOption, 0, len(choices))
	for _, c := range choices {
		options = append(options, discordgo.SelectMenuOption{
			Label: c.Label,
			Value: string(c.PlayerID),
		})
	}

	return &discordgo.MessageSend{
		Content: "🔍 **投票フェーズ**：紛れ込んでいる「本物」を選んでください。",
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.SelectMenu{
						MenuType:    discordgo.StringSelectMenu,
						CustomID:    customID(actionVote, sessionID),
						Placeholder: "本物は誰だ？",
						Options:     options,
					},
				},
			},
		},
	}
}

// userMessage turns a game error into the reply shown to the user who caused it.
func userMessage(err error) string {
	switch {
	case errors.Is(err, enrollment.ErrAlreadyJoined):
		return "既に登録されています！"
	case errors.Is(err, enrollment.ErrFull):
		return "定員に達しています。"
	case errors.Is(err, enrollment.ErrNotOwner):
		return "この操作は募集を開始したユーザーのみ可能です。"
	case errors.Is(err, enrollment.ErrNotEnoughPlayers):
		return fmt.Sprintf("%d名以上で開始可能になります。", identity.MinPlayers)
	case errors.Is(err, enrollment.ErrInvalidCapacity):
		return fmt.Sprintf("最大参加可能人数は%d〜%d名で指定してください。", identity.MinPlayers, identity.MaxPlayers)
	case errors.Is(err, enrollment.ErrClosed), errors.Is(err, enrollment.ErrNotFound):
		return "この募集は締め切られています。"
	case errors.Is(err, game.ErrStaleSession):
		return "このゲームは既に終了しています。"
	case errors.Is(err, game.ErrNoSession):
		return "ゲームが開始されていません。"
	case errors.Is(err, voting.ErrAlreadyVoted):
		return "既に投票済みです。"
	case errors.Is(err, voting.ErrNotParticipant):
		return "このゲームの参加者ではありません。"
	case errors.Is(err, voting.ErrUnknownCandidate):
		return "その投票先は参加者ではありません。"
	default:
		logger.Error("Unexpected game error", zap.Error(err))
		return "エラーが発生しました。しばらくしてからもう一度お試しください。"
	}
}
