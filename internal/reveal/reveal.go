package reveal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Nemupy/tokumei-jinro/internal/broadcast"
	"github.com/Nemupy/tokumei-jinro/internal/delivery"
	"github.com/Nemupy/tokumei-jinro/internal/session"
	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	"github.com/Nemupy/tokumei-jinro/internal/types"
	"go.uber.org/zap"
)

const (
	Title = "📊 結果発表：本物は誰だ？"
	// Color is the embed color (gold).
	Color = 0xF1C40F

	NoVoteLabel  = "未投票"
	UnknownLabel = "不明"
)

// Row is one player's line of the result.
type Row struct {
	Player          types.Player   `json:"player"`
	MaskedName      string         `json:"masked_name"`
	VotedFor        types.PlayerID `json:"voted_for,omitempty"`
	VotedMaskedName string         `json:"voted_masked_name"`
	Correct         bool           `json:"correct"`
}

// Result is the outcome of a finished game.
type Result struct {
	SessionID string `json:"session_id"`
	// Target is the designated target; Real is the enrolled player holding the real identity.
	Target         types.Player `json:"target"`
	Real           types.Player `json:"real"`
	HasReal        bool         `json:"has_real"`
	RealMaskedName string       `json:"real_masked_name"`
	Rows           []Row        `json:"rows"`
	Summary        string       `json:"summary"`
	StartedAt      time.Time    `json:"started_at"`
	RevealedAt     time.Time    `json:"revealed_at"`
}

// CorrectCount returns how many players found the real target.
func (r Result) CorrectCount() int {
	n := 0
	for _, row := range r.Rows {
		if row.Correct {
			n++
		}
	}
	return n
}

// Compute builds the result rows in enrollment order.
// Without an enrolled real target nobody can be correct.
func Compute(s *session.Session) Result {
	holder, hasReal := s.RealTarget()
	votes := s.Votes()

	result := Result{
		SessionID:  s.ID(),
		Target:     s.Target(),
		Real:       holder,
		HasReal:    hasReal,
		StartedAt:  s.StartedAt(),
		RevealedAt: time.Now(),
	}

	if hasReal {
		masked, _ := s.Identity(holder.ID)
		result.RealMaskedName = masked.DisplayName
	} else {
		result.Real = s.Target()
		result.RealMaskedName = UnknownLabel
		logger.Warn("No participant holds the real target identity",
			zap.String("session_id", s.ID()),
			zap.String("target_id", string(s.Target().ID)))
	}

	players := s.Players()
	result.Rows = make([]Row, 0, len(players))
	for _, p := range players {
		own, _ := s.Identity(p.ID)
		row := Row{
			Player:          p,
			MaskedName:      own.DisplayName,
			VotedMaskedName: NoVoteLabel,
		}
		if voted, ok := votes[p.ID]; ok {
			row.VotedFor = voted
			if masked, ok := s.Identity(voted); ok {
				row.VotedMaskedName = masked.DisplayName
			} else {
				row.VotedMaskedName = UnknownLabel
			}
			row.Correct = hasReal && voted == holder.ID
		}
		result.Rows = append(result.Rows, row)
	}

	result.Summary = fmt.Sprintf("✨ **本物の正体は... %s [%s] でした！**", result.Real.DisplayName, result.RealMaskedName)
	return result
}

// Format renders r as "**name** [masked] ➔ voted ✅" lines followed by the summary.
func Format(r Result) delivery.Announcement {
	var b strings.Builder
	for _, row := range r.Rows {
		mark := "❌"
		if row.Correct {
			mark = "✅"
		}
		fmt.Fprintf(&b, "**%s** [%s] ➔ %s %s\n", row.Player.DisplayName, row.MaskedName, row.VotedMaskedName, mark)
	}
	b.WriteString("\n")
	b.WriteString(r.Summary)

	return delivery.Announcement{
		Title:        Title,
		Description:  b.String(),
		ThumbnailURL: r.Real.AvatarURL,
		Color:        Color,
	}
}

// History stores finished games.
type History interface {
	SaveResult(r Result) error
}

type Engine struct {
	announcer delivery.Announcer
	history   History
}

// NewEngine creates a reveal engine. history may be nil.
func NewEngine(announcer delivery.Announcer, history History) *Engine {
	return &Engine{announcer: announcer, history: history}
}

// Reveal announces the result to every player channel and the observer channel.
// Callers must hold the session's reveal claim; Reveal itself does not check it.
func (e *Engine) Reveal(ctx context.Context, s *session.Session) Result {
	result := Compute(s)
	announcement := Format(result)

	report := delivery.FanOut(ctx, "reveal", uniqueTargets(s.RelayTargets()), func(ctx context.Context, ch types.ChannelID) error {
		return e.announcer.Announce(ctx, ch, announcement)
	})

	logger.Info("Result revealed",
		zap.String("session_id", result.SessionID),
		zap.String("real_player", result.Real.DisplayName),
		zap.Bool("has_real", result.HasReal),
		zap.Int("correct", result.CorrectCount()),
		zap.Int("delivered", len(report.Delivered)),
		zap.Int("failed", len(report.Failures())))

	if e.history != nil {
		if err := e.history.SaveResult(result); err != nil {
			logger.Error("Failed to save game history", zap.Error(err), zap.String("session_id", result.SessionID))
		}
	}

	broadcast.Send(map[string]interface{}{
		"type": broadcast.EventReveal,
		"data": result,
	})

	return result
}

func uniqueTargets(targets []types.ChannelID) []types.ChannelID {
	seen := make(map[types.ChannelID]bool, len(targets))
	out := make([]types.ChannelID, 0, len(targets))
	for _, ch := range targets {
		if ch == "" || seen[ch] {
			continue
		}
		seen[ch] = true
		out = append(out, ch)
	}
	return out
}
