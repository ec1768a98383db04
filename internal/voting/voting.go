package voting

import (
	"context"
	"errors"
	"sort"

	"github.com/Nemupy/tokumei-jinro/internal/broadcast"
	"github.com/Nemupy/tokumei-jinro/internal/session"
	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	"github.com/Nemupy/tokumei-jinro/internal/types"
	"go.uber.org/zap"
)

var (
	ErrAlreadyVoted     = errors.New("already voted")
	ErrNotParticipant   = errors.New("voter is not a participant")
	ErrUnknownCandidate = errors.New("vote target is not a participant")
)

// Progress is the result of one cast.
type Progress struct {
	Recorded bool `json:"recorded"`
	Cast     int  `json:"cast"`
	Total    int  `json:"total"`
}

// CompleteFunc runs once per session, when the last vote is recorded.
type CompleteFunc func(ctx context.Context, s *session.Session)

type Engine struct {
	onComplete CompleteFunc
}

func NewEngine(onComplete CompleteFunc) *Engine {
	return &Engine{onComplete: onComplete}
}

// Cast records voter's choice. A voter can vote only once; later casts return ErrAlreadyVoted
// and leave the first vote in place. The cast that completes the vote triggers the reveal.
func (e *Engine) Cast(ctx context.Context, s *session.Session, voter, target types.PlayerID) (Progress, error) {
	if !s.HasPlayer(voter) {
		return progressOf(false, s.Progress()), ErrNotParticipant
	}
	if !s.HasPlayer(target) {
		return progressOf(false, s.Progress()), ErrUnknownCandidate
	}

	recorded, progress := s.RecordVote(voter, target)
	if !recorded {
		logger.Debug("Duplicate vote rejected",
			zap.String("session_id", s.ID()),
			zap.String("voter_id", string(voter)))
		return progressOf(false, progress), ErrAlreadyVoted
	}

	logger.Info("Vote recorded",
		zap.String("session_id", s.ID()),
		zap.Int("cast", progress.Cast),
		zap.Int("total", progress.Total))

	broadcast.Send(map[string]interface{}{
		"type": broadcast.EventVoteProgress,
		"data": map[string]interface{}{
			"sessionId": s.ID(),
			"cast":      progress.Cast,
			"total":     progress.Total,
		},
	})

	if progress.Complete() && s.ClaimReveal() {
		logger.Info("All votes are in, revealing", zap.String("session_id", s.ID()))
		if e.onComplete != nil {
			e.onComplete(ctx, s)
		}
	}

	return progressOf(true, progress), nil
}

func progressOf(recorded bool, p session.Progress) Progress {
	return Progress{Recorded: recorded, Cast: p.Cast, Total: p.Total}
}

// Choice is one entry of the vote menu.
type Choice struct {
	Label    string         `json:"label"`
	PlayerID types.PlayerID `json:"player_id"`
}

// Ballot lists every player under their masked name, sorted by that name.
func Ballot(s *session.Session) []Choice {
	players := s.Players()
	choices := make([]Choice, 0, len(players))
	for _, p := range players {
		masked, ok := s.Identity(p.ID)
		if !ok {
			continue
		}
		choices = append(choices, Choice{Label: masked.DisplayName, PlayerID: p.ID})
	}
	sort.Slice(choices, func(i, j int) bool {
		return choices[i].Label < choices[j].Label
	})
	return choices
}
