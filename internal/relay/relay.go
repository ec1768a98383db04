package relay

import (
	"context"
	"time"

	"github.com/Nemupy/tokumei-jinro/internal/broadcast"
	"github.com/Nemupy/tokumei-jinro/internal/delivery"
	"github.com/Nemupy/tokumei-jinro/internal/session"
	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	"github.com/Nemupy/tokumei-jinro/internal/types"
	"go.uber.org/zap"
)

// IncomingMessage is a chat message event from the platform.
type IncomingMessage struct {
	ID          string
	Author      types.Player
	ChannelID   types.ChannelID
	Content     string
	Attachments []types.Attachment
	// FromSelf is set when the bot itself authored the message.
	FromSelf bool
	// FromWebhook is set for webhook-originated messages, including our own relays.
	FromWebhook bool
}

// Outcome tells what Relay did with a message.
type Outcome string

const (
	Relayed               Outcome = "relayed"
	IgnoredNoSession      Outcome = "no_session"
	IgnoredRevealed       Outcome = "revealed"
	IgnoredBot            Outcome = "bot"
	IgnoredNotParticipant Outcome = "not_participant"
	IgnoredOutsideChannel Outcome = "outside_channel"
	IgnoredEmpty          Outcome = "empty"
	IgnoredDuplicate      Outcome = "duplicate"
)

// Entry is what the relay log keeps for one relayed message.
type Entry struct {
	MessageID       string
	SessionID       string
	AuthorID        types.PlayerID
	MaskedName      string
	OriginChannelID types.ChannelID
	Content         string
	AttachmentCount int
}

// Log records relayed messages. Record returns false when the message ID was already recorded.
type Log interface {
	Record(entry Entry) (bool, error)
}

// Result is returned for diagnostics only; delivery failures never reach the author.
type Result struct {
	Outcome Outcome
	Report  delivery.Report
}

type Engine struct {
	impersonator delivery.Impersonator
	log          Log
}

// NewEngine creates a relay engine. log may be nil.
func NewEngine(impersonator delivery.Impersonator, log Log) *Engine {
	return &Engine{impersonator: impersonator, log: log}
}

// Relay rebroadcasts msg under its author's masked identity to every relay target except the origin.
func (e *Engine) Relay(ctx context.Context, s *session.Session, msg IncomingMessage) Result {
	if outcome, ok := e.filter(s, msg); !ok {
		logger.Debug("Message not relayed",
			zap.String("outcome", string(outcome)),
			zap.String("author_id", string(msg.Author.ID)),
			zap.String("channel_id", string(msg.ChannelID)))
		return Result{Outcome: outcome}
	}

	masked, _ := s.Identity(msg.Author.ID)

	if e.log != nil {
		inserted, err := e.log.Record(Entry{
			MessageID:       msg.ID,
			SessionID:       s.ID(),
			AuthorID:        msg.Author.ID,
			MaskedName:      masked.DisplayName,
			OriginChannelID: msg.ChannelID,
			Content:         msg.Content,
			AttachmentCount: len(msg.Attachments),
		})
		if err != nil {
			logger.Warn("Failed to record relay message", zap.Error(err))
		} else if !inserted && msg.ID != "" {
			logger.Debug("Duplicate message detected, skipping relay", zap.String("message_id", msg.ID))
			return Result{Outcome: IgnoredDuplicate}
		}
	}

	targets := make([]types.ChannelID, 0, len(s.RelayTargets()))
	for _, target := range s.RelayTargets() {
		if target == msg.ChannelID {
			continue
		}
		targets = append(targets, target)
	}

	out := delivery.Message{
		Username:         masked.DisplayName,
		AvatarURL:        masked.AvatarURL,
		Content:          msg.Content,
		Attachments:      msg.Attachments,
		SuppressMentions: true,
	}

	report := delivery.FanOut(ctx, "relay", targets, func(ctx context.Context, target types.ChannelID) error {
		endpoint, err := s.ResolveEndpoint(target, func() (string, error) {
			logger.Info("Creating delivery endpoint", zap.String("channel_id", string(target)))
			return e.impersonator.ResolveEndpoint(ctx, target)
		})
		if err != nil {
			return err
		}
		return e.impersonator.Impersonate(ctx, endpoint, out)
	})

	broadcast.Send(map[string]interface{}{
		"type": broadcast.EventRelayMessage,
		"data": map[string]interface{}{
			"sessionId":   s.ID(),
			"maskedName":  masked.DisplayName,
			"avatarUrl":   masked.AvatarURL,
			"message":     msg.Content,
			"attachments": len(msg.Attachments),
			"delivered":   len(report.Delivered),
			"failed":      len(report.Failures()),
			"timestamp":   time.Now().Format(time.RFC3339),
		},
	})

	logger.Debug("Message relayed",
		zap.String("session_id", s.ID()),
		zap.String("masked_name", masked.DisplayName),
		zap.Int("targets", report.Attempted),
		zap.Int("delivered", len(report.Delivered)))

	return Result{Outcome: Relayed, Report: report}
}

func (e *Engine) filter(s *session.Session, msg IncomingMessage) (Outcome, bool) {
	if s == nil {
		return IgnoredNoSession, false
	}
	if s.Revealed() {
		return IgnoredRevealed, false
	}
	if msg.FromSelf || msg.FromWebhook {
		return IgnoredBot, false
	}

	own, ok := s.ChannelOf(msg.Author.ID)
	if !ok {
		return IgnoredNotParticipant, false
	}
	if msg.ChannelID != own {
		return IgnoredOutsideChannel, false
	}
	if _, ok := s.Identity(msg.Author.ID); !ok {
		return IgnoredNotParticipant, false
	}
	if msg.Content == "" && len(msg.Attachments) == 0 {
		return IgnoredEmpty, false
	}
	return "", true
}
