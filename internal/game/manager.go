package game

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Nemupy/tokumei-jinro/internal/delivery"
	"github.com/Nemupy/tokumei-jinro/internal/enrollment"
	"github.com/Nemupy/tokumei-jinro/internal/identity"
	"github.com/Nemupy/tokumei-jinro/internal/relay"
	"github.com/Nemupy/tokumei-jinro/internal/reveal"
	"github.com/Nemupy/tokumei-jinro/internal/session"
	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	"github.com/Nemupy/tokumei-jinro/internal/types"
	"github.com/Nemupy/tokumei-jinro/internal/voting"
	"go.uber.org/zap"
)

var (
	ErrNoSession    = errors.New("no active game")
	ErrStaleSession = errors.New("ballot belongs to a finished game")
	ErrNotOwner     = enrollment.ErrNotOwner
)

// ChannelManager creates and removes the per-player private channels.
type ChannelManager interface {
	// CreatePrivateChannel creates a channel visible only to member and the bot.
	CreatePrivateChannel(ctx context.Context, member types.Player, name string) (types.ChannelID, error)
	DeleteChannel(ctx context.Context, channel types.ChannelID) error
}

// Platform is everything the game needs from the chat platform.
type Platform interface {
	delivery.Impersonator
	delivery.Announcer
	ChannelManager
}

type Options struct {
	// Observer receives every relayed message and the result. Empty disables it.
	Observer types.ChannelID
	RelayLog relay.Log
	History  reveal.History
}

// Manager owns the session store and drives a game from recruitment to reveal.
type Manager struct {
	store    *session.Store
	board    *enrollment.Board
	platform Platform
	observer types.ChannelID

	relay  *relay.Engine
	voting *voting.Engine
	reveal *reveal.Engine
}

func NewManager(platform Platform, opts Options) *Manager {
	m := &Manager{
		store:    session.NewStore(),
		board:    enrollment.NewBoard(),
		platform: platform,
		observer: opts.Observer,
		relay:    relay.NewEngine(platform, opts.RelayLog),
		reveal:   reveal.NewEngine(platform, opts.History),
	}
	m.voting = voting.NewEngine(func(ctx context.Context, s *session.Session) {
		m.reveal.Reveal(ctx, s)
	})
	return m
}

func (m *Manager) Store() *session.Store {
	return m.store
}

// Current returns the active session or nil.
func (m *Manager) Current() *session.Session {
	return m.store.Current()
}

// Open starts a recruitment owned by owner.
func (m *Manager) Open(owner types.Player, capacity int, target *types.Player) (enrollment.Snapshot, error) {
	r, err := m.board.Open(owner, capacity, target)
	if err != nil {
		return enrollment.Snapshot{}, err
	}
	return r.Snapshot(), nil
}

// Join seats p in the recruitment and creates their private channel.
func (m *Manager) Join(ctx context.Context, recruitmentID string, p types.Player) (enrollment.Snapshot, error) {
	r, err := m.board.Get(recruitmentID)
	if err != nil {
		return enrollment.Snapshot{}, err
	}
	return r.Join(p, func(seat int) (types.ChannelID, error) {
		return m.platform.CreatePrivateChannel(ctx, p, PrivateChannelName(seat))
	})
}

// PrivateChannelName is the name of the channel for the given seat.
func PrivateChannelName(seat int) string {
	return fmt.Sprintf("匿名室-%d", seat)
}

// Start closes the recruitment, assigns masked identities, sends each player their role card and
// makes the new session current, replacing any previous one.
func (m *Manager) Start(ctx context.Context, recruitmentID string, requester types.PlayerID) (*session.Session, error) {
	r, err := m.board.Get(recruitmentID)
	if err != nil {
		return nil, err
	}

	roster, err := r.Close(requester)
	if err != nil {
		return nil, err
	}

	s, err := m.start(ctx, roster)
	if err != nil {
		r.Reopen()
		return nil, err
	}

	m.board.Remove(recruitmentID)
	return s, nil
}

func (m *Manager) start(ctx context.Context, roster enrollment.Snapshot) (*session.Session, error) {
	target, err := identity.PickTarget(roster.Players, roster.Target)
	if err != nil {
		return nil, err
	}
	assignment, err := identity.Assign(roster.Players, target)
	if err != nil {
		return nil, err
	}

	channels := make([]types.ChannelID, 0, len(roster.Players))
	owners := make(map[types.ChannelID]types.PlayerID, len(roster.Players))
	for _, p := range roster.Players {
		ch := roster.Channels[p.ID]
		channels = append(channels, ch)
		owners[ch] = p.ID
	}

	endpoints := m.prepareEndpoints(ctx, channels)

	s, err := m.store.Start(session.StartParams{
		Players:    roster.Players,
		Target:     target,
		Assignment: assignment,
		Channels:   roster.Channels,
		Observer:   m.observer,
		Endpoints:  endpoints,
	})
	if err != nil {
		return nil, err
	}

	delivery.FanOut(ctx, "role_card", channels, func(ctx context.Context, ch types.ChannelID) error {
		masked, _ := s.Identity(owners[ch])
		return m.platform.Announce(ctx, ch, RoleCard(target, masked))
	})

	return s, nil
}

// prepareEndpoints resolves delivery endpoints for the player channels up front.
// Channels that fail here are retried lazily on first relay.
func (m *Manager) prepareEndpoints(ctx context.Context, channels []types.ChannelID) map[types.ChannelID]string {
	var mu sync.Mutex
	endpoints := make(map[types.ChannelID]string, len(channels))

	delivery.FanOut(ctx, "prepare_endpoint", channels, func(ctx context.Context, ch types.ChannelID) error {
		ref, err := m.platform.ResolveEndpoint(ctx, ch)
		if err != nil {
			return err
		}
		mu.Lock()
		endpoints[ch] = ref
		mu.Unlock()
		return nil
	})

	return endpoints
}

// RoleCard tells a player which masked name they wear and whether they are the real target.
func RoleCard(target types.Player, masked types.MaskedIdentity) delivery.Announcement {
	role := "👥 あなたは **【分身】** です。"
	if masked.IsRealTarget {
		role = "🌟 あなたは **【本物】** です！"
	}
	return delivery.Announcement{
		Title:        "🎭 ゲーム開始：匿名分身人狼",
		Description:  fmt.Sprintf("ターゲット: **%s**\nあなたの名前: **%s**\n\n%s", target.DisplayName, masked.DisplayName, role),
		ThumbnailURL: target.AvatarURL,
		Color:        0x9B59B6,
	}
}

// HandleMessage relays a chat message of the active session.
func (m *Manager) HandleMessage(ctx context.Context, msg relay.IncomingMessage) relay.Result {
	return m.relay.Relay(ctx, m.store.Current(), msg)
}

// OpenVoting returns the session and its vote menu.
func (m *Manager) OpenVoting() (*session.Session, []voting.Choice, error) {
	s := m.store.Current()
	if s == nil {
		return nil, nil, ErrNoSession
	}
	return s, voting.Ballot(s), nil
}

// CastVote records a vote in the session the ballot was issued for; the last vote reveals the result.
// A ballot from a replaced session is rejected instead of counting towards the new one.
func (m *Manager) CastVote(ctx context.Context, sessionID string, voter, target types.PlayerID) (voting.Progress, error) {
	s := m.store.Current()
	if s == nil {
		return voting.Progress{}, ErrNoSession
	}
	if s.ID() != sessionID {
		return voting.Progress{}, ErrStaleSession
	}
	return m.voting.Cast(ctx, s, voter, target)
}

// Terminate clears the active session and deletes its player channels.
// It returns how many channels were deleted.
func (m *Manager) Terminate(ctx context.Context) (int, error) {
	s := m.store.Terminate()
	if s == nil {
		return 0, ErrNoSession
	}

	report := delivery.FanOut(ctx, "delete_channel", s.PlayerChannels(), func(ctx context.Context, ch types.ChannelID) error {
		return m.platform.DeleteChannel(ctx, ch)
	})

	logger.Info("Game finished",
		zap.String("session_id", s.ID()),
		zap.Int("deleted_channels", len(report.Delivered)),
		zap.Int("failed", len(report.Failures())))

	return len(report.Delivered), nil
}
