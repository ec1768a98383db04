package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Nemupy/tokumei-jinro/internal/identity"
	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	"github.com/Nemupy/tokumei-jinro/internal/types"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

var ErrInvalidSession = errors.New("invalid session parameters")

// StartParams carries everything fixed at game start.
type StartParams struct {
	Players    []types.Player
	Target     types.Player
	Assignment identity.Assignment
	Channels   map[types.PlayerID]types.ChannelID
	Observer   types.ChannelID
	// Endpoints pre-resolved for player channels; missing ones are resolved lazily.
	Endpoints map[types.ChannelID]string
}

// ChangeCallback is called after the active session changes; s is nil once cleared.
type ChangeCallback func(s *Session)

// Store holds at most one active session.
type Store struct {
	mu        sync.RWMutex
	current   *Session
	callbacks []ChangeCallback
}

func NewStore() *Store {
	return &Store{}
}

// Start replaces any active session with a fresh one built from p.
func (st *Store) Start(p StartParams) (*Session, error) {
	s, err := newSession(p)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	previous := st.current
	st.current = s
	callbacks := make([]ChangeCallback, len(st.callbacks))
	copy(callbacks, st.callbacks)
	st.mu.Unlock()

	if previous != nil {
		logger.Info("Discarding previous session",
			zap.String("previous_session_id", previous.id),
			zap.String("session_id", s.id))
	}
	logger.Info("Session started",
		zap.String("session_id", s.id),
		zap.Int("players", len(s.players)),
		zap.String("target", s.target.DisplayName))

	for _, cb := range callbacks {
		if cb != nil {
			cb(s)
		}
	}
	return s, nil
}

// Current returns the active session or nil.
func (st *Store) Current() *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current
}

// Terminate clears the store and returns the session it held, or nil.
func (st *Store) Terminate() *Session {
	st.mu.Lock()
	previous := st.current
	st.current = nil
	callbacks := make([]ChangeCallback, len(st.callbacks))
	copy(callbacks, st.callbacks)
	st.mu.Unlock()

	if previous == nil {
		return nil
	}

	logger.Info("Session terminated", zap.String("session_id", previous.id))
	for _, cb := range callbacks {
		if cb != nil {
			cb(nil)
		}
	}
	return previous
}

// Phase reports idle when no session is active.
func (st *Store) Phase() Phase {
	s := st.Current()
	if s == nil {
		return PhaseIdle
	}
	return s.Phase()
}

// OnChange registers a callback fired after Start and Terminate.
func (st *Store) OnChange(cb ChangeCallback) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.callbacks = append(st.callbacks, cb)
}

func newSession(p StartParams) (*Session, error) {
	if len(p.Players) == 0 {
		return nil, fmt.Errorf("%w: no players", ErrInvalidSession)
	}
	if len(p.Assignment) != len(p.Players) {
		return nil, fmt.Errorf("%w: %d assignments for %d players", ErrInvalidSession, len(p.Assignment), len(p.Players))
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	s := &Session{
		id:           id,
		startedAt:    time.Now(),
		players:      make([]types.Player, len(p.Players)),
		index:        make(map[types.PlayerID]int, len(p.Players)),
		target:       p.Target,
		assignment:   make(identity.Assignment, len(p.Assignment)),
		channels:     make(map[types.PlayerID]types.ChannelID, len(p.Players)),
		observer:     p.Observer,
		relayTargets: make([]types.ChannelID, 0, len(p.Players)+1),
		votes:        make(map[types.PlayerID]types.PlayerID, len(p.Players)),
		endpoints:    make(map[types.ChannelID]string, len(p.Players)+1),
	}
	copy(s.players, p.Players)

	labels := make(map[string]bool, len(p.Players))
	for i, player := range p.Players {
		if _, dup := s.index[player.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate player %s", ErrInvalidSession, player.ID)
		}
		s.index[player.ID] = i

		masked, ok := p.Assignment[player.ID]
		if !ok {
			return nil, fmt.Errorf("%w: player %s has no masked identity", ErrInvalidSession, player.ID)
		}
		if labels[masked.DisplayName] {
			return nil, fmt.Errorf("%w: masked name %q is not unique", ErrInvalidSession, masked.DisplayName)
		}
		labels[masked.DisplayName] = true
		s.assignment[player.ID] = masked

		ch, ok := p.Channels[player.ID]
		if !ok || ch == "" {
			return nil, fmt.Errorf("%w: player %s has no private channel", ErrInvalidSession, player.ID)
		}
		s.channels[player.ID] = ch
		s.relayTargets = append(s.relayTargets, ch)
	}

	if p.Observer != "" {
		s.relayTargets = append(s.relayTargets, p.Observer)
	}

	for ch, ref := range p.Endpoints {
		if ref != "" {
			s.endpoints[ch] = ref
		}
	}

	return s, nil
}
