package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Nemupy/tokumei-jinro/internal/identity"
	"github.com/Nemupy/tokumei-jinro/internal/types"
)

// Phase is the externally visible state of the store.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhasePlaying  Phase = "playing"
	PhaseRevealed Phase = "revealed"
)

// Progress is the vote count against the number of players.
type Progress struct {
	Cast  int `json:"cast"`
	Total int `json:"total"`
}

// Complete reports whether every player has voted.
func (p Progress) Complete() bool {
	return p.Total > 0 && p.Cast >= p.Total
}

// Session is the single active game instance.
// Everything set at start is read-only afterwards; votes and endpoints are guarded by mu.
type Session struct {
	id        string
	startedAt time.Time

	players      []types.Player
	index        map[types.PlayerID]int
	target       types.Player
	assignment   identity.Assignment
	channels     map[types.PlayerID]types.ChannelID
	observer     types.ChannelID
	relayTargets []types.ChannelID

	mu        sync.Mutex
	votes     map[types.PlayerID]types.PlayerID
	endpoints map[types.ChannelID]string
	// resolving serializes endpoint creation per channel
	resolving map[types.ChannelID]*sync.Mutex

	revealFired atomic.Bool
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// Players returns a copy of the players in enrollment order.
func (s *Session) Players() []types.Player {
	out := make([]types.Player, len(s.players))
	copy(out, s.players)
	return out
}

// Target is the designated target, who may not be enrolled.
func (s *Session) Target() types.Player {
	return s.target
}

func (s *Session) Player(id types.PlayerID) (types.Player, bool) {
	i, ok := s.index[id]
	if !ok {
		return types.Player{}, false
	}
	return s.players[i], true
}

func (s *Session) HasPlayer(id types.PlayerID) bool {
	_, ok := s.index[id]
	return ok
}

func (s *Session) Identity(id types.PlayerID) (types.MaskedIdentity, bool) {
	masked, ok := s.assignment[id]
	return masked, ok
}

// RealTarget returns the enrolled player wearing the real identity, if any.
func (s *Session) RealTarget() (types.Player, bool) {
	id, ok := s.assignment.RealTarget()
	if !ok {
		return types.Player{}, false
	}
	return s.Player(id)
}

func (s *Session) ChannelOf(id types.PlayerID) (types.ChannelID, bool) {
	ch, ok := s.channels[id]
	return ch, ok
}

// Observer returns the observer channel; empty when none is configured.
func (s *Session) Observer() types.ChannelID {
	return s.observer
}

// RelayTargets returns every player channel in enrollment order followed by the observer channel.
func (s *Session) RelayTargets() []types.ChannelID {
	out := make([]types.ChannelID, len(s.relayTargets))
	copy(out, s.relayTargets)
	return out
}

// PlayerChannels returns the player channels in enrollment order.
func (s *Session) PlayerChannels() []types.ChannelID {
	out := make([]types.ChannelID, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, s.channels[p.ID])
	}
	return out
}

// RecordVote stores voter's choice if voter has not voted yet. It does not validate membership.
func (s *Session) RecordVote(voter, target types.PlayerID) (bool, Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, voted := s.votes[voter]; voted {
		return false, s.progressLocked()
	}
	s.votes[voter] = target
	return true, s.progressLocked()
}

// VoteOf returns who voter voted for.
func (s *Session) VoteOf(voter types.PlayerID) (types.PlayerID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.votes[voter]
	return target, ok
}

// Votes returns a snapshot of the recorded votes.
func (s *Session) Votes() map[types.PlayerID]types.PlayerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[types.PlayerID]types.PlayerID, len(s.votes))
	for k, v := range s.votes {
		out[k] = v
	}
	return out
}

func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

func (s *Session) progressLocked() Progress {
	return Progress{Cast: len(s.votes), Total: len(s.players)}
}

// ClaimReveal flips reveal_fired from false to true. Only the first caller gets true.
func (s *Session) ClaimReveal() bool {
	return s.revealFired.CompareAndSwap(false, true)
}

func (s *Session) Revealed() bool {
	return s.revealFired.Load()
}

func (s *Session) Phase() Phase {
	if s.Revealed() {
		return PhaseRevealed
	}
	return PhasePlaying
}

// Endpoint returns the cached delivery endpoint for a channel.
func (s *Session) Endpoint(ch types.ChannelID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.endpoints[ch]
	return ref, ok
}

// ResolveEndpoint returns the cached endpoint for ch, calling resolve once to create it when missing.
// Concurrent callers for the same missing endpoint wait for the first resolution instead of creating
// their own. Resolutions for different channels run independently.
func (s *Session) ResolveEndpoint(ch types.ChannelID, resolve func() (string, error)) (string, error) {
	if ref, ok := s.Endpoint(ch); ok {
		return ref, nil
	}

	lock := s.resolveLock(ch)
	lock.Lock()
	defer lock.Unlock()

	if ref, ok := s.Endpoint(ch); ok {
		return ref, nil
	}
	ref, err := resolve()
	if err != nil {
		return "", err
	}
	return s.SetEndpoint(ch, ref), nil
}

func (s *Session) resolveLock(ch types.ChannelID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolving == nil {
		s.resolving = make(map[types.ChannelID]*sync.Mutex)
	}
	lock, ok := s.resolving[ch]
	if !ok {
		lock = &sync.Mutex{}
		s.resolving[ch] = lock
	}
	return lock
}

// SetEndpoint caches ref for ch unless one already exists, and returns the cached value.
func (s *Session) SetEndpoint(ch types.ChannelID, ref string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.endpoints[ch]; ok {
		return existing
	}
	s.endpoints[ch] = ref
	return ref
}
