package enrollment

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

var (
	ErrInvalidCapacity  = errors.New("capacity out of range")
	ErrFull             = errors.New("recruitment is full")
	ErrAlreadyJoined    = errors.New("already joined")
	ErrNotEnoughPlayers = errors.New("not enough players")
	ErrNotOwner         = errors.New("only the recruitment owner can start the game")
	ErrClosed           = errors.New("recruitment is closed")
	ErrNotFound         = errors.New("recruitment not found")
)

// ChannelFunc creates the private channel for the player taking seat (1-based).
type ChannelFunc func(seat int) (types.ChannelID, error)

// Snapshot は募集の状態のコピー。
type Snapshot struct {
	ID       string                             `json:"id"`
	Capacity int                                `json:"capacity"`
	Owner    types.Player                       `json:"owner"`
	Target   *types.Player                      `json:"target,omitempty"`
	Players  []types.Player                     `json:"players"`
	Channels map[types.PlayerID]types.ChannelID `json:"channels"`
	Closed   bool                               `json:"closed"`
}

// CanStart reports whether enough players joined.
func (s Snapshot) CanStart() bool {
	return len(s.Players) >= identity.MinPlayers
}

// Full reports whether every seat is taken.
func (s Snapshot) Full() bool {
	return len(s.Players) >= s.Capacity
}

// Recruitment collects players for one game.
type Recruitment struct {
	mu        sync.Mutex
	id        string
	capacity  int
	owner     types.Player
	target    *types.Player
	players   []types.Player
	channels  map[types.PlayerID]types.ChannelID
	closed    bool
	createdAt time.Time
}

func (r *Recruitment) ID() string {
	return r.id
}

// Join seats p and creates their private channel. The recruitment stays locked while create runs,
// so seats are numbered in join order and capacity can never be exceeded.
func (r *Recruitment) Join(p types.Player, create ChannelFunc) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return r.snapshotLocked(), ErrClosed
	}
	if _, joined := r.channels[p.ID]; joined {
		return r.snapshotLocked(), ErrAlreadyJoined
	}
	if len(r.players) >= r.capacity {
		return r.snapshotLocked(), ErrFull
	}

	seat := len(r.players) + 1
	ch, err := create(seat)
	if err != nil {
		return r.snapshotLocked(), fmt.Errorf("failed to create private channel: %w", err)
	}

	r.players = append(r.players, p)
	r.channels[p.ID] = ch

	logger.Info("Player joined recruitment",
		zap.String("recruitment_id", r.id),
		zap.String("player_id", string(p.ID)),
		zap.Int("seat", seat),
		zap.Int("capacity", r.capacity))

	return r.snapshotLocked(), nil
}

// Close stops accepting players and hands the roster to the caller. Only the owner may close,
// and only once at least MinPlayers joined.
func (r *Recruitment) Close(requester types.PlayerID) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if requester != r.owner.ID {
		return r.snapshotLocked(), ErrNotOwner
	}
	if r.closed {
		return r.snapshotLocked(), ErrClosed
	}
	if len(r.players) < identity.MinPlayers {
		return r.snapshotLocked(), fmt.Errorf("%w: %d joined, need %d", ErrNotEnoughPlayers, len(r.players), identity.MinPlayers)
	}

	r.closed = true
	return r.snapshotLocked(), nil
}

// Reopen undoes Close after a failed start.
func (r *Recruitment) Reopen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = false
}

func (r *Recruitment) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Recruitment) snapshotLocked() Snapshot {
	players := make([]types.Player, len(r.players))
	copy(players, r.players)
	channels := make(map[types.PlayerID]types.ChannelID, len(r.channels))
	for id, ch := range r.channels {
		channels[id] = ch
	}
	var target *types.Player
	if r.target != nil {
		t := *r.target
		target = &t
	}
	return Snapshot{
		ID:       r.id,
		Capacity: r.capacity,
		Owner:    r.owner,
		Target:   target,
		Players:  players,
		Channels: channels,
		Closed:   r.closed,
	}
}

// RecruitmentTTL is how long an unstarted recruitment stays on the board.
const RecruitmentTTL = 24 * time.Hour

// Board holds open recruitments by ID.
type Board struct {
	mu           sync.RWMutex
	recruitments map[string]*Recruitment
	now          func() time.Time
}

func NewBoard() *Board {
	return &Board{recruitments: make(map[string]*Recruitment), now: time.Now}
}

// Open starts a recruitment with capacity seats; target nil means a random target at start.
func (b *Board) Open(owner types.Player, capacity int, target *types.Player) (*Recruitment, error) {
	if capacity < identity.MinPlayers || capacity > identity.MaxPlayers {
		return nil, fmt.Errorf("%w: got %d, want %d-%d", ErrInvalidCapacity, capacity, identity.MinPlayers, identity.MaxPlayers)
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate recruitment ID: %w", err)
	}

	r := &Recruitment{
		id:        id,
		capacity:  capacity,
		owner:     owner,
		channels:  make(map[types.PlayerID]types.ChannelID, capacity),
		createdAt: b.now(),
	}
	if target != nil {
		t := *target
		r.target = &t
	}

	b.mu.Lock()
	evicted := b.evictExpiredLocked(r.createdAt)
	b.recruitments[id] = r
	b.mu.Unlock()

	if evicted > 0 {
		logger.Info("Expired recruitments removed", zap.Int("count", evicted))
	}

	logger.Info("Recruitment opened",
		zap.String("recruitment_id", id),
		zap.String("owner_id", string(owner.ID)),
		zap.Int("capacity", capacity),
		zap.Bool("random_target", target == nil))

	return r, nil
}

// evictExpiredLocked drops recruitments older than RecruitmentTTL. b.mu must be held.
func (b *Board) evictExpiredLocked(now time.Time) int {
	evicted := 0
	for id, r := range b.recruitments {
		if now.Sub(r.createdAt) > RecruitmentTTL {
			delete(b.recruitments, id)
			evicted++
		}
	}
	return evicted
}

func (b *Board) Get(id string) (*Recruitment, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.recruitments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (b *Board) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.recruitments, id)
}

// Len returns the number of open recruitments.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.recruitments)
}
