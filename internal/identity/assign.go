package identity

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/Nemupy/tokumei-jinro/internal/types"
)

const (
	MinPlayers = 3
	MaxPlayers = 20
)

var (
	ErrPlayerCount   = errors.New("player count out of range")
	ErrDuplicateID   = errors.New("duplicate player id")
	errInvalidRandom = errors.New("invalid random range")
)

// Assignment maps every enrolled player to the masked identity they wear.
type Assignment map[types.PlayerID]types.MaskedIdentity

// RealTarget returns the player holding the real target identity, if any.
func (a Assignment) RealTarget() (types.PlayerID, bool) {
	for id, masked := range a {
		if masked.IsRealTarget {
			return id, true
		}
	}
	return "", false
}

var randomInt = secureRandomInt

// PickTarget returns explicit when set, otherwise a uniformly random enrolled player.
func PickTarget(players []types.Player, explicit *types.Player) (types.Player, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if len(players) == 0 {
		return types.Player{}, ErrPlayerCount
	}

	idx, err := randomInt(len(players))
	if err != nil {
		return types.Player{}, fmt.Errorf("failed to pick random target: %w", err)
	}
	return players[idx], nil
}

// Assign gives each player target's name suffixed with a distinct shuffled ordinal and target's avatar.
// Only the player whose ID equals target.ID gets IsRealTarget; a target outside players yields none.
func Assign(players []types.Player, target types.Player) (Assignment, error) {
	if len(players) < MinPlayers || len(players) > MaxPlayers {
		return nil, fmt.Errorf("%w: got %d, want %d-%d", ErrPlayerCount, len(players), MinPlayers, MaxPlayers)
	}

	ordinals, err := shuffledOrdinals(len(players))
	if err != nil {
		return nil, err
	}

	assignment := make(Assignment, len(players))
	for i, player := range players {
		if _, dup := assignment[player.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, player.ID)
		}
		assignment[player.ID] = types.MaskedIdentity{
			DisplayName:  MaskedName(target.DisplayName, ordinals[i]),
			AvatarURL:    target.AvatarURL,
			IsRealTarget: player.ID == target.ID,
		}
	}

	return assignment, nil
}

// shuffledOrdinals returns a Fisher-Yates permutation of 1..n.
func shuffledOrdinals(n int) ([]int, error) {
	ordinals := make([]int, n)
	for i := range ordinals {
		ordinals[i] = i + 1
	}
	for i := n - 1; i > 0; i-- {
		j, err := randomInt(i + 1)
		if err != nil {
			return nil, fmt.Errorf("failed to shuffle ordinals: %w", err)
		}
		ordinals[i], ordinals[j] = ordinals[j], ordinals[i]
	}
	return ordinals, nil
}

func secureRandomInt(max int) (int, error) {
	if max <= 0 {
		return 0, errInvalidRandom
	}

	n, err := crand.Int(crand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
