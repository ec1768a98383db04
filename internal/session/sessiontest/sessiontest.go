// Package sessiontest builds deterministic sessions for tests of the engines.
package sessiontest

import (
	"fmt"
	"testing"

	"github.com/Nemupy/tokumei-jinro/internal/identity"
	"github.com/Nemupy/tokumei-jinro/internal/session"
	"github.com/Nemupy/tokumei-jinro/internal/types"
)

const ObserverChannel types.ChannelID = "observer"

// Players returns n players named "A", "B", ... with IDs "p-a", "p-b", ...
func Players(n int) []types.Player {
	players := make([]types.Player, n)
	for i := 0; i < n; i++ {
		letter := string(rune('A' + i))
		players[i] = types.Player{
			ID:          types.PlayerID(fmt.Sprintf("p-%c", 'a'+i)),
			DisplayName: letter,
			AvatarURL:   fmt.Sprintf("https://cdn.example.com/%s.png", letter),
		}
	}
	return players
}

// ChannelOf is the private channel Start assigns to a player.
func ChannelOf(id types.PlayerID) types.ChannelID {
	return types.ChannelID("ch-" + string(id))
}

// Params builds start parameters for players with target; the ordinal i+1 goes to players[i].
func Params(players []types.Player, target types.Player) session.StartParams {
	assignment := make(identity.Assignment, len(players))
	channels := make(map[types.PlayerID]types.ChannelID, len(players))
	for i, p := range players {
		assignment[p.ID] = types.MaskedIdentity{
			DisplayName:  identity.MaskedName(target.DisplayName, i+1),
			AvatarURL:    target.AvatarURL,
			IsRealTarget: p.ID == target.ID,
		}
		channels[p.ID] = ChannelOf(p.ID)
	}
	return session.StartParams{
		Players:    players,
		Target:     target,
		Assignment: assignment,
		Channels:   channels,
		Observer:   ObserverChannel,
	}
}

// Start starts a session on a fresh store with n players and players[targetIndex] as the target.
func Start(t testing.TB, n, targetIndex int) (*session.Store, *session.Session) {
	t.Helper()
	players := Players(n)
	store := session.NewStore()
	s, err := store.Start(Params(players, players[targetIndex]))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return store, s
}
