package identity

import (
	"fmt"
	"testing"

	"github.com/Nemupy/tokumei-jinro/internal/types"
)

// generatePlayers はN人分のテスト参加者を決定論的に生成する。
func generatePlayers(n int) []types.Player {
	players := make([]types.Player, n)
	for i := 0; i < n; i++ {
		players[i] = types.Player{
			ID:          types.PlayerID(fmt.Sprintf("user-%03d", i+1)),
			DisplayName: fmt.Sprintf("User %03d", i+1),
			AvatarURL:   fmt.Sprintf("https://cdn.example.com/avatars/%03d.png", i+1),
		}
	}
	return players
}

// withRandom swaps the package random source for the duration of the test.
func withRandom(t *testing.T, fn func(max int) (int, error)) {
	t.Helper()
	original := randomInt
	randomInt = fn
	t.Cleanup(func() {
		randomInt = original
	})
}
