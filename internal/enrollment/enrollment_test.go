package enrollment

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Nemupy/tokumei-jinro/internal/types"
)

func player(n int) types.Player {
	return types.Player{ID: types.PlayerID(fmt.Sprintf("u-%d", n)), DisplayName: fmt.Sprintf("User %d", n)}
}

func seatChannel(seat int) (types.ChannelID, error) {
	return types.ChannelID(fmt.Sprintf("匿名室-%d", seat)), nil
}

func TestBoard_OpenValidatesCapacity(t *testing.T) {
	board := NewBoard()
	for _, capacity := range []int{0, 2, 21} {
		if _, err := board.Open(player(0), capacity, nil); !errors.Is(err, ErrInvalidCapacity) {
			t.Fatalf("capacity %d: expected ErrInvalidCapacity, got %v", capacity, err)
		}
	}
	for _, capacity := range []int{3, 20} {
		if _, err := board.Open(player(0), capacity, nil); err != nil {
			t.Fatalf("capacity %d: unexpected error %v", capacity, err)
		}
	}
	if board.Len() != 2 {
		t.Fatalf("unexpected open recruitments: %d", board.Len())
	}
}

func TestBoard_GetAndRemove(t *testing.T) {
	board := NewBoard()
	r, err := board.Open(player(0), 3, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	got, err := board.Get(r.ID())
	if err != nil || got != r {
		t.Fatalf("Get failed: %v", err)
	}
	board.Remove(r.ID())
	if _, err := board.Get(r.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBoard_OpenEvictsExpiredRecruitments(t *testing.T) {
	board := NewBoard()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	board.now = func() time.Time { return now }

	stale, _ := board.Open(player(0), 3, nil)
	now = now.Add(RecruitmentTTL / 2)
	recent, _ := board.Open(player(1), 3, nil)

	now = now.Add(RecruitmentTTL/2 + time.Minute)
	fresh, err := board.Open(player(2), 3, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if _, err := board.Get(stale.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired recruitment should be evicted, got %v", err)
	}
	for _, r := range []*Recruitment{recent, fresh} {
		if _, err := board.Get(r.ID()); err != nil {
			t.Fatalf("recruitment %s should remain: %v", r.ID(), err)
		}
	}
	if board.Len() != 2 {
		t.Fatalf("unexpected open recruitments: %d", board.Len())
	}
}

func TestRecruitment_Join(t *testing.T) {
	r, _ := NewBoard().Open(player(0), 3, nil)

	snap, err := r.Join(player(1), seatChannel)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if len(snap.Players) != 1 || snap.Channels["u-1"] != "匿名室-1" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.CanStart() {
		t.Fatalf("one player cannot start")
	}

	if _, err := r.Join(player(1), seatChannel); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}

	r.Join(player(2), seatChannel)
	snap, _ = r.Join(player(3), seatChannel)
	if !snap.CanStart() || !snap.Full() {
		t.Fatalf("three of three should be startable and full: %+v", snap)
	}
	if snap.Channels["u-3"] != "匿名室-3" {
		t.Fatalf("seats should follow join order: %+v", snap.Channels)
	}

	if _, err := r.Join(player(4), seatChannel); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestRecruitment_JoinChannelFailureKeepsSeatFree(t *testing.T) {
	r, _ := NewBoard().Open(player(0), 3, nil)

	_, err := r.Join(player(1), func(int) (types.ChannelID, error) {
		return "", errors.New("missing permission")
	})
	if err == nil {
		t.Fatalf("expected channel creation error")
	}
	snap, err := r.Join(player(1), seatChannel)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if snap.Channels["u-1"] != "匿名室-1" {
		t.Fatalf("failed join must not consume a seat: %+v", snap.Channels)
	}
}

func TestRecruitment_ConcurrentJoinsRespectCapacity(t *testing.T) {
	r, _ := NewBoard().Open(player(0), 5, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	full := 0
	for i := 1; i <= 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := r.Join(player(i), seatChannel); errors.Is(err, ErrFull) {
				mu.Lock()
				full++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	snap := r.Snapshot()
	if len(snap.Players) != 5 || full != 7 {
		t.Fatalf("unexpected result: players=%d rejected=%d", len(snap.Players), full)
	}
	seen := make(map[types.ChannelID]bool)
	for _, ch := range snap.Channels {
		if seen[ch] {
			t.Fatalf("seat reused: %s", ch)
		}
		seen[ch] = true
	}
}

func TestRecruitment_Close(t *testing.T) {
	owner := player(0)
	target := player(2)
	r, _ := NewBoard().Open(owner, 4, &target)
	r.Join(player(1), seatChannel)
	r.Join(player(2), seatChannel)

	if _, err := r.Close(owner.ID); !errors.Is(err, ErrNotEnoughPlayers) {
		t.Fatalf("expected ErrNotEnoughPlayers, got %v", err)
	}

	r.Join(player(3), seatChannel)
	if _, err := r.Close("u-1"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	snap, err := r.Close(owner.ID)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !snap.Closed || snap.Target == nil || snap.Target.ID != "u-2" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if _, err := r.Close(owner.ID); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := r.Join(player(4), seatChannel); !errors.Is(err, ErrClosed) {
		t.Fatalf("closed recruitment must reject joins, got %v", err)
	}

	r.Reopen()
	if _, err := r.Join(player(4), seatChannel); err != nil {
		t.Fatalf("reopened recruitment should accept joins: %v", err)
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	target := player(9)
	r, _ := NewBoard().Open(player(0), 3, &target)
	r.Join(player(1), seatChannel)

	snap := r.Snapshot()
	snap.Players[0].DisplayName = "mutated"
	snap.Channels["u-1"] = "elsewhere"
	snap.Target.DisplayName = "mutated"

	again := r.Snapshot()
	if again.Players[0].DisplayName != "User 1" || again.Channels["u-1"] != "匿名室-1" || again.Target.DisplayName != "User 9" {
		t.Fatalf("snapshot mutation leaked: %+v", again)
	}
}
