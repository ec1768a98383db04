package game

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/Nemupy/tokumei-jinro/internal/delivery/deliverytest"
	"github.com/Nemupy/tokumei-jinro/internal/enrollment"
	"github.com/Nemupy/tokumei-jinro/internal/localdb"
	"github.com/Nemupy/tokumei-jinro/internal/relay"
	"github.com/Nemupy/tokumei-jinro/internal/reveal"
	"github.com/Nemupy/tokumei-jinro/internal/session"
	"github.com/Nemupy/tokumei-jinro/internal/types"
	"github.com/Nemupy/tokumei-jinro/internal/voting"
)

const observer types.ChannelID = "log"

type fakePlatform struct {
	*deliverytest.Recorder

	mu         sync.Mutex
	names      map[types.PlayerID]string
	deleted    []types.ChannelID
	failDelete map[types.ChannelID]bool
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		Recorder:   deliverytest.NewRecorder(),
		names:      make(map[types.PlayerID]string),
		failDelete: make(map[types.ChannelID]bool),
	}
}

func (f *fakePlatform) CreatePrivateChannel(_ context.Context, member types.Player, name string) (types.ChannelID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names[member.ID] = name
	return types.ChannelID("ch-" + string(member.ID)), nil
}

func (f *fakePlatform) DeleteChannel(_ context.Context, ch types.ChannelID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete[ch] {
		return errors.New("unknown channel")
	}
	f.deleted = append(f.deleted, ch)
	return nil
}

var (
	alice = types.Player{ID: "a", DisplayName: "A", AvatarURL: "https://cdn.example.com/a.png"}
	bob   = types.Player{ID: "b", DisplayName: "B", AvatarURL: "https://cdn.example.com/b.png"}
	carol = types.Player{ID: "c", DisplayName: "C", AvatarURL: "https://cdn.example.com/c.png"}
	owner = types.Player{ID: "owner", DisplayName: "Owner"}
)

func startGame(t *testing.T, m *Manager, target *types.Player, players ...types.Player) *session.Session {
	t.Helper()
	ctx := context.Background()

	snap, err := m.Open(owner, len(players), target)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for _, p := range players {
		if _, err := m.Join(ctx, snap.ID, p); err != nil {
			t.Fatalf("Join(%s) failed: %v", p.ID, err)
		}
	}
	s, err := m.Start(ctx, snap.ID, owner.ID)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return s
}

func TestManager_EndToEnd(t *testing.T) {
	platform := newFakePlatform()
	m := NewManager(platform, Options{Observer: observer})
	ctx := context.Background()

	s := startGame(t, m, &bob, alice, bob, carol)

	if platform.names["a"] != "匿名室-1" || platform.names["c"] != "匿名室-3" {
		t.Fatalf("unexpected channel names: %v", platform.names)
	}

	// masked names are "B ①".."B ③" in some order and only B holds the real identity
	names := make([]string, 0, 3)
	for _, p := range []types.Player{alice, bob, carol} {
		masked, ok := s.Identity(p.ID)
		if !ok {
			t.Fatalf("%s has no identity", p.ID)
		}
		if masked.IsRealTarget != (p.ID == bob.ID) {
			t.Fatalf("unexpected real flag for %s", p.ID)
		}
		names = append(names, masked.DisplayName)
	}
	sort.Strings(names)
	if strings.Join(names, ",") != "B ①,B ②,B ③" {
		t.Fatalf("unexpected masked names: %v", names)
	}

	// every player got a role card
	cards := platform.Announced()
	if len(cards) != 3 {
		t.Fatalf("unexpected role cards: %+v", cards)
	}
	for _, card := range cards {
		if !strings.Contains(card.Announcement.Description, "ターゲット: **B**") {
			t.Fatalf("role card should name the target: %q", card.Announcement.Description)
		}
	}
	bobCard := cards[1]
	if bobCard.Channel != "ch-b" || !strings.Contains(bobCard.Announcement.Description, "【本物】") {
		t.Fatalf("the target should learn they are real: %+v", bobCard)
	}

	// player endpoints are created at start; only the observer is resolved on demand
	for _, ch := range []types.ChannelID{"ch-a", "ch-b", "ch-c"} {
		if platform.ResolveCount(ch) != 1 {
			t.Fatalf("endpoint for %s should be prepared at start", ch)
		}
	}
	if platform.ResolveCount(observer) != 0 {
		t.Fatalf("observer endpoint should be lazy")
	}

	result := m.HandleMessage(ctx, relay.IncomingMessage{
		ID:        "m-1",
		Author:    alice,
		ChannelID: "ch-a",
		Content:   "hello",
	})
	if result.Outcome != relay.Relayed {
		t.Fatalf("unexpected outcome: %s", result.Outcome)
	}
	aliceMasked, _ := s.Identity(alice.ID)
	sent := platform.Sent()
	if len(sent) != 3 {
		t.Fatalf("unexpected relays: %+v", sent)
	}
	for _, msg := range sent {
		if msg.Channel == "ch-a" {
			t.Fatalf("relayed back to origin")
		}
		if msg.Message.Username != aliceMasked.DisplayName {
			t.Fatalf("relayed as %q, want %q", msg.Message.Username, aliceMasked.DisplayName)
		}
	}
	if platform.ResolveCount(observer) != 1 {
		t.Fatalf("observer endpoint should be created on first relay")
	}

	if _, err := m.CastVote(ctx, s.ID(), alice.ID, bob.ID); err != nil {
		t.Fatalf("vote A failed: %v", err)
	}
	if _, err := m.CastVote(ctx, s.ID(), bob.ID, carol.ID); err != nil {
		t.Fatalf("vote B failed: %v", err)
	}
	if _, err := m.CastVote(ctx, s.ID(), alice.ID, carol.ID); !errors.Is(err, voting.ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}
	progress, err := m.CastVote(ctx, s.ID(), carol.ID, bob.ID)
	if err != nil {
		t.Fatalf("vote C failed: %v", err)
	}
	if progress.Cast != 3 || progress.Total != 3 {
		t.Fatalf("unexpected progress: %+v", progress)
	}
	if !s.Revealed() {
		t.Fatalf("result should be revealed")
	}

	var results []deliverytest.Announced
	for _, a := range platform.Announced() {
		if a.Announcement.Title == reveal.Title {
			results = append(results, a)
		}
	}
	if len(results) != 4 {
		t.Fatalf("result should reach 3 players and the observer once each: %d", len(results))
	}
	bobMasked, _ := s.Identity(bob.ID)
	carolMasked, _ := s.Identity(carol.ID)
	desc := results[0].Announcement.Description
	for _, line := range []string{
		"**A** [" + aliceMasked.DisplayName + "] ➔ " + bobMasked.DisplayName + " ✅",
		"**B** [" + bobMasked.DisplayName + "] ➔ " + carolMasked.DisplayName + " ❌",
		"**C** [" + carolMasked.DisplayName + "] ➔ " + bobMasked.DisplayName + " ✅",
		"本物の正体は... B [" + bobMasked.DisplayName + "]",
	} {
		if !strings.Contains(desc, line) {
			t.Fatalf("result is missing %q:\n%s", line, desc)
		}
	}

	// nothing is relayed after the reveal
	before := len(platform.Sent())
	if got := m.HandleMessage(ctx, relay.IncomingMessage{Author: carol, ChannelID: "ch-c", Content: "gg"}).Outcome; got != relay.IgnoredRevealed {
		t.Fatalf("unexpected outcome after reveal: %s", got)
	}
	if len(platform.Sent()) != before {
		t.Fatalf("message relayed after reveal")
	}

	deleted, err := m.Terminate(ctx)
	if err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("unexpected deleted count: %d", deleted)
	}
	if m.Current() != nil {
		t.Fatalf("session should be cleared")
	}
}

func TestManager_StartRequiresOwner(t *testing.T) {
	m := NewManager(newFakePlatform(), Options{})
	ctx := context.Background()

	snap, _ := m.Open(owner, 3, nil)
	for _, p := range []types.Player{alice, bob, carol} {
		m.Join(ctx, snap.ID, p)
	}

	if _, err := m.Start(ctx, snap.ID, alice.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if m.Current() != nil {
		t.Fatalf("session must not start for non-owner")
	}

	s, err := m.Start(ctx, snap.ID, owner.ID)
	if err != nil {
		t.Fatalf("owner Start failed: %v", err)
	}
	if _, ok := s.RealTarget(); !ok {
		t.Fatalf("a random target is always an enrolled player")
	}
	if _, err := m.Start(ctx, snap.ID, owner.ID); !errors.Is(err, enrollment.ErrNotFound) {
		t.Fatalf("started recruitment should be gone, got %v", err)
	}
}

func TestManager_StartReplacesPreviousSession(t *testing.T) {
	m := NewManager(newFakePlatform(), Options{})
	first := startGame(t, m, nil, alice, bob, carol)
	second := startGame(t, m, nil, alice, bob, carol)

	if first.ID() == second.ID() || m.Current() != second {
		t.Fatalf("second start should replace the first session")
	}
	if second.Progress().Cast != 0 || second.Revealed() {
		t.Fatalf("new session should start fresh")
	}
}

func TestManager_TargetOutsidePlayers(t *testing.T) {
	platform := newFakePlatform()
	m := NewManager(platform, Options{Observer: observer})
	ctx := context.Background()
	outsider := types.Player{ID: "z", DisplayName: "Z"}

	s := startGame(t, m, &outsider, alice, bob, carol)
	if _, ok := s.RealTarget(); ok {
		t.Fatalf("no participant should hold the real identity")
	}

	m.CastVote(ctx, s.ID(), alice.ID, bob.ID)
	m.CastVote(ctx, s.ID(), bob.ID, carol.ID)
	m.CastVote(ctx, s.ID(), carol.ID, alice.ID)

	var results []deliverytest.Announced
	for _, a := range platform.Announced() {
		if a.Announcement.Title == reveal.Title {
			results = append(results, a)
		}
	}
	if len(results) != 4 {
		t.Fatalf("reveal should reach 3 players and the observer, got %d", len(results))
	}
	for _, a := range results {
		if strings.Contains(a.Announcement.Description, "✅") {
			t.Fatalf("nobody can be correct: %s", a.Announcement.Description)
		}
		if !strings.Contains(a.Announcement.Description, "Z [不明]") {
			t.Fatalf("summary should name the designated target: %s", a.Announcement.Description)
		}
	}
}

func TestManager_CastVoteRejectsBallotFromReplacedSession(t *testing.T) {
	m := NewManager(newFakePlatform(), Options{})
	ctx := context.Background()
	first := startGame(t, m, nil, alice, bob, carol)
	second := startGame(t, m, nil, alice, bob, carol)

	if _, err := m.CastVote(ctx, first.ID(), alice.ID, bob.ID); !errors.Is(err, ErrStaleSession) {
		t.Fatalf("expected ErrStaleSession, got %v", err)
	}
	if got := second.Progress().Cast; got != 0 {
		t.Fatalf("stale ballot counted in the new session: %d", got)
	}
	if _, err := m.CastVote(ctx, second.ID(), alice.ID, bob.ID); err != nil {
		t.Fatalf("vote on the current ballot failed: %v", err)
	}
}

func TestManager_NoSession(t *testing.T) {
	m := NewManager(newFakePlatform(), Options{})
	ctx := context.Background()

	if _, err := m.CastVote(ctx, "gone", alice.ID, bob.ID); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if _, _, err := m.OpenVoting(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if _, err := m.Terminate(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if got := m.HandleMessage(ctx, relay.IncomingMessage{Author: alice, ChannelID: "ch-a", Content: "hi"}).Outcome; got != relay.IgnoredNoSession {
		t.Fatalf("unexpected outcome: %s", got)
	}
}

func TestManager_TerminateCountsDeletedChannels(t *testing.T) {
	platform := newFakePlatform()
	m := NewManager(platform, Options{Observer: observer})
	startGame(t, m, nil, alice, bob, carol)
	platform.failDelete["ch-b"] = true

	deleted, err := m.Terminate(context.Background())
	if err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("unexpected deleted count: %d", deleted)
	}
	for _, ch := range platform.deleted {
		if ch == observer {
			t.Fatalf("observer channel must never be deleted")
		}
	}
}

func TestManager_OpenVotingBallot(t *testing.T) {
	m := NewManager(newFakePlatform(), Options{})
	s := startGame(t, m, &alice, alice, bob, carol)

	got, choices, err := m.OpenVoting()
	if err != nil || got != s {
		t.Fatalf("OpenVoting failed: %v", err)
	}
	if len(choices) != 3 || choices[0].Label != "A ①" || choices[2].Label != "A ③" {
		t.Fatalf("unexpected ballot: %+v", choices)
	}
}

func TestSQLiteHistory(t *testing.T) {
	if localdb.DBClient != nil {
		_ = localdb.Close()
	}
	if _, err := localdb.SetupDB(filepath.Join(t.TempDir(), "game.db")); err != nil {
		t.Fatalf("SetupDB failed: %v", err)
	}
	t.Cleanup(func() { _ = localdb.Close() })

	history := SQLiteHistory{}
	m := NewManager(newFakePlatform(), Options{Observer: observer, RelayLog: history, History: history})
	ctx := context.Background()
	s := startGame(t, m, &carol, alice, bob, carol)

	msg := relay.IncomingMessage{ID: "m-1", Author: bob, ChannelID: "ch-b", Content: "who?"}
	if got := m.HandleMessage(ctx, msg).Outcome; got != relay.Relayed {
		t.Fatalf("unexpected outcome: %s", got)
	}
	if got := m.HandleMessage(ctx, msg).Outcome; got != relay.IgnoredDuplicate {
		t.Fatalf("redelivered message should be ignored: %s", got)
	}

	rows, err := localdb.GetRelayMessages(s.ID(), 0)
	if err != nil {
		t.Fatalf("GetRelayMessages failed: %v", err)
	}
	bobMasked, _ := s.Identity(bob.ID)
	if len(rows) != 1 || rows[0].MaskedName != bobMasked.DisplayName || rows[0].AuthorID != "b" {
		t.Fatalf("unexpected relay log: %+v", rows)
	}

	m.CastVote(ctx, s.ID(), alice.ID, carol.ID)
	m.CastVote(ctx, s.ID(), bob.ID, carol.ID)
	m.CastVote(ctx, s.ID(), carol.ID, alice.ID)

	games, err := localdb.GetGameHistory(10)
	if err != nil {
		t.Fatalf("GetGameHistory failed: %v", err)
	}
	if len(games) != 1 {
		t.Fatalf("unexpected history: %+v", games)
	}
	g := games[0]
	if g.SessionID != s.ID() || g.RealPlayerID != "c" || g.CorrectCount != 2 || g.TotalPlayers != 3 {
		t.Fatalf("unexpected game record: %+v", g)
	}
	if !strings.Contains(g.ResultsJSON, `"masked_name"`) {
		t.Fatalf("rows should be stored as JSON: %s", g.ResultsJSON)
	}
}
