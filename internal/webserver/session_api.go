package webserver

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/Nemupy/tokumei-jinro/internal/localdb"
	"github.com/Nemupy/tokumei-jinro/internal/session"
	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	"go.uber.org/zap"
)

// sessionView is what spectators may see of a running game. It never links a masked name to a player.
type sessionView struct {
	Phase       session.Phase     `json:"phase"`
	SessionID   string            `json:"sessionId,omitempty"`
	StartedAt   string            `json:"startedAt,omitempty"`
	TargetName  string            `json:"targetName,omitempty"`
	AvatarURL   string            `json:"avatarUrl,omitempty"`
	MaskedNames []string          `json:"maskedNames,omitempty"`
	Progress    *session.Progress `json:"progress,omitempty"`
}

func newSessionView(s *session.Session) sessionView {
	if s == nil {
		return sessionView{Phase: session.PhaseIdle}
	}

	players := s.Players()
	names := make([]string, 0, len(players))
	for _, p := range players {
		if masked, ok := s.Identity(p.ID); ok {
			names = append(names, masked.DisplayName)
		}
	}
	sort.Strings(names)

	progress := s.Progress()
	return sessionView{
		Phase:       s.Phase(),
		SessionID:   s.ID(),
		StartedAt:   s.StartedAt().Format(time.RFC3339),
		TargetName:  s.Target().DisplayName,
		AvatarURL:   s.Target().AvatarURL,
		MaskedNames: names,
		Progress:    &progress,
	}
}

// handleSession handles GET /api/session
func (h *handlers) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var s *session.Session
	if h.cfg.Sessions != nil {
		s = h.cfg.Sessions.Current()
	}
	writeJSON(w, newSessionView(s))
}

type historyEntry struct {
	SessionID      string          `json:"sessionId"`
	TargetName     string          `json:"targetName"`
	RealMaskedName string          `json:"realMaskedName,omitempty"`
	TotalPlayers   int             `json:"totalPlayers"`
	CorrectCount   int             `json:"correctCount"`
	Results        json.RawMessage `json:"results,omitempty"`
	StartedAt      string          `json:"startedAt"`
	RevealedAt     string          `json:"revealedAt"`
}

// handleHistory handles GET /api/history
func (h *handlers) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := queryInt(r, "limit", 20)
	games, err := localdb.GetGameHistory(limit)
	if err != nil {
		logger.Error("Failed to get game history", zap.Error(err))
		http.Error(w, "Failed to fetch game history", http.StatusInternalServerError)
		return
	}

	entries := make([]historyEntry, 0, len(games))
	for _, g := range games {
		entry := historyEntry{
			SessionID:      g.SessionID,
			TargetName:     g.TargetName,
			RealMaskedName: g.RealMaskedName,
			TotalPlayers:   g.TotalPlayers,
			CorrectCount:   g.CorrectCount,
			StartedAt:      g.StartedAt.Format(time.RFC3339),
			RevealedAt:     g.RevealedAt.Format(time.RFC3339),
		}
		if g.ResultsJSON != "" && json.Valid([]byte(g.ResultsJSON)) {
			entry.Results = json.RawMessage(g.ResultsJSON)
		}
		entries = append(entries, entry)
	}

	writeJSON(w, map[string]interface{}{
		"games": entries,
		"count": len(entries),
	})
}

type relayLogMessage struct {
	ID          int64  `json:"id"`
	MaskedName  string `json:"maskedName"`
	Message     string `json:"message"`
	Attachments int    `json:"attachments"`
	Timestamp   string `json:"timestamp"`
}

// handleRelayLog handles GET /api/relay-log
// The author of each message stays hidden; only the masked name is returned.
func (h *handlers) handleRelayLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" && h.cfg.Sessions != nil {
		if s := h.cfg.Sessions.Current(); s != nil {
			sessionID = s.ID()
		}
	}
	if sessionID == "" {
		writeJSON(w, map[string]interface{}{"messages": []relayLogMessage{}, "count": 0})
		return
	}

	if days := h.cfg.RelayLogRetentionDays; days > 0 {
		cutoff := time.Now().AddDate(0, 0, -days).Unix()
		if err := localdb.CleanupRelayMessagesBefore(cutoff); err != nil {
			logger.Warn("Failed to cleanup relay log", zap.Error(err))
		}
	}

	rows, err := localdb.GetRelayMessages(sessionID, queryInt(r, "limit", 0))
	if err != nil {
		logger.Error("Failed to get relay log", zap.Error(err))
		http.Error(w, "Failed to fetch relay log", http.StatusInternalServerError)
		return
	}

	messages := make([]relayLogMessage, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, relayLogMessage{
			ID:          row.ID,
			MaskedName:  row.MaskedName,
			Message:     row.Content,
			Attachments: row.AttachmentCount,
			Timestamp:   time.Unix(row.CreatedAt, 0).Format(time.RFC3339),
		})
	}

	writeJSON(w, map[string]interface{}{
		"sessionId": sessionID,
		"messages":  messages,
		"count":     len(messages),
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
