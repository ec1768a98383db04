package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Nemupy/tokumei-jinro/internal/localdb"
	"github.com/Nemupy/tokumei-jinro/internal/relay"
	"github.com/Nemupy/tokumei-jinro/internal/reveal"
)

// SQLiteHistory stores the relay log and finished games in localdb.
type SQLiteHistory struct{}

// Record implements relay.Log.
func (SQLiteHistory) Record(entry relay.Entry) (bool, error) {
	return localdb.AddRelayMessage(localdb.RelayMessageRow{
		MessageID:       entry.MessageID,
		SessionID:       entry.SessionID,
		AuthorID:        string(entry.AuthorID),
		MaskedName:      entry.MaskedName,
		OriginChannelID: string(entry.OriginChannelID),
		Content:         entry.Content,
		AttachmentCount: entry.AttachmentCount,
		CreatedAt:       time.Now().Unix(),
	})
}

// SaveResult implements reveal.History.
func (SQLiteHistory) SaveResult(r reveal.Result) error {
	rows, err := json.Marshal(r.Rows)
	if err != nil {
		return fmt.Errorf("failed to encode result rows: %w", err)
	}

	history := localdb.GameHistory{
		SessionID:    r.SessionID,
		TargetID:     string(r.Target.ID),
		TargetName:   r.Target.DisplayName,
		TotalPlayers: len(r.Rows),
		CorrectCount: r.CorrectCount(),
		ResultsJSON:  string(rows),
		StartedAt:    r.StartedAt,
		RevealedAt:   r.RevealedAt,
	}
	if r.HasReal {
		history.RealPlayerID = string(r.Real.ID)
		history.RealMaskedName = r.RealMaskedName
	}

	return localdb.SaveGameHistory(history)
}
