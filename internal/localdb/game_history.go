package localdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	"go.uber.org/zap"
)

// GameHistory is one finished game.
type GameHistory struct {
	ID             int       `json:"id"`
	SessionID      string    `json:"session_id"`
	TargetID       string    `json:"target_id"`
	TargetName     string    `json:"target_name"`
	RealPlayerID   string    `json:"real_player_id"`
	RealMaskedName string    `json:"real_masked_name"`
	TotalPlayers   int       `json:"total_players"`
	CorrectCount   int       `json:"correct_count"`
	ResultsJSON    string    `json:"results_json"`
	StartedAt      time.Time `json:"started_at"`
	RevealedAt     time.Time `json:"revealed_at"`
}

// SetupGameHistoryTables creates the game_history table.
func SetupGameHistoryTables(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS game_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL UNIQUE,
			target_id TEXT NOT NULL,
			target_name TEXT NOT NULL,
			real_player_id TEXT NOT NULL DEFAULT '',
			real_masked_name TEXT NOT NULL DEFAULT '',
			total_players INTEGER NOT NULL,
			correct_count INTEGER NOT NULL,
			results_json TEXT,
			started_at TIMESTAMP,
			revealed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		logger.Error("Failed to create game_history table", zap.Error(err))
		return fmt.Errorf("failed to create game_history table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_game_history_revealed_at ON game_history(revealed_at DESC)`); err != nil {
		logger.Warn("Failed to create game_history index", zap.Error(err))
	}

	return nil
}

// SaveGameHistory saves one finished game. A second save for the same session is ignored.
func SaveGameHistory(history GameHistory) error {
	db := GetDB()
	if db == nil {
		return ErrNotInitialized
	}

	if history.RevealedAt.IsZero() {
		history.RevealedAt = time.Now()
	}

	_, err := db.Exec(`
		INSERT OR IGNORE INTO game_history (
			session_id, target_id, target_name, real_player_id, real_masked_name,
			total_players, correct_count, results_json, started_at, revealed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		history.SessionID,
		history.TargetID,
		history.TargetName,
		history.RealPlayerID,
		history.RealMaskedName,
		history.TotalPlayers,
		history.CorrectCount,
		history.ResultsJSON,
		history.StartedAt,
		history.RevealedAt,
	)
	if err != nil {
		logger.Error("Failed to save game history", zap.Error(err), zap.String("session_id", history.SessionID))
		return fmt.Errorf("failed to save game history: %w", err)
	}

	return nil
}

// GetGameHistory returns finished games, newest first.
func GetGameHistory(limit int) ([]GameHistory, error) {
	db := GetDB()
	if db == nil {
		return nil, ErrNotInitialized
	}

	if limit <= 0 {
		limit = 20
	}

	rows, err := db.Query(`
		SELECT id, session_id, target_id, target_name, real_player_id, real_masked_name,
			total_players, correct_count, COALESCE(results_json, ''), started_at, revealed_at
		FROM game_history
		ORDER BY revealed_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		logger.Error("Failed to query game history", zap.Error(err))
		return nil, fmt.Errorf("failed to query game history: %w", err)
	}
	defer rows.Close()

	histories := []GameHistory{}
	for rows.Next() {
		var h GameHistory
		if err := rows.Scan(
			&h.ID,
			&h.SessionID,
			&h.TargetID,
			&h.TargetName,
			&h.RealPlayerID,
			&h.RealMaskedName,
			&h.TotalPlayers,
			&h.CorrectCount,
			&h.ResultsJSON,
			&h.StartedAt,
			&h.RevealedAt,
		); err != nil {
			logger.Error("Failed to scan game history", zap.Error(err))
			continue
		}
		histories = append(histories, h)
	}

	if err := rows.Err(); err != nil {
		logger.Error("Error iterating game history", zap.Error(err))
		return nil, err
	}

	return histories, nil
}
