package localdb

import (
	"database/sql"
	"time"

	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	"go.uber.org/zap"
)

type RelayMessageRow struct {
	ID              int64  `json:"id"`
	MessageID       string `json:"message_id"`
	SessionID       string `json:"session_id"`
	AuthorID        string `json:"author_id"`
	MaskedName      string `json:"masked_name"`
	OriginChannelID string `json:"origin_channel_id"`
	Content         string `json:"content"`
	AttachmentCount int    `json:"attachment_count"`
	CreatedAt       int64  `json:"created_at"`
}

// SetupRelayMessagesTable creates the relay_messages table.
func SetupRelayMessagesTable(db *sql.DB) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS relay_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT,
		session_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		masked_name TEXT NOT NULL,
		origin_channel_id TEXT NOT NULL,
		content TEXT NOT NULL,
		attachment_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	)`

	if _, err := db.Exec(createTableSQL); err != nil {
		logger.Error("Failed to create relay_messages table", zap.Error(err))
		return err
	}

	if _, err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_relay_messages_message_id ON relay_messages(message_id) WHERE message_id IS NOT NULL AND message_id != ''`); err != nil {
		logger.Warn("Failed to create relay_messages message_id index", zap.Error(err))
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_relay_messages_session ON relay_messages(session_id, created_at)`); err != nil {
		logger.Warn("Failed to create relay_messages session index", zap.Error(err))
	}

	return nil
}

// AddRelayMessage inserts a relayed message.
// Returns true if inserted, false if ignored due to duplicate message_id.
func AddRelayMessage(message RelayMessageRow) (bool, error) {
	db := GetDB()
	if db == nil {
		logger.Error("Database not initialized")
		return false, ErrNotInitialized
	}

	if message.CreatedAt == 0 {
		message.CreatedAt = time.Now().Unix()
	}

	var messageID interface{}
	if message.MessageID != "" {
		messageID = message.MessageID
	}

	result, err := db.Exec(`
	INSERT OR IGNORE INTO relay_messages (message_id, session_id, author_id, masked_name, origin_channel_id, content, attachment_count, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		messageID,
		message.SessionID,
		message.AuthorID,
		message.MaskedName,
		message.OriginChannelID,
		message.Content,
		message.AttachmentCount,
		message.CreatedAt,
	)
	if err != nil {
		logger.Error("Failed to insert relay message", zap.Error(err))
		return false, err
	}

	if rowsAffected, err := result.RowsAffected(); err == nil && rowsAffected == 0 {
		return false, nil
	}

	return true, nil
}

// GetRelayMessages returns the relay log of a session in chronological order.
func GetRelayMessages(sessionID string, limit int) ([]RelayMessageRow, error) {
	db := GetDB()
	if db == nil {
		logger.Error("Database not initialized")
		return nil, ErrNotInitialized
	}

	query := `
	SELECT id, COALESCE(message_id, ''), session_id, author_id, masked_name, origin_channel_id, content, attachment_count, created_at
	FROM relay_messages
	WHERE session_id = ?
	ORDER BY created_at ASC, id ASC
	`

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = db.Query(query+" LIMIT ?", sessionID, limit)
	} else {
		rows, err = db.Query(query, sessionID)
	}
	if err != nil {
		logger.Error("Failed to query relay messages", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	messages := []RelayMessageRow{}
	for rows.Next() {
		var row RelayMessageRow
		if err := rows.Scan(
			&row.ID,
			&row.MessageID,
			&row.SessionID,
			&row.AuthorID,
			&row.MaskedName,
			&row.OriginChannelID,
			&row.Content,
			&row.AttachmentCount,
			&row.CreatedAt,
		); err != nil {
			logger.Error("Failed to scan relay message", zap.Error(err))
			continue
		}
		messages = append(messages, row)
	}

	if err := rows.Err(); err != nil {
		logger.Error("Error iterating relay messages", zap.Error(err))
		return nil, err
	}

	return messages, nil
}

// CleanupRelayMessagesBefore deletes relay log rows older than the cutoff timestamp (unix seconds).
func CleanupRelayMessagesBefore(cutoffUnix int64) error {
	db := GetDB()
	if db == nil {
		logger.Error("Database not initialized")
		return ErrNotInitialized
	}

	result, err := db.Exec(`DELETE FROM relay_messages WHERE created_at < ?`, cutoffUnix)
	if err != nil {
		logger.Error("Failed to cleanup relay messages", zap.Error(err))
		return err
	}

	if rowsAffected, err := result.RowsAffected(); err == nil && rowsAffected > 0 {
		logger.Debug("Cleaned up old relay messages", zap.Int64("deleted", rowsAffected))
	}

	return nil
}
