package localdb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var DBClient *sql.DB

var ErrNotInitialized = errors.New("database not initialized")

// SetupDB opens the sqlite database at dbPath and creates the history tables.
// Session state itself is never stored; only finished games and the relay log are.
func SetupDB(dbPath string) (*sql.DB, error) {
	if DBClient != nil {
		return DBClient, nil
	}

	// WAL + busy timeout: relay goroutines and the HTTP API write/read concurrently.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// sqlite has a single writer.
	db.SetMaxOpenConns(1)

	if err := SetupGameHistoryTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := SetupRelayMessagesTable(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	DBClient = db
	logger.Info("Database initialized", zap.String("path", dbPath))
	return db, nil
}

// GetDB は現在のデータベース接続を返します
func GetDB() *sql.DB {
	return DBClient
}

// Close closes the database and forgets the client.
func Close() error {
	if DBClient == nil {
		return nil
	}
	err := DBClient.Close()
	DBClient = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
