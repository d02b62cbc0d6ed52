package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

// schemaVersion is the declared schema version. Bumping it causes Initialize
// to drop and recreate the tables on the next run.
const schemaVersion = 1

// timeFormat is fixed-width (no trimmed fractional digits) so that lexical
// ordering of the TEXT column matches chronological ordering.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	log *zerolog.Logger
}

// New opens the SQLite database file. The schema is not touched until
// Initialize is called.
func New(dbPath string, logger *zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", errors.Join(chat.ErrStorageUnavailable, err))
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", errors.Join(chat.ErrStorageUnavailable, err))
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLiteStore{db: db, log: logger}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Initialize ensures the schema exists at the declared version. A stored
// version older than the declared one drops and recreates the tables; the
// local cache is rebuilt from the server afterwards.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_version: %w", errors.Join(chat.ErrStorageUnavailable, err))
	}

	var stored sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read schema version: %w", errors.Join(chat.ErrStorageUnavailable, err))
	}

	if stored.Valid && stored.Int64 == schemaVersion {
		return s.createTables(ctx)
	}

	if stored.Valid && stored.Int64 < schemaVersion {
		// Lossy by design: unsynced rows are dropped with everything else.
		s.log.Warn().
			Int64("stored_version", stored.Int64).
			Int("declared_version", schemaVersion).
			Msg("schema outdated, dropping and recreating tables")
		if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS messages`); err != nil {
			return fmt.Errorf("drop messages: %w", errors.Join(chat.ErrStorageUnavailable, err))
		}
		if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS chats`); err != nil {
			return fmt.Errorf("drop chats: %w", errors.Join(chat.ErrStorageUnavailable, err))
		}
	}

	if err := s.createTables(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
		return fmt.Errorf("clear schema version: %w", errors.Join(chat.ErrStorageUnavailable, err))
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
		return fmt.Errorf("write schema version: %w", errors.Join(chat.ErrStorageUnavailable, err))
	}

	return nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id        TEXT PRIMARY KEY,
			chat_id   TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			body      TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			synced    INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return fmt.Errorf("create messages: %w", errors.Join(chat.ErrStorageUnavailable, err))
	}

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS chats (
			id             TEXT PRIMARY KEY,
			title          TEXT NOT NULL,
			last_message   TEXT NOT NULL,
			last_timestamp TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create chats: %w", errors.Join(chat.ErrStorageUnavailable, err))
	}

	return nil
}

// ==== MessageStore implementation ====

// Load returns all messages for the conversation, most recent first, ties
// broken by id ascending for determinism.
func (s *SQLiteStore) Load(ctx context.Context, chatID string) ([]chat.Message, error) {
	query := `
		SELECT id, chat_id, sender_id, body, timestamp, synced
		FROM messages
		WHERE chat_id = ?
		ORDER BY timestamp DESC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// Upsert inserts or replaces the row keyed by msg.ID. A row that is already
// synced never goes back to unsynced, whatever the caller passes.
func (s *SQLiteStore) Upsert(ctx context.Context, msg chat.Message, synced bool) error {
	query := `
		INSERT INTO messages (id, chat_id, sender_id, body, timestamp, synced)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			chat_id   = excluded.chat_id,
			sender_id = excluded.sender_id,
			body      = excluded.body,
			timestamp = excluded.timestamp,
			synced    = MAX(messages.synced, excluded.synced)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.ChatID, msg.SenderID, msg.Body, msg.Timestamp.UTC().Format(timeFormat), boolToInt(synced))
	if err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	return nil
}

// Replace removes the row keyed by oldID and upserts msg in one transaction.
func (s *SQLiteStore) Replace(ctx context.Context, oldID string, msg chat.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, oldID); err != nil {
		return fmt.Errorf("delete provisional message: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO messages (id, chat_id, sender_id, body, timestamp, synced)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query,
		msg.ID, msg.ChatID, msg.SenderID, msg.Body, msg.Timestamp.UTC().Format(timeFormat), boolToInt(msg.Synced)); err != nil {
		return fmt.Errorf("insert canonical message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// MarkSynced sets synced=true for the given id only.
func (s *SQLiteStore) MarkSynced(ctx context.Context, id string) error {
	query := `UPDATE messages SET synced = 1 WHERE id = ? AND synced = 0`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

// ListUnsynced returns undelivered messages oldest first, which is the order
// they must reach the server in.
func (s *SQLiteStore) ListUnsynced(ctx context.Context, chatID string) ([]chat.Message, error) {
	query := `
		SELECT id, chat_id, sender_id, body, timestamp, synced
		FROM messages
		WHERE chat_id = ? AND synced = 0
		ORDER BY timestamp ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("query unsynced messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// Truncate deletes all rows for the conversation.
func (s *SQLiteStore) Truncate(ctx context.Context, chatID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("truncate messages: %w", err)
	}
	return nil
}

// ==== ChatCacheStore implementation ====

// SaveChats replaces the cached projection for the given chats.
func (s *SQLiteStore) SaveChats(ctx context.Context, chats []chat.Chat) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT OR REPLACE INTO chats (id, title, last_message, last_timestamp)
		VALUES (?, ?, ?, ?)
	`
	for _, c := range chats {
		if _, err := tx.ExecContext(ctx, query,
			c.ID, c.Title, c.LastMessage, c.LastTimestamp.UTC().Format(timeFormat)); err != nil {
			return fmt.Errorf("upsert chat: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListChats returns cached conversations, most recent activity first.
func (s *SQLiteStore) ListChats(ctx context.Context) ([]chat.Chat, error) {
	query := `
		SELECT id, title, last_message, last_timestamp
		FROM chats
		ORDER BY last_timestamp DESC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var chats []chat.Chat
	for rows.Next() {
		var c chat.Chat
		var ts string
		if err := rows.Scan(&c.ID, &c.Title, &c.LastMessage, &ts); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		parsed, err := time.Parse(timeFormat, ts)
		if err != nil {
			return nil, fmt.Errorf("parse chat timestamp: %w", err)
		}
		c.LastTimestamp = parsed
		chats = append(chats, c)
	}

	return chats, rows.Err()
}

func scanMessages(rows *sql.Rows) ([]chat.Message, error) {
	var messages []chat.Message
	for rows.Next() {
		var msg chat.Message
		var ts string
		var synced int
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Body, &ts, &synced); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		parsed, err := time.Parse(timeFormat, ts)
		if err != nil {
			return nil, fmt.Errorf("parse message timestamp: %w", err)
		}
		msg.Timestamp = parsed
		msg.Synced = synced != 0
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
