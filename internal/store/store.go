package store

import (
	"context"

	"github.com/vovakirdan/wirechat-client/internal/chat"
)

// MessageStore is the durable per-conversation message table. It is the
// single source of truth both for what is rendered and for what still needs
// delivery.
//
// All mutation is upsert-by-identity so the three writers (user send,
// reconciler, push merger) stay commutative and idempotent under arbitrary
// interleaving.
type MessageStore interface {
	// Initialize ensures the schema exists at the current declared version,
	// migrating forward if a stored version is older. Returns an error
	// wrapping chat.ErrStorageUnavailable when the medium cannot be opened.
	Initialize(ctx context.Context) error

	// Load returns all messages for the conversation ordered by timestamp
	// descending, ties broken by id ascending.
	Load(ctx context.Context, chatID string) ([]chat.Message, error)

	// Upsert inserts or replaces the row keyed by msg.ID. Applying the same
	// message twice leaves exactly one row in that state.
	Upsert(ctx context.Context, msg chat.Message, synced bool) error

	// Replace atomically removes the row keyed by oldID and upserts msg.
	// Used when the server assigns a canonical id to a provisional message.
	Replace(ctx context.Context, oldID string, msg chat.Message) error

	// MarkSynced sets synced=true for the given id. No-op if already synced
	// or absent; a synced row never transitions back.
	MarkSynced(ctx context.Context, id string) error

	// ListUnsynced returns messages with synced=false ordered by timestamp
	// ascending, which is delivery order.
	ListUnsynced(ctx context.Context, chatID string) ([]chat.Message, error)

	// Truncate deletes all rows for the conversation. Test and reset paths
	// only.
	Truncate(ctx context.Context, chatID string) error
}

// ChatCacheStore caches the server-owned conversation list for display.
type ChatCacheStore interface {
	// SaveChats replaces the cached projection for the given chats.
	SaveChats(ctx context.Context, chats []chat.Chat) error

	// ListChats returns the cached conversations, most recent activity first.
	ListChats(ctx context.Context) ([]chat.Chat, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	MessageStore
	ChatCacheStore

	// Close closes the underlying database connection.
	Close() error
}
