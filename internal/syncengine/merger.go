package syncengine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

// Merger folds server-pushed messages into the durable store. It runs on a
// single consumer goroutine (see Session), so no two merges touch the store
// concurrently.
type Merger struct {
	store store.MessageStore
	log   *zerolog.Logger
}

// NewMerger builds a merger over the given store.
func NewMerger(st store.MessageStore, logger *zerolog.Logger) *Merger {
	return &Merger{store: st, log: logger}
}

// Merge applies one pushed message. A push from the current user is the
// authoritative echo of a message this client (or another device of the same
// user) originated: it replaces the matching unsynced local row instead of
// appending, otherwise the same logical message would render twice. A push
// from anyone else is genuinely new and upserted as confirmed.
//
// Upsert-by-id semantics make redundant delivery of the same push harmless.
func (m *Merger) Merge(ctx context.Context, current chat.User, incoming chat.Message) error {
	if incoming.SenderID != current.ID {
		if err := m.store.Upsert(ctx, incoming, true); err != nil {
			return fmt.Errorf("merge foreign message: %w", err)
		}
		m.log.Debug().
			Str("chat_id", incoming.ChatID).
			Str("msg_id", incoming.ID).
			Str("sender_id", incoming.SenderID).
			Msg("merged incoming message")
		return nil
	}

	provisional, err := m.findProvisional(ctx, incoming)
	if err != nil {
		return err
	}
	if provisional == "" {
		// No local row to collapse: either the echo already replaced it, or
		// another device of this user sent the message.
		if err := m.store.Upsert(ctx, incoming, true); err != nil {
			return fmt.Errorf("merge own message: %w", err)
		}
		return nil
	}

	incoming.Synced = true
	if err := m.store.Replace(ctx, provisional, incoming); err != nil {
		return fmt.Errorf("collapse echo into local row: %w", err)
	}
	m.log.Debug().
		Str("chat_id", incoming.ChatID).
		Str("provisional_id", provisional).
		Str("canonical_id", incoming.ID).
		Msg("echo collapsed into optimistic row")
	return nil
}

// findProvisional locates the unsynced local row the echo corresponds to.
// Primary match is the client-generated correlation id the server echoes
// back; the fallback is body equality against the oldest unsynced row, which
// covers servers that do not round-trip clientId.
func (m *Merger) findProvisional(ctx context.Context, incoming chat.Message) (string, error) {
	pending, err := m.store.ListUnsynced(ctx, incoming.ChatID)
	if err != nil {
		return "", fmt.Errorf("list unsynced for echo match: %w", err)
	}

	if incoming.ClientID != "" {
		for _, msg := range pending {
			if msg.ID == incoming.ClientID {
				return msg.ID, nil
			}
		}
		return "", nil
	}

	for _, msg := range pending {
		if msg.SenderID == incoming.SenderID && msg.Body == incoming.Body {
			return msg.ID, nil
		}
	}
	return "", nil
}
