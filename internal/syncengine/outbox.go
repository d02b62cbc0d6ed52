package syncengine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

// Outbox is the optimistic write path. Submit persists a message locally and
// returns before any network exchange, which is what hides send latency from
// the user.
type Outbox struct {
	store store.MessageStore
	log   *zerolog.Logger
	now   func() time.Time
}

// NewOutbox builds an outbox over the given store.
func NewOutbox(st store.MessageStore, logger *zerolog.Logger) *Outbox {
	return &Outbox{store: st, log: logger, now: time.Now}
}

// Submit persists body as an unsynced message from sender and returns it.
// The id is a fresh UUID; it doubles as the correlation token the server
// echoes back, so two sends in the same clock tick or from two devices
// cannot collide.
func (o *Outbox) Submit(ctx context.Context, chatID, body string, sender chat.User) (chat.Message, error) {
	msg := chat.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		SenderID:  sender.ID,
		Body:      body,
		Timestamp: o.now(),
		Synced:    false,
	}

	if err := o.store.Upsert(ctx, msg, false); err != nil {
		return chat.Message{}, fmt.Errorf("persist outgoing message: %w", err)
	}

	o.log.Debug().
		Str("chat_id", chatID).
		Str("msg_id", msg.ID).
		Msg("message queued for delivery")
	return msg, nil
}
