package syncengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/wirechat-client/internal/remote"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

// Reconciler pushes undelivered messages to the remote service, oldest
// first, and converts them to confirmed records on success.
type Reconciler struct {
	store  store.MessageStore
	remote remote.Service
	log    *zerolog.Logger

	// mu serializes passes; overlapping triggers coalesce into the pass
	// already running.
	mu sync.Mutex
}

// NewReconciler builds a reconciler over the given store and remote service.
func NewReconciler(st store.MessageStore, svc remote.Service, logger *zerolog.Logger) *Reconciler {
	return &Reconciler{store: st, remote: svc, log: logger}
}

// ReconcileAll delivers every unsynced message of the conversation in
// creation order. Each message is its own failure domain: a rejected or
// timed-out send leaves that message unsynced and the pass moves on.
//
// Returns how many messages were confirmed and how many remain undelivered.
// An error is returned only when the local store itself fails.
func (r *Reconciler) ReconcileAll(ctx context.Context, chatID string) (delivered, remaining int, err error) {
	if !r.mu.TryLock() {
		r.log.Debug().Str("chat_id", chatID).Msg("reconcile already in progress, skipping")
		return 0, 0, nil
	}
	defer r.mu.Unlock()

	pending, err := r.store.ListUnsynced(ctx, chatID)
	if err != nil {
		return 0, 0, fmt.Errorf("list unsynced: %w", err)
	}

	for _, msg := range pending {
		canonical, sendErr := r.remote.SendMessage(ctx, remote.SendMessageInput{
			ChatID:    msg.ChatID,
			SenderID:  msg.SenderID,
			Body:      msg.Body,
			Timestamp: msg.Timestamp,
			ClientID:  msg.ID,
		})
		if sendErr != nil {
			r.log.Warn().Err(sendErr).
				Str("chat_id", chatID).
				Str("msg_id", msg.ID).
				Msg("delivery failed, message stays queued")
			remaining++
			continue
		}

		canonical.Synced = true
		if canonical.ID != msg.ID {
			if err := r.store.Replace(ctx, msg.ID, canonical); err != nil {
				return delivered, remaining, fmt.Errorf("replace provisional row: %w", err)
			}
		} else {
			if err := r.store.MarkSynced(ctx, msg.ID); err != nil {
				return delivered, remaining, fmt.Errorf("mark synced: %w", err)
			}
		}

		r.log.Debug().
			Str("chat_id", chatID).
			Str("msg_id", msg.ID).
			Str("canonical_id", canonical.ID).
			Msg("message delivered")
		delivered++
	}

	return delivered, remaining, nil
}
