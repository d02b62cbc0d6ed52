package syncengine

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/log"
)

func TestMergeSelfEchoCollapsesOptimisticRow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	outbox := NewOutbox(st, log.Nop())
	merger := NewMerger(st, log.Nop())

	provisional, err := outbox.Submit(ctx, "c1", "Hello", userAlice)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	echo := chat.Message{
		ID:        "srv-9",
		ChatID:    "c1",
		SenderID:  userAlice.ID,
		Body:      "Hello",
		Timestamp: provisional.Timestamp,
		ClientID:  provisional.ID,
	}
	if err := merger.Merge(ctx, userAlice, echo); err != nil {
		t.Fatalf("merge echo: %v", err)
	}

	msgs, err := st.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("self echo must not duplicate: expected 1 row, got %d", len(msgs))
	}
	if msgs[0].ID != "srv-9" || !msgs[0].Synced {
		t.Fatalf("expected canonical synced row, got %+v", msgs[0])
	}
}

func TestMergeSelfEchoFallsBackToBodyMatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	outbox := NewOutbox(st, log.Nop())
	merger := NewMerger(st, log.Nop())

	if _, err := outbox.Submit(ctx, "c1", "Hello", userAlice); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Echo from a server that does not round-trip the client id.
	echo := chat.Message{
		ID:        "srv-9",
		ChatID:    "c1",
		SenderID:  userAlice.ID,
		Body:      "Hello",
		Timestamp: time.Now(),
	}
	if err := merger.Merge(ctx, userAlice, echo); err != nil {
		t.Fatalf("merge echo: %v", err)
	}

	msgs, err := st.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "srv-9" {
		t.Fatalf("expected collapsed row srv-9, got %+v", msgs)
	}
}

func TestMergeOwnMessageFromAnotherDevice(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	merger := NewMerger(st, log.Nop())

	// Nothing unsynced locally; a push with our sender id but an unknown
	// correlation id came from another device of the same user.
	incoming := chat.Message{
		ID:        "srv-5",
		ChatID:    "c1",
		SenderID:  userAlice.ID,
		Body:      "from my phone",
		Timestamp: time.Now(),
		ClientID:  "some-other-device",
	}
	if err := merger.Merge(ctx, userAlice, incoming); err != nil {
		t.Fatalf("merge: %v", err)
	}

	msgs, err := st.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "srv-5" || !msgs[0].Synced {
		t.Fatalf("expected one synced row, got %+v", msgs)
	}
}

func TestMergeForeignMessageAppends(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	outbox := NewOutbox(st, log.Nop())
	merger := NewMerger(st, log.Nop())

	// An unrelated unsynced row with the same body must not be overwritten.
	if _, err := outbox.Submit(ctx, "c1", "Hello", userAlice); err != nil {
		t.Fatalf("submit: %v", err)
	}

	incoming := chat.Message{
		ID:        "srv-7",
		ChatID:    "c1",
		SenderID:  userBob.ID,
		Body:      "Hello",
		Timestamp: time.Now(),
	}
	if err := merger.Merge(ctx, userAlice, incoming); err != nil {
		t.Fatalf("merge: %v", err)
	}

	msgs, err := st.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("foreign push must add exactly one row: expected 2, got %d", len(msgs))
	}

	unsynced, err := st.ListUnsynced(ctx, "c1")
	if err != nil {
		t.Fatalf("list unsynced: %v", err)
	}
	if len(unsynced) != 1 || unsynced[0].SenderID != userAlice.ID {
		t.Fatalf("local optimistic row must survive, got %+v", unsynced)
	}
}

func TestMergeRedundantDeliveryIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	merger := NewMerger(st, log.Nop())

	incoming := chat.Message{
		ID:        "srv-3",
		ChatID:    "c1",
		SenderID:  userBob.ID,
		Body:      "once",
		Timestamp: time.Now(),
	}
	// The channel may legitimately deliver the same message more than once.
	for i := 0; i < 3; i++ {
		if err := merger.Merge(ctx, userAlice, incoming); err != nil {
			t.Fatalf("merge: %v", err)
		}
	}

	msgs, err := st.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 row after redundant delivery, got %d", len(msgs))
	}
}

func TestMergeRedundantEchoAfterCollapse(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	outbox := NewOutbox(st, log.Nop())
	merger := NewMerger(st, log.Nop())

	provisional, err := outbox.Submit(ctx, "c1", "Hello", userAlice)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	echo := chat.Message{
		ID:        "srv-9",
		ChatID:    "c1",
		SenderID:  userAlice.ID,
		Body:      "Hello",
		Timestamp: provisional.Timestamp,
		ClientID:  provisional.ID,
	}
	// First delivery collapses the provisional row, the second finds no
	// pending match and degrades to a plain idempotent upsert.
	if err := merger.Merge(ctx, userAlice, echo); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	if err := merger.Merge(ctx, userAlice, echo); err != nil {
		t.Fatalf("second merge: %v", err)
	}

	msgs, err := st.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "srv-9" {
		t.Fatalf("expected single canonical row, got %+v", msgs)
	}
}
