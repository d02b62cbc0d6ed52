package syncengine

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/log"
)

func TestSubmitVisibleBeforeAnyDelivery(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	outbox := NewOutbox(st, log.Nop())
	msg, err := outbox.Submit(ctx, "c1", "Hi", userAlice)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if msg.Synced {
		t.Fatal("submitted message must start unsynced")
	}

	msgs, err := st.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Body != "Hi" || msgs[0].Synced {
		t.Fatalf("expected one unsynced row, got %+v", msgs)
	}
}

func TestEventualSyncAfterConnectivityReturns(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	rm := newFakeRemote(false)

	outbox := NewOutbox(st, log.Nop())
	rec := NewReconciler(st, rm, log.Nop())

	if _, err := outbox.Submit(ctx, "c1", "offline message", userAlice); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// While unreachable, passes leave the message queued.
	for i := 0; i < 3; i++ {
		delivered, remaining, err := rec.ReconcileAll(ctx, "c1")
		if err != nil {
			t.Fatalf("reconcile offline: %v", err)
		}
		if delivered != 0 || remaining != 1 {
			t.Fatalf("expected 0 delivered / 1 remaining, got %d / %d", delivered, remaining)
		}
	}

	rm.setOnline(true)

	delivered, remaining, err := rec.ReconcileAll(ctx, "c1")
	if err != nil {
		t.Fatalf("reconcile online: %v", err)
	}
	if delivered != 1 || remaining != 0 {
		t.Fatalf("expected 1 delivered / 0 remaining, got %d / %d", delivered, remaining)
	}

	msgs, err := st.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 1 || !msgs[0].Synced {
		t.Fatalf("expected single synced row, got %+v", msgs)
	}

	// Further passes must not resend.
	if _, _, err := rec.ReconcileAll(ctx, "c1"); err != nil {
		t.Fatalf("extra reconcile: %v", err)
	}
	if got := len(rm.sentBodies()); got != 1 {
		t.Fatalf("expected exactly one remote send, got %d", got)
	}
}

func TestReconcilerDeliversInCreationOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	rm := newFakeRemote(false)

	outbox := NewOutbox(st, log.Nop())
	rec := NewReconciler(st, rm, log.Nop())

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	outbox.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	for _, body := range []string{"A", "B", "C"} {
		if _, err := outbox.Submit(ctx, "c1", body, userAlice); err != nil {
			t.Fatalf("submit %s: %v", body, err)
		}
	}

	rm.setOnline(true)
	if _, _, err := rec.ReconcileAll(ctx, "c1"); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	got := rm.sentBodies()
	want := []string{"A", "B", "C"}
	if len(got) != len(want) {
		t.Fatalf("expected %d sends, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivery order mismatch at %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestReconcilerAdoptsCanonicalIdentity(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	rm := newFakeRemote(true)

	outbox := NewOutbox(st, log.Nop())
	rec := NewReconciler(st, rm, log.Nop())

	provisional, err := outbox.Submit(ctx, "c1", "Hi", userAlice)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, _, err := rec.ReconcileAll(ctx, "c1"); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	msgs, err := st.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected length still 1, got %d", len(msgs))
	}
	if msgs[0].ID == provisional.ID {
		t.Fatalf("expected canonical id to replace provisional %s", provisional.ID)
	}
	if msgs[0].ID != "srv-1" || msgs[0].Body != "Hi" || !msgs[0].Synced {
		t.Fatalf("unexpected canonical row: %+v", msgs[0])
	}
}

func TestReconcilerFailuresAreIndependent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	rm := newFakeRemote(true)
	rm.rejectBody = "B"

	outbox := NewOutbox(st, log.Nop())
	rec := NewReconciler(st, rm, log.Nop())

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	outbox.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	for _, body := range []string{"A", "B", "C"} {
		if _, err := outbox.Submit(ctx, "c1", body, userAlice); err != nil {
			t.Fatalf("submit %s: %v", body, err)
		}
	}

	delivered, remaining, err := rec.ReconcileAll(ctx, "c1")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if delivered != 2 || remaining != 1 {
		t.Fatalf("expected 2 delivered / 1 remaining, got %d / %d", delivered, remaining)
	}

	unsynced, err := st.ListUnsynced(ctx, "c1")
	if err != nil {
		t.Fatalf("list unsynced: %v", err)
	}
	if len(unsynced) != 1 || unsynced[0].Body != "B" {
		t.Fatalf("expected only B queued, got %+v", unsynced)
	}

	// Once the server accepts B, the queue drains.
	rm.rejectBody = ""
	if _, _, err := rec.ReconcileAll(ctx, "c1"); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	unsynced, err = st.ListUnsynced(ctx, "c1")
	if err != nil {
		t.Fatalf("list unsynced: %v", err)
	}
	if len(unsynced) != 0 {
		t.Fatalf("expected empty queue, got %+v", unsynced)
	}
}

func TestReconcilerRetryDedupedByServer(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	rm := newFakeRemote(true)

	outbox := NewOutbox(st, log.Nop())
	rec := NewReconciler(st, rm, log.Nop())

	msg, err := outbox.Submit(ctx, "c1", "Hi", userAlice)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// First attempt succeeded remotely but the client "crashed" before the
	// local row was updated: force the row back to unsynced provisional.
	if _, err := rm.SendMessage(ctx, sendInputFor(msg)); err != nil {
		t.Fatalf("prior send: %v", err)
	}

	if _, _, err := rec.ReconcileAll(ctx, "c1"); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	msgs, err := st.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "srv-1" {
		t.Fatalf("expected one deduplicated canonical row, got %+v", msgs)
	}
	if got := len(rm.sentBodies()); got != 1 {
		t.Fatalf("expected server to store one copy, got %d", got)
	}
}
