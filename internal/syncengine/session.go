package syncengine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/remote"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

// State is the lifecycle of a Session.
type State int

const (
	// StateUninitialized is a session before Attach.
	StateUninitialized State = iota
	// StateReady is an attached session: subscribed, reconciling, accepting sends.
	StateReady
	// StateClosed is a detached session. The durable store survives; only
	// the in-memory session and its subscription are released.
	StateClosed
)

var (
	ErrAlreadyAttached = errors.New("session already attached")
	ErrSessionClosed   = errors.New("session closed")
	ErrNotReady        = errors.New("session not ready")
)

const (
	defaultReconcileInterval = 15 * time.Second
	defaultBackoffMax        = 30 * time.Second
	initialBackoff           = time.Second
	pushQueueSize            = 64
)

// Config assembles a Session's collaborators.
type Config struct {
	ChatID string
	User   chat.User
	Store  store.MessageStore
	Remote remote.Service
	Logger *zerolog.Logger

	// ReconcileInterval is how often a background delivery pass runs.
	ReconcileInterval time.Duration
	// ResubscribeBackoffMax caps the exponential backoff between attempts
	// to re-establish a dropped push subscription.
	ResubscribeBackoffMax time.Duration
}

// Session composes the durable store, the outbox, the reconciler and the
// merger for one open conversation, and exposes a reactive ordered message
// list to the UI layer.
//
// Three writers act on the store while a session is ready: user sends, the
// background reconciler and the push merger. All of them mutate by
// upsert-on-identity, so their interleavings commute; the merger is
// additionally funneled through one bounded queue with a single consumer so
// no two merges ever run concurrently.
type Session struct {
	chatID     string
	user       chat.User
	store      store.MessageStore
	remote     remote.Service
	outbox     *Outbox
	reconciler *Reconciler
	merger     *Merger
	log        zerolog.Logger

	reconcileInterval time.Duration
	backoffMax        time.Duration

	pushes  chan chat.Message
	kicks   chan struct{}
	updates chan []chat.Message

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	state    State
	snapshot []chat.Message
}

// NewSession builds a session for one conversation. It does nothing until
// Attach is called.
func NewSession(cfg Config) *Session {
	logger := cfg.Logger.With().Str("chat_id", cfg.ChatID).Logger()

	reconcileInterval := cfg.ReconcileInterval
	if reconcileInterval <= 0 {
		reconcileInterval = defaultReconcileInterval
	}
	backoffMax := cfg.ResubscribeBackoffMax
	if backoffMax <= 0 {
		backoffMax = defaultBackoffMax
	}

	return &Session{
		chatID:            cfg.ChatID,
		user:              cfg.User,
		store:             cfg.Store,
		remote:            cfg.Remote,
		outbox:            NewOutbox(cfg.Store, &logger),
		reconciler:        NewReconciler(cfg.Store, cfg.Remote, &logger),
		merger:            NewMerger(cfg.Store, &logger),
		log:               logger,
		reconcileInterval: reconcileInterval,
		backoffMax:        backoffMax,
		pushes:            make(chan chat.Message, pushQueueSize),
		kicks:             make(chan struct{}, 1),
		updates:           make(chan []chat.Message, 1),
	}
}

// Attach initializes the durable store, seeds the message list from it and
// brings the session to Ready: subscribed to the push channel, with delivery
// passes running in the background.
//
// A storage failure leaves the session Uninitialized and is returned to the
// caller, which should present a degraded empty view rather than crash.
func (s *Session) Attach(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateReady:
		return ErrAlreadyAttached
	case StateClosed:
		return ErrSessionClosed
	}

	if err := s.store.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}

	msgs, err := s.store.Load(ctx, s.chatID)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	s.snapshot = msgs
	s.publishLocked()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateReady

	s.wg.Add(3)
	go s.mergeLoop(runCtx)
	go s.subscribeLoop(runCtx)
	go s.reconcileLoop(runCtx)

	s.log.Info().Int("seeded", len(msgs)).Msg("session attached")
	return nil
}

// Send accepts user-authored text, persists it optimistically and returns
// the provisional message at once. Delivery happens in the background.
func (s *Session) Send(ctx context.Context, body string) (chat.Message, error) {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return chat.Message{}, ErrNotReady
	}
	s.mu.Unlock()

	msg, err := s.outbox.Submit(ctx, s.chatID, body, s.user)
	if err != nil {
		return chat.Message{}, err
	}

	s.refresh(ctx)
	s.kick()
	return msg, nil
}

// Detach unsubscribes from the push channel and stops background work. Any
// in-flight delivery pass finishes against the store, which stays on disk.
func (s *Session) Detach() {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	close(s.updates)
	s.mu.Unlock()

	s.log.Info().Msg("session detached")
}

// Messages returns the current ordered snapshot, most recent first.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.snapshot)
}

// Updates delivers the recomputed snapshot after every store mutation.
// Only the latest snapshot is retained for a slow consumer.
func (s *Session) Updates() <-chan []chat.Message {
	return s.updates
}

// State returns the session's lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// mergeLoop is the single consumer of the push queue. Merges run strictly
// sequentially, which keeps per-identity read-modify-write atomic without a
// store-level lock.
func (s *Session) mergeLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.pushes:
			if err := s.merger.Merge(ctx, s.user, msg); err != nil {
				s.log.Error().Err(err).Str("msg_id", msg.ID).Msg("merge failed")
				continue
			}
			s.refresh(ctx)
		}
	}
}

// subscribeLoop keeps the push channel alive, backing off exponentially when
// it drops. After every (re)connect it backfills server history and kicks a
// delivery pass, closing the staleness window of the outage.
func (s *Session) subscribeLoop(ctx context.Context) {
	defer s.wg.Done()

	backoff := initialBackoff
	for {
		ch, err := s.remote.Subscribe(ctx, s.chatID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Debug().Err(err).Dur("retry_in", backoff).Msg("subscribe failed")
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, s.backoffMax)
			continue
		}
		backoff = initialBackoff
		s.log.Debug().Msg("push channel established")

		s.backfill(ctx)
		s.kick()

		if !s.forward(ctx, ch) {
			return
		}
		s.log.Warn().Msg("push channel dropped, resubscribing")
	}
}

// forward funnels pushed messages into the merge queue. Returns false when
// ctx ended, true when the channel closed and a resubscribe is due.
func (s *Session) forward(ctx context.Context, ch <-chan chat.Message) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-ch:
			if !ok {
				return true
			}
			select {
			case s.pushes <- msg:
			case <-ctx.Done():
				return false
			}
		}
	}
}

// backfill folds the server-side history through the merge queue. Upsert
// semantics make this idempotent, so re-running it after every reconnect is
// safe.
func (s *Session) backfill(ctx context.Context) {
	history, err := s.remote.Messages(ctx, s.chatID)
	if err != nil {
		s.log.Debug().Err(err).Msg("history backfill failed")
		return
	}
	for _, msg := range history {
		select {
		case s.pushes <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// reconcileLoop runs delivery passes on a fixed interval and on demand after
// each send or reconnect.
func (s *Session) reconcileLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runReconcile(ctx)
		case <-s.kicks:
			s.runReconcile(ctx)
		}
	}
}

func (s *Session) runReconcile(ctx context.Context) {
	delivered, remaining, err := s.reconciler.ReconcileAll(ctx, s.chatID)
	if err != nil {
		s.log.Error().Err(err).Msg("reconcile pass failed")
		return
	}
	if delivered > 0 {
		s.log.Info().Int("delivered", delivered).Int("remaining", remaining).Msg("reconcile pass done")
		s.refresh(ctx)
	}
}

// kick schedules a delivery pass if one is not already queued.
func (s *Session) kick() {
	select {
	case s.kicks <- struct{}{}:
	default:
	}
}

// refresh recomputes the snapshot from the store and publishes it, so the
// UI always sees the latest store state and never a stale mix.
func (s *Session) refresh(ctx context.Context) {
	msgs, err := s.store.Load(ctx, s.chatID)
	if err != nil {
		s.log.Error().Err(err).Msg("reload after mutation failed")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.snapshot = msgs
	s.publishLocked()
}

// publishLocked emits the snapshot latest-wins. Callers hold s.mu.
func (s *Session) publishLocked() {
	select {
	case s.updates <- slices.Clone(s.snapshot):
	default:
		select {
		case <-s.updates:
		default:
		}
		select {
		case s.updates <- slices.Clone(s.snapshot):
		default:
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
