package syncengine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/log"
	"github.com/vovakirdan/wirechat-client/internal/remote"
	"github.com/vovakirdan/wirechat-client/internal/store/sqlite"
)

var (
	userAlice = chat.User{ID: "u-alice", Name: "alice"}
	userBob   = chat.User{ID: "u-bob", Name: "bob"}
)

func newTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	s, err := sqlite.New(":memory:", log.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize store: %v", err)
	}
	return s
}

// fakeRemote is an in-memory remote.Service with a switchable online flag.
type fakeRemote struct {
	mu      sync.Mutex
	online  bool
	nextID  int
	sent    []remote.SendMessageInput
	history []chat.Message
	// rejectBody makes SendMessage fail for one specific body while others
	// succeed, to exercise independent failure domains.
	rejectBody string

	pushMu sync.Mutex
	pushes []chan chat.Message
}

func newFakeRemote(online bool) *fakeRemote {
	return &fakeRemote{online: online}
}

func (f *fakeRemote) setOnline(online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = online
}

func (f *fakeRemote) sentBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	bodies := make([]string, 0, len(f.sent))
	for _, in := range f.sent {
		bodies = append(bodies, in.Body)
	}
	return bodies
}

func (f *fakeRemote) Messages(ctx context.Context, chatID string) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online {
		return nil, fmt.Errorf("%w: offline", chat.ErrDeliveryFailed)
	}
	var out []chat.Message
	for _, m := range f.history {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRemote) SendMessage(ctx context.Context, input remote.SendMessageInput) (chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online {
		return chat.Message{}, fmt.Errorf("%w: offline", chat.ErrDeliveryFailed)
	}
	if f.rejectBody != "" && input.Body == f.rejectBody {
		return chat.Message{}, fmt.Errorf("%w: rejected", chat.ErrDeliveryFailed)
	}

	// Deduplicate by client id like a well-behaved server.
	for _, existing := range f.history {
		if existing.ClientID != "" && existing.ClientID == input.ClientID {
			return existing, nil
		}
	}

	f.sent = append(f.sent, input)
	f.nextID++
	msg := chat.Message{
		ID:        fmt.Sprintf("srv-%d", f.nextID),
		ChatID:    input.ChatID,
		SenderID:  input.SenderID,
		Body:      input.Body,
		Timestamp: input.Timestamp,
		Synced:    true,
		ClientID:  input.ClientID,
	}
	f.history = append(f.history, msg)
	return msg, nil
}

func (f *fakeRemote) Subscribe(ctx context.Context, chatID string) (<-chan chat.Message, error) {
	f.mu.Lock()
	online := f.online
	f.mu.Unlock()
	if !online {
		return nil, fmt.Errorf("%w: offline", chat.ErrChannelError)
	}

	ch := make(chan chat.Message, 16)
	f.pushMu.Lock()
	f.pushes = append(f.pushes, ch)
	f.pushMu.Unlock()

	go func() {
		<-ctx.Done()
		f.pushMu.Lock()
		defer f.pushMu.Unlock()
		for i, existing := range f.pushes {
			if existing == ch {
				f.pushes = append(f.pushes[:i], f.pushes[i+1:]...)
				close(ch)
				return
			}
		}
	}()
	return ch, nil
}

// push delivers a message to every live subscriber.
func (f *fakeRemote) push(msg chat.Message) {
	f.pushMu.Lock()
	defer f.pushMu.Unlock()
	for _, ch := range f.pushes {
		ch <- msg
	}
}

func (f *fakeRemote) Chats(ctx context.Context, userID string) ([]chat.Chat, error) {
	return nil, nil
}

func (f *fakeRemote) AvailableUsers(ctx context.Context) ([]chat.User, error) {
	return []chat.User{userAlice, userBob}, nil
}

var _ remote.Service = (*fakeRemote)(nil)

// sendInputFor mirrors what the reconciler submits for a local message.
func sendInputFor(msg chat.Message) remote.SendMessageInput {
	return remote.SendMessageInput{
		ChatID:    msg.ChatID,
		SenderID:  msg.SenderID,
		Body:      msg.Body,
		Timestamp: msg.Timestamp,
		ClientID:  msg.ID,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}
