package remote

import (
	"context"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/chat"
)

// SendMessageInput carries one message to the sendMessage mutation.
//
// ClientID is the provisional id the client generated for the message. The
// server uses it to deduplicate retries and echoes it back on the
// subscription so the sender can correlate the push with its local row.
type SendMessageInput struct {
	ChatID    string
	SenderID  string
	Body      string
	Timestamp time.Time
	ClientID  string
}

// Service is the remote chat backend as the sync engine sees it. The engine
// never talks to the wire directly; everything goes through these five
// operations.
type Service interface {
	// Messages returns the full message history for a conversation.
	Messages(ctx context.Context, chatID string) ([]chat.Message, error)

	// SendMessage persists one message and returns the canonical record.
	// The server may assign a new id and timestamp.
	SendMessage(ctx context.Context, input SendMessageInput) (chat.Message, error)

	// Subscribe opens the push channel for a conversation. The channel
	// delivers every message created for the conversation, including echoes
	// of the subscriber's own sends, and is closed when the subscription
	// drops or ctx is cancelled.
	Subscribe(ctx context.Context, chatID string) (<-chan chat.Message, error)

	// Chats returns the conversation list for a user.
	Chats(ctx context.Context, userID string) ([]chat.Chat, error)

	// AvailableUsers returns the users this client may act as.
	AvailableUsers(ctx context.Context) ([]chat.User, error)
}
