package chat

import "time"

// Message is the domain model for a single chat message.
//
// ID is unique within a conversation. While a message has only been written
// locally the ID is a client-generated provisional identifier; once the
// server acknowledges the send the row is keyed by the canonical server ID.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	Synced    bool      `json:"synced"`

	// ClientID is the provisional id the originating client generated for
	// this message. The server echoes it on pushes and mutation results so
	// the sender can correlate them with its local row. Not persisted;
	// canonical rows are keyed by ID alone.
	ClientID string `json:"clientId,omitempty"`
}

// Chat is a read-only projection of a conversation owned by the server.
// The client caches it for list display only.
type Chat struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	LastMessage   string    `json:"lastMessage"`
	LastTimestamp time.Time `json:"timestamp"`
}

// User identifies a chat participant.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}
