package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/wirechat-client/internal/chat"
)

const (
	queryMessages = `query Messages($chatId: ID!) {
  messages(chatId: $chatId) { id chatId senderId body timestamp clientId }
}`

	mutationSendMessage = `mutation SendMessage($chatId: ID!, $senderId: ID!, $body: String!, $timestamp: String!, $clientId: ID!) {
  sendMessage(chatId: $chatId, senderId: $senderId, body: $body, timestamp: $timestamp, clientId: $clientId) {
    id chatId senderId body timestamp clientId
  }
}`

	subscriptionNewMessage = `subscription NewMessage($chatId: ID!) {
  newMessage(chatId: $chatId) { id chatId senderId body timestamp clientId }
}`

	queryChats = `query GetChats($userId: ID!) {
  chats(userId: $userId) { id users { id name avatar } lastMessage timestamp }
}`

	queryAvailableUsers = `query GetAvailableUsers {
  availableUsers { id name avatar }
}`
)

// Client talks GraphQL to the chat server: plain HTTP POST for queries and
// mutations, graphql-transport-ws for the newMessage subscription.
type Client struct {
	httpURL string
	wsURL   string
	token   string
	http    *http.Client
	log     *zerolog.Logger
}

// NewClient builds a remote client. wsURL may be empty, in which case it is
// derived from httpURL by swapping the scheme.
func NewClient(httpURL, wsURL, token string, timeout time.Duration, logger *zerolog.Logger) *Client {
	if wsURL == "" {
		wsURL = deriveWSURL(httpURL)
	}
	c := &Client{
		httpURL: httpURL,
		wsURL:   wsURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     logger,
	}
	if token != "" {
		logTokenIdentity(logger, token)
	}
	return c
}

func deriveWSURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return httpURL
	}
}

// do executes one GraphQL HTTP request and decodes the data field into out.
func (c *Client) do(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.httpURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post graphql: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		limited, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("graphql http status %d: %s", resp.StatusCode, string(limited))
	}

	var gqlResp gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}

	if err := json.Unmarshal(gqlResp.Data, out); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	return nil
}

// Messages returns the full message history for a conversation.
func (c *Client) Messages(ctx context.Context, chatID string) ([]chat.Message, error) {
	var data struct {
		Messages []messageData `json:"messages"`
	}
	if err := c.do(ctx, queryMessages, map[string]any{"chatId": chatID}, &data); err != nil {
		return nil, fmt.Errorf("messages query: %w", err)
	}

	msgs := make([]chat.Message, 0, len(data.Messages))
	for _, m := range data.Messages {
		parsed, err := toMessage(m)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, parsed)
	}
	return msgs, nil
}

// SendMessage persists one message and returns the canonical record.
func (c *Client) SendMessage(ctx context.Context, input SendMessageInput) (chat.Message, error) {
	var data struct {
		SendMessage messageData `json:"sendMessage"`
	}
	vars := map[string]any{
		"chatId":    input.ChatID,
		"senderId":  input.SenderID,
		"body":      input.Body,
		"timestamp": input.Timestamp.UTC().Format(time.RFC3339Nano),
		"clientId":  input.ClientID,
	}
	if err := c.do(ctx, mutationSendMessage, vars, &data); err != nil {
		return chat.Message{}, fmt.Errorf("send message: %w", errors.Join(chat.ErrDeliveryFailed, err))
	}
	return toMessage(data.SendMessage)
}

// Subscribe opens the push channel for a conversation. The returned channel
// is closed when the socket drops or ctx is cancelled; callers resubscribe.
func (c *Client) Subscribe(ctx context.Context, chatID string) (<-chan chat.Message, error) {
	conn, _, err := websocket.Dial(ctx, c.wsURL, &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("dial subscription: %w", errors.Join(chat.ErrChannelError, err))
	}

	if err := c.handshake(ctx, conn, chatID); err != nil {
		conn.Close(websocket.StatusProtocolError, "handshake failed")
		return nil, err
	}

	out := make(chan chat.Message, 16)
	go c.readSubscription(ctx, conn, chatID, out)
	return out, nil
}

func (c *Client) handshake(ctx context.Context, conn *websocket.Conn, chatID string) error {
	initPayload := map[string]any{}
	if c.token != "" {
		initPayload["Authorization"] = "Bearer " + c.token
	}
	raw, err := json.Marshal(initPayload)
	if err != nil {
		return fmt.Errorf("marshal init payload: %w", err)
	}
	if err := wsjson.Write(ctx, conn, gqlEnvelope{Type: gqlTypeConnectionInit, Payload: raw}); err != nil {
		return fmt.Errorf("send connection_init: %w", errors.Join(chat.ErrChannelError, err))
	}

	var ack gqlEnvelope
	if err := wsjson.Read(ctx, conn, &ack); err != nil {
		return fmt.Errorf("read connection_ack: %w", errors.Join(chat.ErrChannelError, err))
	}
	if ack.Type != gqlTypeConnectionAck {
		return fmt.Errorf("%w: expected connection_ack, got %q", chat.ErrChannelError, ack.Type)
	}

	subPayload, err := json.Marshal(gqlRequest{
		Query:     subscriptionNewMessage,
		Variables: map[string]any{"chatId": chatID},
	})
	if err != nil {
		return fmt.Errorf("marshal subscribe payload: %w", err)
	}
	if err := wsjson.Write(ctx, conn, gqlEnvelope{ID: "1", Type: gqlTypeSubscribe, Payload: subPayload}); err != nil {
		return fmt.Errorf("send subscribe: %w", errors.Join(chat.ErrChannelError, err))
	}

	return nil
}

func (c *Client) readSubscription(ctx context.Context, conn *websocket.Conn, chatID string, out chan<- chat.Message) {
	defer close(out)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	for {
		var env gqlEnvelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			if ctx.Err() == nil {
				c.log.Warn().Err(err).Str("chat_id", chatID).Msg("subscription read failed")
			}
			return
		}

		switch env.Type {
		case gqlTypeNext:
			var payload struct {
				Data struct {
					NewMessage messageData `json:"newMessage"`
				} `json:"data"`
			}
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				c.log.Warn().Err(err).Msg("malformed subscription payload")
				continue
			}
			msg, err := toMessage(payload.Data.NewMessage)
			if err != nil {
				c.log.Warn().Err(err).Msg("malformed subscription message")
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		case gqlTypePing:
			if err := wsjson.Write(ctx, conn, gqlEnvelope{Type: gqlTypePong}); err != nil {
				return
			}
		case gqlTypeComplete, gqlTypeError:
			c.log.Debug().Str("type", env.Type).Str("chat_id", chatID).Msg("subscription ended by server")
			return
		}
	}
}

// Chats returns the conversation list for a user.
func (c *Client) Chats(ctx context.Context, userID string) ([]chat.Chat, error) {
	var data struct {
		Chats []chatData `json:"chats"`
	}
	if err := c.do(ctx, queryChats, map[string]any{"userId": userID}, &data); err != nil {
		return nil, fmt.Errorf("chats query: %w", err)
	}

	chats := make([]chat.Chat, 0, len(data.Chats))
	for _, raw := range data.Chats {
		ts, err := parseTimestamp(raw.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("chat %s: %w", raw.ID, err)
		}
		names := make([]string, 0, len(raw.Users))
		for _, u := range raw.Users {
			names = append(names, u.Name)
		}
		chats = append(chats, chat.Chat{
			ID:            raw.ID,
			Title:         strings.Join(names, ", "),
			LastMessage:   raw.LastMessage,
			LastTimestamp: ts,
		})
	}
	return chats, nil
}

// AvailableUsers returns the users this client may act as.
func (c *Client) AvailableUsers(ctx context.Context) ([]chat.User, error) {
	var data struct {
		AvailableUsers []userData `json:"availableUsers"`
	}
	if err := c.do(ctx, queryAvailableUsers, nil, &data); err != nil {
		return nil, fmt.Errorf("available users query: %w", err)
	}

	users := make([]chat.User, 0, len(data.AvailableUsers))
	for _, u := range data.AvailableUsers {
		users = append(users, chat.User{ID: u.ID, Name: u.Name, Avatar: u.Avatar})
	}
	return users, nil
}

func toMessage(m messageData) (chat.Message, error) {
	ts, err := parseTimestamp(m.Timestamp)
	if err != nil {
		return chat.Message{}, fmt.Errorf("message %s: %w", m.ID, err)
	}
	return chat.Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Body:      m.Body,
		Timestamp: ts,
		Synced:    true, // anything the server returns is confirmed by definition
		ClientID:  m.ClientID,
	}, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return ts, nil
}

// Ensure Client implements Service
var _ Service = (*Client)(nil)
