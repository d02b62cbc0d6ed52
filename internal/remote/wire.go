package remote

import "encoding/json"

// graphql-transport-ws message types. Only the subset the client speaks.
const (
	gqlTypeConnectionInit = "connection_init"
	gqlTypeConnectionAck  = "connection_ack"
	gqlTypeSubscribe      = "subscribe"
	gqlTypeNext           = "next"
	gqlTypeError          = "error"
	gqlTypeComplete       = "complete"
	gqlTypePing           = "ping"
	gqlTypePong           = "pong"

	wsSubprotocol = "graphql-transport-ws"
)

// gqlEnvelope is the framing for every message on the subscription socket.
type gqlEnvelope struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// gqlRequest is the body of an HTTP POST and the payload of a subscribe frame.
type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// gqlResponse is the standard GraphQL response shape.
type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

// messageData is the wire shape of a Message in query, mutation and
// subscription results.
type messageData struct {
	ID        string `json:"id"`
	ChatID    string `json:"chatId"`
	SenderID  string `json:"senderId"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
	ClientID  string `json:"clientId,omitempty"`
}

// chatData is the wire shape of a conversation in the chats query.
type chatData struct {
	ID          string     `json:"id"`
	Users       []userData `json:"users"`
	LastMessage string     `json:"lastMessage"`
	Timestamp   string     `json:"timestamp"`
}

type userData struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}
