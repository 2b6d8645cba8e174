package httpapi

import (
	"time"

	"github.com/go-chatgate/go-chatgate/lib/messenger"
)

// StartSessionRequest is the body of POST /session/start.
type StartSessionRequest struct {
	ClientID string `json:"clientId"`
}

// StartSessionResponse acknowledges a session start. Status is whatever the
// session reports at the moment the handshake was begun or joined.
type StartSessionResponse struct {
	Message  string `json:"message"`
	Status   string `json:"status"`
	ClientID string `json:"clientId"`
}

// SessionStatusResponse reports one session's current lifecycle state. QR is
// null except while the session is pairing. Error carries the last backend
// failure reason for sessions in error or auth_failure. Message is set only
// on the degraded disk-but-not-loaded answer.
type SessionStatusResponse struct {
	Status   string  `json:"status"`
	QR       *string `json:"qr"`
	ClientID string  `json:"clientId"`
	Error    string  `json:"error,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// SessionEntry is one row of GET /sessions.
type SessionEntry struct {
	ClientID string `json:"clientId"`
	Status   string `json:"status"`
	HasQR    bool   `json:"hasQr"`
}

// SessionsResponse lists every registered session in insertion order.
type SessionsResponse struct {
	ActiveSessions []SessionEntry `json:"activeSessions"`
	Total          int            `json:"total"`
}

// ChatSummary is one chat enriched for listing: the most recent message body
// and the peer's address-book name are attached when available.
type ChatSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	IsGroup      bool      `json:"isGroup"`
	UnreadCount  int       `json:"unreadCount"`
	LastActivity time.Time `json:"lastActivity"`
	LastMessage  string    `json:"lastMessage,omitempty"`
	ContactName  string    `json:"contactName,omitempty"`
}

// ChatsResponse is GET /chats/{clientId}: enriched chats sorted by last
// activity, newest first.
type ChatsResponse struct {
	Total int           `json:"total"`
	Chats []ChatSummary `json:"chats"`
}

// ChatMessagesResponse is GET /chats/{clientId}/{chatId}/messages: the most
// recent messages of one chat in chronological order.
type ChatMessagesResponse struct {
	ChatID        string              `json:"chatId"`
	ChatName      string              `json:"chatName"`
	IsGroup       bool                `json:"isGroup"`
	TotalMessages int                 `json:"totalMessages"`
	Messages      []messenger.Message `json:"messages"`
}

// SendMessageRequest is the body of POST /message/send.
type SendMessageRequest struct {
	ClientID string `json:"clientId"`
	To       string `json:"to"`
	Message  string `json:"message"`
}

// SendChatMessageRequest is the body of POST /chats/{clientId}/{chatId}/send.
type SendChatMessageRequest struct {
	Message string `json:"message"`
}

// SendResponse acknowledges a forwarded send. ChatID is set only on the
// per-chat send endpoint.
type SendResponse struct {
	Success bool   `json:"success"`
	ChatID  string `json:"chatId,omitempty"`
}

// DestroySessionResponse reports the outcome of DELETE /session/{clientId}.
// The message distinguishes a live-session destroy from a disk-only cleanup.
type DestroySessionResponse struct {
	Message  string `json:"message"`
	ClientID string `json:"clientId"`
}

// HealthResponse is GET /health. Uptime is whole seconds since the server
// was constructed. ServerTime is the wall clock corrected by the NTP
// advisory offset; ClockOffsetMs is that offset, so consumers can spot
// local clock skew without shell access to the host.
type HealthResponse struct {
	Status         string            `json:"status"`
	ActiveClients  int               `json:"activeClients"`
	ClientStatuses map[string]string `json:"clientStatuses"`
	Uptime         int64             `json:"uptime"`
	ServerTime     time.Time         `json:"serverTime"`
	ClockOffsetMs  int64             `json:"clockOffsetMs"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}
