package messenger

import (
	"context"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

// EventKind names a lifecycle transition reported by a backend.
type EventKind string

const (
	KindInitializing  EventKind = "initializing"
	KindPairing       EventKind = "pairing"
	KindAuthenticated EventKind = "authenticated"
	KindReady         EventKind = "ready"
	KindAuthFailure   EventKind = "auth_failure"
	KindError         EventKind = "error"
	KindDisconnected  EventKind = "disconnected"
)

// Event is one lifecycle transition from a backend. Payload carries the
// pairing payload for KindPairing; Reason carries the backend's explanation
// for failures and disconnects.
type Event struct {
	Kind    EventKind
	Payload string
	Reason  string
}

// Contact is an address-book entry visible to a connected client.
type Contact struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Number  string `json:"number,omitempty"`
	IsGroup bool   `json:"isGroup"`
}

// Chat summarizes one conversation. For direct chats the ID doubles as the
// peer contact's ID.
type Chat struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	IsGroup      bool      `json:"isGroup"`
	UnreadCount  int       `json:"unreadCount"`
	LastActivity time.Time `json:"lastActivity"`
}

// Message is one message within a chat.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	FromMe    bool      `json:"fromMe"`
	Timestamp time.Time `json:"timestamp"`
}

// Client is one stateful connection to a messaging backend.
type Client interface {
	// Start begins the handshake. A synchronous error means the connection
	// could not even begin; asynchronous progress and failure are reported
	// through Events.
	Start(ctx context.Context) error

	// Events returns the ordered lifecycle stream for this client. The
	// channel is closed when the client terminates.
	Events() <-chan Event

	// Forwarded operations, valid only while the backend is connected.
	SendMessage(ctx context.Context, to, body string) (*Message, error)
	SendChatMessage(ctx context.Context, chatID, body string) (*Message, error)
	Contacts(ctx context.Context) ([]Contact, error)
	Chats(ctx context.Context) ([]Chat, error)
	Messages(ctx context.Context, chatID string, limit int) ([]Message, error)
	ChatInfo(ctx context.Context, chatID string) (*Chat, error)

	// Logout invalidates the stored backend session so the client will not
	// be resumed by a later discovery pass.
	Logout(ctx context.Context) error

	// Close tears the connection down without invalidating credentials.
	Close() error
}

// Factory builds a Client bound to one identifier and its credential
// directory.
type Factory func(clientID, credentialDir string) (Client, error)

// BackendLocal is the loopback backend, the default.
const BackendLocal = "local"

// NewFactory returns the Factory for the named backend.
func NewFactory(backend string) (Factory, error) {
	switch backend {
	case BackendLocal:
		return func(clientID, credentialDir string) (Client, error) {
			return NewLocalClient(clientID, credentialDir), nil
		}, nil
	default:
		return nil, oops.Wrapf(ErrUnknownBackend, "%s", backend)
	}
}
