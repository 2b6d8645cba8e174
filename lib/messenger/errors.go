package messenger

import "github.com/samber/oops"

var (
	// error for forwarded operations before the backend is connected
	ErrNotConnected = oops.Errorf("messenger client is not connected")

	// error for chat lookups with an identifier the backend does not know
	ErrUnknownChat = oops.Errorf("unknown chat")

	// error for a messenger.backend value no factory matches
	ErrUnknownBackend = oops.Errorf("unknown messenger backend")
)
