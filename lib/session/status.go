package session

import "github.com/go-chatgate/go-chatgate/lib/messenger"

// Status is a session's position in the connection lifecycle. The string
// values appear verbatim in API responses.
type Status string

const (
	StatusInitializing  Status = "initializing"
	StatusPairing       Status = "pairing"
	StatusAuthenticated Status = "authenticated"
	StatusReady         Status = "ready"
	StatusAuthFailure   Status = "auth_failure"
	StatusError         Status = "error"
	StatusDisconnected  Status = "disconnected"
)

// transitions is the closed set of legal status changes. Backends replay and
// reorder events under churn; anything outside this set is dropped as a
// no-op so a stray event can never corrupt a session.
var transitions = map[Status]map[Status]bool{
	StatusInitializing: {
		StatusPairing:       true,
		StatusAuthenticated: true, // resumed session skips pairing
		StatusReady:         true,
		StatusError:         true,
		StatusDisconnected:  true,
	},
	StatusPairing: {
		StatusAuthenticated: true,
		StatusAuthFailure:   true,
		StatusDisconnected:  true,
	},
	StatusAuthenticated: {
		StatusReady:        true,
		StatusAuthFailure:  true,
		StatusDisconnected: true,
	},
	StatusReady: {
		StatusDisconnected: true,
	},
	StatusError: {
		StatusInitializing: true, // backend retries the handshake
		StatusDisconnected: true,
	},
	StatusAuthFailure: {
		StatusInitializing: true,
		StatusDisconnected: true,
	},
	StatusDisconnected: {
		StatusInitializing:  true,
		StatusAuthenticated: true, // backend reconnected within the grace window
		StatusReady:         true,
	},
}

// CanTransition reports whether moving from one status to the next is legal.
func CanTransition(from, next Status) bool {
	return transitions[from][next]
}

// statusForKind maps a backend event kind to the status it targets.
func statusForKind(kind messenger.EventKind) (Status, bool) {
	switch kind {
	case messenger.KindInitializing:
		return StatusInitializing, true
	case messenger.KindPairing:
		return StatusPairing, true
	case messenger.KindAuthenticated:
		return StatusAuthenticated, true
	case messenger.KindReady:
		return StatusReady, true
	case messenger.KindAuthFailure:
		return StatusAuthFailure, true
	case messenger.KindError:
		return StatusError, true
	case messenger.KindDisconnected:
		return StatusDisconnected, true
	default:
		return "", false
	}
}
