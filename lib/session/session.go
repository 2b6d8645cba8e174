package session

import (
	"sync"
	"time"

	"github.com/go-chatgate/go-chatgate/lib/messenger"
	"github.com/go-i2p/logger"
)

// Session represents one client's live connection to a messaging backend.
type Session struct {
	mu sync.RWMutex

	// Session identity
	id     string           // Client identifier (registry key, immutable)
	client messenger.Client // The backend connection (immutable)

	// Lifecycle state
	status         Status
	pairingPayload string // Non-empty exactly while status == pairing
	lastError      string // Set on error/auth_failure, cleared on recovery
	createdAt      time.Time
	connectedAt    time.Time // Set each time the session reaches ready

	// Eviction
	evictTimer *time.Timer // Armed only while disconnected
}

// Snapshot is an immutable view of a session for API responses.
type Snapshot struct {
	ID             string
	Status         Status
	PairingPayload string
	LastError      string
	CreatedAt      time.Time
	ConnectedAt    time.Time
}

func newSession(id string, client messenger.Client) *Session {
	return &Session{
		id:        id,
		client:    client,
		status:    StatusInitializing,
		createdAt: time.Now(),
	}
}

// ID returns the client identifier.
func (s *Session) ID() string {
	return s.id
}

// Client returns the backend connection.
func (s *Session) Client() messenger.Client {
	return s.client
}

// Status returns the current lifecycle status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// PairingPayload returns the current pairing payload, empty outside pairing.
func (s *Session) PairingPayload() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pairingPayload
}

// LastError returns the most recent backend failure reason.
func (s *Session) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// CreatedAt returns when the session was registered.
func (s *Session) CreatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.createdAt
}

// ConnectedAt returns when the session last reached ready, zero if never.
func (s *Session) ConnectedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connectedAt
}

// Snapshot returns a consistent copy of the session's visible state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:             s.id,
		Status:         s.status,
		PairingPayload: s.pairingPayload,
		LastError:      s.lastError,
		CreatedAt:      s.createdAt,
		ConnectedAt:    s.connectedAt,
	}
}

// apply advances the session for one backend event. Events for one session
// arrive in emission order through the registry's pump, which is the only
// writer after creation. Illegal transitions are dropped with a debug log.
func (s *Session) apply(ev messenger.Event) (from, to Status, applied bool) {
	target, known := statusForKind(ev.Kind)
	if !known {
		log.WithFields(logger.Fields{
			"at":        "(Session) apply",
			"client_id": s.id,
			"kind":      string(ev.Kind),
		}).Debug("ignoring unknown event kind")
		return "", "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from = s.status

	// A repeated pairing event refreshes the rotated payload without a
	// transition; backends rotate pairing codes while waiting for a scan.
	if from == StatusPairing && target == StatusPairing {
		s.pairingPayload = ev.Payload
		return from, target, false
	}

	if !CanTransition(from, target) {
		log.WithFields(logger.Fields{
			"at":        "(Session) apply",
			"client_id": s.id,
			"from":      string(from),
			"to":        string(target),
		}).Debug("ignoring illegal transition")
		return from, target, false
	}

	s.status = target
	switch target {
	case StatusPairing:
		s.pairingPayload = ev.Payload
	case StatusReady:
		s.pairingPayload = ""
		s.lastError = ""
		s.connectedAt = time.Now()
	case StatusError, StatusAuthFailure:
		s.pairingPayload = ""
		s.lastError = ev.Reason
	case StatusInitializing:
		s.pairingPayload = ""
		s.lastError = ""
	default:
		s.pairingPayload = ""
	}

	if from == StatusDisconnected {
		s.stopEvictTimerLocked()
	}

	log.WithFields(logger.Fields{
		"at":        "(Session) apply",
		"client_id": s.id,
		"from":      string(from),
		"to":        string(target),
	}).Debug("session transition")
	return from, target, true
}

// cancelEviction stops a pending grace-window timer, if any.
func (s *Session) cancelEviction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopEvictTimerLocked()
}

func (s *Session) stopEvictTimerLocked() {
	if s.evictTimer != nil {
		s.evictTimer.Stop()
		s.evictTimer = nil
	}
}

// armEviction schedules fire after the grace window, unless the session has
// already left disconnected. Any previous timer is replaced.
func (s *Session) armEviction(grace time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusDisconnected {
		return
	}
	s.stopEvictTimerLocked()
	s.evictTimer = time.AfterFunc(grace, fire)
}
