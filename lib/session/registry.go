package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-chatgate/go-chatgate/lib/credstore"
	"github.com/go-chatgate/go-chatgate/lib/messenger"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"golang.org/x/time/rate"
)

// DefaultGraceWindow is how long a disconnected session lingers before
// eviction when no override is configured.
const DefaultGraceWindow = 5 * time.Second

// DestroyOutcome reports what Destroy actually removed.
type DestroyOutcome string

const (
	// Destroyed means a live session was torn down and its credentials deleted.
	Destroyed DestroyOutcome = "destroyed"
	// RemovedFromDisk means no session was live but on-disk credentials were deleted.
	RemovedFromDisk DestroyOutcome = "removedFromDisk"
)

// ListEntry is one row of the session listing, in insertion order.
type ListEntry struct {
	ClientID string
	Status   Status
	HasQR    bool
}

// Options tunes a Registry. Zero values select the defaults.
type Options struct {
	// GraceWindow is how long a disconnected session may linger before
	// eviction. Default: DefaultGraceWindow.
	GraceWindow time.Duration

	// StartRate and StartBurst bound how fast new handshakes may start,
	// across all clients. Defaults: 1 per second, burst 3.
	StartRate  float64
	StartBurst int
}

// Registry owns every live Session, keyed by client identifier. It upholds
// at most one session per identifier: sessions are registered before their
// handshake starts, so every concurrent caller observes the same session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string // insertion order for List
	closed   bool

	store   *credstore.Store
	factory messenger.Factory
	grace   time.Duration
	limiter *rate.Limiter

	pumpWg sync.WaitGroup
}

// NewRegistry creates a registry over the given credential store and
// backend factory.
func NewRegistry(store *credstore.Store, factory messenger.Factory, opts Options) *Registry {
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = DefaultGraceWindow
	}
	if opts.StartRate <= 0 {
		opts.StartRate = 1
	}
	if opts.StartBurst < 1 {
		opts.StartBurst = 3
	}
	log.WithFields(logger.Fields{
		"at":           "NewRegistry",
		"grace_window": opts.GraceWindow.String(),
	}).Debug("creating session registry")
	return &Registry{
		sessions: make(map[string]*Session),
		store:    store,
		factory:  factory,
		grace:    opts.GraceWindow,
		limiter:  rate.NewLimiter(rate.Limit(opts.StartRate), opts.StartBurst),
	}
}

// Create returns the session for id, starting one if needed.
//
// An existing session that is not disconnected is returned unchanged, so
// repeated starts never trigger a duplicate handshake. A disconnected
// session is replaced by a fresh one (its eviction timer canceled, its
// backend closed). New sessions are registered before the handshake starts;
// a synchronous start failure leaves the session registered in the error
// state for inspection and returns the failure to this caller only.
func (r *Registry) Create(ctx context.Context, id string) (*Session, error) {
	return r.create(ctx, id, true)
}

// Rehydrate is Create without the handshake rate limit. The limiter exists
// to stop callers from hammering the backend with pairing attempts; the
// gateway's own startup pass over the credential store is not that, and a
// store holding more accounts than the burst allows must still come back up.
func (r *Registry) Rehydrate(ctx context.Context, id string) (*Session, error) {
	return r.create(ctx, id, false)
}

func (r *Registry) create(ctx context.Context, id string, limited bool) (*Session, error) {
	if err := ValidateClientID(id); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, oops.Errorf("session registry is stopped")
	}

	var replaced *Session
	if existing, ok := r.sessions[id]; ok {
		if existing.Status() != StatusDisconnected {
			r.mu.Unlock()
			log.WithFields(logger.Fields{
				"at":        "(Registry) Create",
				"client_id": id,
			}).Debug("session already live, returning it")
			return existing, nil
		}
		replaced = existing
	}

	// Only genuinely new handshakes pass the limiter; the idempotent path
	// above is free. Backends penalize pairing spam.
	if limited && !r.limiter.Allow() {
		r.mu.Unlock()
		return nil, oops.Wrapf(ErrRateLimited, "client %s", id)
	}

	credDir, err := r.store.EnsureClientDir(id)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	client, err := r.factory(id, credDir)
	if err != nil {
		r.mu.Unlock()
		return nil, oops.Wrapf(err, "building messenger client for %s", id)
	}

	s := newSession(id, client)
	r.sessions[id] = s
	if replaced == nil {
		r.order = append(r.order, id)
	}
	r.pumpWg.Add(1)
	go r.pump(s)
	r.mu.Unlock()

	if replaced != nil {
		replaced.cancelEviction()
		if err := replaced.Client().Close(); err != nil {
			log.WithError(err).WithField("client_id", id).Warn("Failed to close replaced session's backend")
		}
		log.WithField("client_id", id).Info("replacing disconnected session")
	} else {
		log.WithField("client_id", id).Info("session created")
	}

	if err := client.Start(ctx); err != nil {
		log.WithError(err).WithField("client_id", id).Error("Handshake start failed")
		r.applyEvent(s, messenger.Event{Kind: messenger.KindError, Reason: err.Error()})
		return nil, oops.Wrapf(err, "starting session for %s", id)
	}
	return s, nil
}

// Get retrieves the live session for id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// ClientFor returns the backend client for id, running the request-path
// checks in order: identifier validity, existence, readiness.
func (r *Registry) ClientFor(id string) (messenger.Client, error) {
	if err := ValidateClientID(id); err != nil {
		return nil, err
	}
	s, ok := r.Get(id)
	if !ok {
		return nil, oops.Wrapf(ErrNotFound, "client %s", id)
	}
	if status := s.Status(); status != StatusReady {
		return nil, oops.Wrapf(ErrNotReady, "client %s is %s", id, status)
	}
	return s.Client(), nil
}

// List returns one entry per session, in insertion order.
func (r *Registry) List() []ListEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ListEntry, 0, len(r.order))
	for _, id := range r.order {
		s, ok := r.sessions[id]
		if !ok {
			continue
		}
		snap := s.Snapshot()
		out = append(out, ListEntry{
			ClientID: id,
			Status:   snap.Status,
			HasQR:    snap.PairingPayload != "",
		})
	}
	return out
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// StatusSnapshot maps every live client identifier to its current status.
func (r *Registry) StatusSnapshot() map[string]Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Status, len(r.sessions))
	for id, s := range r.sessions {
		out[id] = s.Status()
	}
	return out
}

// Destroy removes every trace of id: a live session is logged out, closed,
// and deleted together with its credential directory; with no live session,
// on-disk credentials alone are deleted. Teardown failures are logged and
// never block the cleanup. Only a client known neither in memory nor on
// disk yields ErrNotFound.
func (r *Registry) Destroy(ctx context.Context, id string) (DestroyOutcome, error) {
	if err := ValidateClientID(id); err != nil {
		return "", err
	}

	r.mu.Lock()
	s, live := r.sessions[id]
	if live {
		delete(r.sessions, id)
		r.removeFromOrderLocked(id)
	}
	r.mu.Unlock()

	if live {
		s.cancelEviction()
		if err := s.Client().Logout(ctx); err != nil {
			log.WithError(err).WithField("client_id", id).Warn("Logout failed during destroy")
		}
		if err := s.Client().Close(); err != nil {
			log.WithError(err).WithField("client_id", id).Warn("Backend close failed during destroy")
		}
		if err := r.store.RemoveClient(id); err != nil {
			log.WithError(err).WithField("client_id", id).Warn("Credential cleanup failed during destroy")
		}
		log.WithField("client_id", id).Info("session destroyed")
		return Destroyed, nil
	}

	if r.store.HasClient(id) {
		if err := r.store.RemoveClient(id); err != nil {
			return "", err
		}
		log.WithField("client_id", id).Info("removed on-disk session credentials")
		return RemovedFromDisk, nil
	}

	return "", oops.Wrapf(ErrNotFound, "client %s", id)
}

// StopAll tears down every live session without touching credential files,
// so the next process start can rehydrate them. This is the interrupt path;
// the registry accepts no new sessions afterwards.
func (r *Registry) StopAll() {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.order = nil
	r.mu.Unlock()

	log.WithField("count", len(sessions)).Info("stopping all sessions")
	for _, s := range sessions {
		s.cancelEviction()
		if err := s.Client().Close(); err != nil {
			log.WithError(err).WithField("client_id", s.ID()).Warn("Backend close failed during shutdown")
		}
	}
	r.pumpWg.Wait()
}

// pump consumes one backend's lifecycle stream in order. It is the only
// writer of session state after creation.
func (r *Registry) pump(s *Session) {
	defer r.pumpWg.Done()
	for ev := range s.Client().Events() {
		r.applyEvent(s, ev)
	}
	r.handleStreamClosed(s)
}

// applyEvent advances the session and fires the cross-cutting effects that
// ride on specific transitions.
func (r *Registry) applyEvent(s *Session, ev messenger.Event) {
	_, to, applied := s.apply(ev)
	if !applied {
		return
	}
	switch to {
	case StatusReady:
		r.persistReady(s)
	case StatusDisconnected:
		s.armEviction(r.grace, func() { r.evict(s) })
	}
}

// persistReady records the ready transition in the credential store.
// Best-effort: a failure is a warning, never a state change.
func (r *Registry) persistReady(s *Session) {
	if err := r.store.RecordReady(s.ID(), time.Now()); err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"at":        "(Registry) persistReady",
			"client_id": s.ID(),
		}).Warn("Failed to persist session metadata")
	}
}

// evict removes s after its grace window expired. The pointer identity
// check makes a timer that outlives replacement harmless.
func (r *Registry) evict(s *Session) {
	r.mu.Lock()
	current, ok := r.sessions[s.ID()]
	if !ok || current != s || s.Status() != StatusDisconnected {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, s.ID())
	r.removeFromOrderLocked(s.ID())
	r.mu.Unlock()

	log.WithField("client_id", s.ID()).Info("evicting session after grace window")
	if err := s.Client().Close(); err != nil {
		log.WithError(err).WithField("client_id", s.ID()).Warn("Backend close failed during eviction")
	}
}

// handleStreamClosed runs when a backend closes its event stream. A backend
// that vanished mid-session is treated as disconnected so the grace window
// can reclaim it; failed or already-disconnected sessions stay put for
// inspection, and sessions no longer registered need nothing.
func (r *Registry) handleStreamClosed(s *Session) {
	r.mu.RLock()
	current := r.sessions[s.ID()] == s
	r.mu.RUnlock()
	if !current {
		return
	}

	switch s.Status() {
	case StatusDisconnected, StatusError, StatusAuthFailure:
		return
	}
	log.WithFields(logger.Fields{
		"at":        "(Registry) handleStreamClosed",
		"client_id": s.ID(),
	}).Warn("backend event stream closed unexpectedly")
	r.applyEvent(s, messenger.Event{Kind: messenger.KindDisconnected, Reason: "backend event stream closed"})
}

// removeFromOrderLocked drops id from the insertion-order index.
// Must be called with r.mu locked.
func (r *Registry) removeFromOrderLocked(id string) {
	for i, other := range r.order {
		if other == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
