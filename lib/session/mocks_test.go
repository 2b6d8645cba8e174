package session

// mocks_test.go — Shared fake backend and test helpers used across the
// session package tests.

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chatgate/go-chatgate/lib/credstore"
	"github.com/go-chatgate/go-chatgate/lib/messenger"
)

// =============================================================================
// FAKE BACKEND
// =============================================================================

// fakeClient is a scripted messenger backend: tests drive the lifecycle by
// emitting events directly instead of waiting on a real handshake.
type fakeClient struct {
	mu        sync.Mutex
	starts    int
	logouts   int
	closes    int
	startErr  error
	logoutErr error
	closeErr  error
	startGate chan struct{} // when non-nil, Start parks until the gate closes

	events    chan messenger.Event
	closeOnce sync.Once
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: make(chan messenger.Event, 16)}
}

func (f *fakeClient) Start(ctx context.Context) error {
	f.mu.Lock()
	f.starts++
	gate := f.startGate
	err := f.startErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeClient) Events() <-chan messenger.Event {
	return f.events
}

// emit scripts one lifecycle event.
func (f *fakeClient) emit(ev messenger.Event) {
	f.events <- ev
}

// closeStream simulates the backend vanishing: the event channel closes
// without the registry having asked for anything.
func (f *fakeClient) closeStream() {
	f.closeOnce.Do(func() { close(f.events) })
}

func (f *fakeClient) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return f.logoutErr
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	f.closes++
	err := f.closeErr
	f.mu.Unlock()
	f.closeStream()
	return err
}

func (f *fakeClient) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeClient) logoutCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logouts
}

func (f *fakeClient) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// Forwarded operations return canned data; the registry tests only check
// that ClientFor gates access to them.
func (f *fakeClient) SendMessage(ctx context.Context, to, body string) (*messenger.Message, error) {
	return &messenger.Message{ChatID: to, Body: body, FromMe: true}, nil
}

func (f *fakeClient) SendChatMessage(ctx context.Context, chatID, body string) (*messenger.Message, error) {
	return &messenger.Message{ChatID: chatID, Body: body, FromMe: true}, nil
}

func (f *fakeClient) Contacts(ctx context.Context) ([]messenger.Contact, error) {
	return nil, nil
}

func (f *fakeClient) Chats(ctx context.Context) ([]messenger.Chat, error) {
	return nil, nil
}

func (f *fakeClient) Messages(ctx context.Context, chatID string, limit int) ([]messenger.Message, error) {
	return nil, nil
}

func (f *fakeClient) ChatInfo(ctx context.Context, chatID string) (*messenger.Chat, error) {
	return &messenger.Chat{ID: chatID}, nil
}

// =============================================================================
// FAKE FACTORY
// =============================================================================

// fakeFactory hands out scripted clients per identifier, creating plain
// fakes on demand, and records every construction.
type fakeFactory struct {
	mu      sync.Mutex
	scripts map[string][]*fakeClient
	made    map[string]int
	err     error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		scripts: make(map[string][]*fakeClient),
		made:    make(map[string]int),
	}
}

// add queues c as the next client built for id.
func (ff *fakeFactory) add(id string, c *fakeClient) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.scripts[id] = append(ff.scripts[id], c)
}

func (ff *fakeFactory) factory(id, credentialDir string) (messenger.Client, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.err != nil {
		return nil, ff.err
	}
	ff.made[id]++
	if queue := ff.scripts[id]; len(queue) > 0 {
		ff.scripts[id] = queue[1:]
		return queue[0], nil
	}
	return newFakeClient(), nil
}

func (ff *fakeFactory) madeCount(id string) int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.made[id]
}

// =============================================================================
// HELPERS
// =============================================================================

// newTestRegistry builds a registry over a fresh temp credential store.
func newTestRegistry(t *testing.T, ff *fakeFactory, opts Options) (*Registry, *credstore.Store) {
	t.Helper()
	store := credstore.NewStore(filepath.Join(t.TempDir(), "store"))
	if err := store.Ensure(); err != nil {
		t.Fatalf("store.Ensure() failed: %v", err)
	}
	reg := NewRegistry(store, ff.factory, opts)
	t.Cleanup(func() { reg.StopAll() })
	return reg, store
}

// waitForStatus polls until the session for id reports want.
func waitForStatus(t *testing.T, r *Registry, id string, want Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s, ok := r.Get(id); ok && s.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if s, ok := r.Get(id); ok {
		t.Fatalf("session %s stuck in %s, want %s", id, s.Status(), want)
	}
	t.Fatalf("session %s not registered while waiting for status %s", id, want)
}

// waitForGone polls until id leaves the registry.
func waitForGone(t *testing.T, r *Registry, id string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := r.Get(id); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %s still registered after deadline", id)
}
