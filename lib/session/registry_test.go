package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chatgate/go-chatgate/lib/messenger"
)

func TestRegistryCreateValidatesIdentifier(t *testing.T) {
	reg, _ := newTestRegistry(t, newFakeFactory(), Options{})

	bad := []string{"", "../evil", "a/b", "has space", "-lead", "_lead", strings.Repeat("a", 65)}
	for _, id := range bad {
		if _, err := reg.Create(context.Background(), id); !errors.Is(err, ErrValidation) {
			t.Errorf("Create(%q) error = %v, want ErrValidation", id, err)
		}
	}

	good := []string{"a", "alice", "A-1_b", strings.Repeat("a", 64)}
	for _, id := range good {
		if err := ValidateClientID(id); err != nil {
			t.Errorf("ValidateClientID(%q) = %v, want nil", id, err)
		}
	}
}

func TestRegistryCreateIdempotentWhileLive(t *testing.T) {
	ff := newFakeFactory()
	c := newFakeClient()
	ff.add("alice", c)
	reg, _ := newTestRegistry(t, ff, Options{})
	ctx := context.Background()

	s1, err := reg.Create(ctx, "alice")
	if err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	s2, err := reg.Create(ctx, "alice")
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}

	if s1 != s2 {
		t.Error("second Create returned a different session")
	}
	if got := ff.madeCount("alice"); got != 1 {
		t.Errorf("factory built %d clients, want 1", got)
	}
	if got := c.startCount(); got != 1 {
		t.Errorf("backend started %d times, want 1", got)
	}
}

// Concurrent starts for one identifier must all land on the same session,
// with exactly one handshake.
func TestRegistryCreateConcurrent(t *testing.T) {
	ff := newFakeFactory()
	reg, _ := newTestRegistry(t, ff, Options{StartRate: 1000, StartBurst: 1000})
	ctx := context.Background()

	const callers = 16
	sessions := make([]*Session, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = reg.Create(ctx, "alice")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if sessions[i] != sessions[0] {
			t.Fatalf("caller %d got a different session", i)
		}
	}
	if got := ff.madeCount("alice"); got != 1 {
		t.Errorf("factory built %d clients under contention, want 1", got)
	}
	if got := reg.Count(); got != 1 {
		t.Errorf("registry holds %d sessions, want 1", got)
	}
}

// The session must be visible in the registry before the handshake start
// returns, so concurrent callers join it instead of racing a second one.
func TestRegistryCreateRegistersBeforeHandshake(t *testing.T) {
	ff := newFakeFactory()
	c := newFakeClient()
	c.startGate = make(chan struct{})
	ff.add("alice", c)
	reg, _ := newTestRegistry(t, ff, Options{})
	ctx := context.Background()

	done := make(chan *Session, 1)
	go func() {
		s, err := reg.Create(ctx, "alice")
		if err != nil {
			t.Errorf("parked Create failed: %v", err)
		}
		done <- s
	}()

	// the first handshake is parked inside Start; the session must already
	// be observable
	waitForStatus(t, reg, "alice", StatusInitializing)
	joined, err := reg.Create(ctx, "alice")
	if err != nil {
		t.Fatalf("joining Create failed: %v", err)
	}

	close(c.startGate)
	select {
	case first := <-done:
		if first != joined {
			t.Error("joining Create got a different session than the initiator")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("parked Create never returned")
	}
}

func TestRegistrySyncStartFailureKeepsSessionForInspection(t *testing.T) {
	ff := newFakeFactory()
	c := newFakeClient()
	c.startErr = errors.New("backend exploded")
	ff.add("alice", c)
	reg, _ := newTestRegistry(t, ff, Options{})

	_, err := reg.Create(context.Background(), "alice")
	if err == nil {
		t.Fatal("Create succeeded despite failing handshake start")
	}

	s, ok := reg.Get("alice")
	if !ok {
		t.Fatal("failed session was not kept registered")
	}
	waitForStatus(t, reg, "alice", StatusError)
	if !strings.Contains(s.LastError(), "backend exploded") {
		t.Errorf("LastError = %q, want the backend failure", s.LastError())
	}
}

func TestRegistryCreateRateLimited(t *testing.T) {
	ff := newFakeFactory()
	reg, _ := newTestRegistry(t, ff, Options{StartRate: 0.001, StartBurst: 1})
	ctx := context.Background()

	if _, err := reg.Create(ctx, "alice"); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if _, err := reg.Create(ctx, "bob"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("second Create error = %v, want ErrRateLimited", err)
	}
	// the idempotent path is never limited
	if _, err := reg.Create(ctx, "alice"); err != nil {
		t.Errorf("idempotent Create failed under rate limit: %v", err)
	}
}

func TestRegistryPairingPayloadLifecycle(t *testing.T) {
	ff := newFakeFactory()
	c := newFakeClient()
	ff.add("alice", c)
	reg, _ := newTestRegistry(t, ff, Options{})

	s, err := reg.Create(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	c.emit(messenger.Event{Kind: messenger.KindPairing, Payload: "qr-1"})
	waitForStatus(t, reg, "alice", StatusPairing)
	if s.PairingPayload() != "qr-1" {
		t.Errorf("PairingPayload = %q, want qr-1", s.PairingPayload())
	}
	if entries := reg.List(); len(entries) != 1 || !entries[0].HasQR {
		t.Errorf("List = %+v, want one entry with HasQR", entries)
	}

	// rotated code refreshes in place
	c.emit(messenger.Event{Kind: messenger.KindPairing, Payload: "qr-2"})
	deadline := time.Now().Add(5 * time.Second)
	for s.PairingPayload() != "qr-2" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.PairingPayload() != "qr-2" {
		t.Errorf("PairingPayload = %q, want refreshed qr-2", s.PairingPayload())
	}
	if s.Status() != StatusPairing {
		t.Errorf("Status = %s after refresh, want pairing", s.Status())
	}

	c.emit(messenger.Event{Kind: messenger.KindAuthenticated})
	waitForStatus(t, reg, "alice", StatusAuthenticated)
	if s.PairingPayload() != "" {
		t.Errorf("PairingPayload = %q after authentication, want empty", s.PairingPayload())
	}
}

func TestRegistryReadyPersistsMetadata(t *testing.T) {
	ff := newFakeFactory()
	c := newFakeClient()
	ff.add("alice", c)
	reg, store := newTestRegistry(t, ff, Options{})

	if _, err := reg.Create(context.Background(), "alice"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	c.emit(messenger.Event{Kind: messenger.KindReady})
	waitForStatus(t, reg, "alice", StatusReady)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if meta, ok := store.ClientInfo("alice"); ok {
			if meta.Status != "ready" || meta.LastReady.IsZero() {
				t.Errorf("metadata = %+v, want ready with timestamp", meta)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no metadata record appeared after ready")
}

func TestRegistryPersistFailureDoesNotAffectStatus(t *testing.T) {
	ff := newFakeFactory()
	c := newFakeClient()
	ff.add("alice", c)
	reg, store := newTestRegistry(t, ff, Options{})

	if _, err := reg.Create(context.Background(), "alice"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// make the metadata write fail by removing the store root
	if err := os.RemoveAll(store.Path()); err != nil {
		t.Fatalf("removing store root: %v", err)
	}

	c.emit(messenger.Event{Kind: messenger.KindReady})
	waitForStatus(t, reg, "alice", StatusReady)

	time.Sleep(50 * time.Millisecond)
	if s, ok := reg.Get("alice"); !ok || s.Status() != StatusReady {
		t.Error("persistence failure disturbed the ready status")
	}
}

func TestRegistryGraceEviction(t *testing.T) {
	ff := newFakeFactory()
	c := newFakeClient()
	ff.add("alice", c)
	reg, _ := newTestRegistry(t, ff, Options{GraceWindow: 50 * time.Millisecond})

	if _, err := reg.Create(context.Background(), "alice"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	c.emit(messenger.Event{Kind: messenger.KindReady})
	waitForStatus(t, reg, "alice", StatusReady)

	c.emit(messenger.Event{Kind: messenger.KindDisconnected, Reason: "network drop"})
	waitForStatus(t, reg, "alice", StatusDisconnected)

	waitForGone(t, reg, "alice")
	if c.closeCount() == 0 {
		t.Error("evicted session's backend was never closed")
	}
}

func TestRegistryReconnectCancelsEviction(t *testing.T) {
	ff := newFakeFactory()
	c := newFakeClient()
	ff.add("alice", c)
	reg, _ := newTestRegistry(t, ff, Options{GraceWindow: 150 * time.Millisecond})

	s, err := reg.Create(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	c.emit(messenger.Event{Kind: messenger.KindReady})
	waitForStatus(t, reg, "alice", StatusReady)

	c.emit(messenger.Event{Kind: messenger.KindDisconnected})
	waitForStatus(t, reg, "alice", StatusDisconnected)
	c.emit(messenger.Event{Kind: messenger.KindReady})
	waitForStatus(t, reg, "alice", StatusReady)

	// well past the grace window: the reconnected session must survive
	time.Sleep(300 * time.Millisecond)
	if got, ok := reg.Get("alice"); !ok || got != s {
		t.Error("reconnected session was evicted by a stale grace timer")
	}
}

func TestRegistryCreateReplacesDisconnected(t *testing.T) {
	ff := newFakeFactory()
	c1 := newFakeClient()
	c2 := newFakeClient()
	ff.add("alice", c1)
	ff.add("alice", c2)
	reg, _ := newTestRegistry(t, ff, Options{GraceWindow: time.Hour})
	ctx := context.Background()

	s1, err := reg.Create(ctx, "alice")
	if err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	c1.emit(messenger.Event{Kind: messenger.KindReady})
	waitForStatus(t, reg, "alice", StatusReady)
	c1.emit(messenger.Event{Kind: messenger.KindDisconnected})
	waitForStatus(t, reg, "alice", StatusDisconnected)

	s2, err := reg.Create(ctx, "alice")
	if err != nil {
		t.Fatalf("replacing Create failed: %v", err)
	}
	if s2 == s1 {
		t.Fatal("disconnected session was returned instead of replaced")
	}
	if s2.Status() != StatusInitializing {
		t.Errorf("replacement status = %s, want initializing", s2.Status())
	}
	if c1.closeCount() == 0 {
		t.Error("replaced session's backend was not closed")
	}
	if entries := reg.List(); len(entries) != 1 || entries[0].ClientID != "alice" {
		t.Errorf("List = %+v, want the single replaced entry", entries)
	}
}

func TestRegistryDestroyLiveSession(t *testing.T) {
	ff := newFakeFactory()
	c := newFakeClient()
	ff.add("alice", c)
	reg, store := newTestRegistry(t, ff, Options{})
	ctx := context.Background()

	if _, err := reg.Create(ctx, "alice"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	// leave a credential file like a real backend would
	if err := os.WriteFile(filepath.Join(store.ClientDir("alice"), "session.json"), []byte(`{}`), 0o600); err != nil {
		t.Fatalf("seeding credential file: %v", err)
	}

	outcome, err := reg.Destroy(ctx, "alice")
	if err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if outcome != Destroyed {
		t.Errorf("outcome = %s, want %s", outcome, Destroyed)
	}
	if c.logoutCount() != 1 {
		t.Errorf("logouts = %d, want 1", c.logoutCount())
	}
	if c.closeCount() == 0 {
		t.Error("backend was not closed")
	}
	if store.HasClient("alice") {
		t.Error("credential directory survived destroy")
	}
	if reg.Count() != 0 {
		t.Errorf("Count = %d after destroy, want 0", reg.Count())
	}

	// nothing remains anywhere: a repeat destroy reports not found
	if _, err := reg.Destroy(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Destroy error = %v, want ErrNotFound", err)
	}
}

func TestRegistryDestroyDiskOnly(t *testing.T) {
	reg, store := newTestRegistry(t, newFakeFactory(), Options{})

	if _, err := store.EnsureClientDir("ghost"); err != nil {
		t.Fatalf("seeding ghost dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(store.ClientDir("ghost"), "session.json"), []byte(`{}`), 0o600); err != nil {
		t.Fatalf("seeding ghost credentials: %v", err)
	}

	outcome, err := reg.Destroy(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if outcome != RemovedFromDisk {
		t.Errorf("outcome = %s, want %s", outcome, RemovedFromDisk)
	}
	if store.HasClient("ghost") {
		t.Error("on-disk credentials survived destroy")
	}
}

func TestRegistryDestroyTeardownFailuresStillClean(t *testing.T) {
	ff := newFakeFactory()
	c := newFakeClient()
	c.logoutErr = errors.New("logout refused")
	c.closeErr = errors.New("close refused")
	ff.add("alice", c)
	reg, store := newTestRegistry(t, ff, Options{})
	ctx := context.Background()

	if _, err := reg.Create(ctx, "alice"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	outcome, err := reg.Destroy(ctx, "alice")
	if err != nil {
		t.Fatalf("Destroy failed despite teardown errors being non-fatal: %v", err)
	}
	if outcome != Destroyed {
		t.Errorf("outcome = %s, want %s", outcome, Destroyed)
	}
	if reg.Count() != 0 {
		t.Error("session survived destroy")
	}
	if store.HasClient("alice") {
		t.Error("credential directory survived destroy")
	}
}

func TestRegistryStopAllPreservesCredentials(t *testing.T) {
	ff := newFakeFactory()
	c := newFakeClient()
	ff.add("alice", c)
	reg, store := newTestRegistry(t, ff, Options{})
	ctx := context.Background()

	if _, err := reg.Create(ctx, "alice"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(store.ClientDir("alice"), "session.json"), []byte(`{}`), 0o600); err != nil {
		t.Fatalf("seeding credential file: %v", err)
	}

	reg.StopAll()

	if reg.Count() != 0 {
		t.Errorf("Count = %d after StopAll, want 0", reg.Count())
	}
	if c.closeCount() == 0 {
		t.Error("backend was not closed on shutdown")
	}
	if c.logoutCount() != 0 {
		t.Error("shutdown logged the client out; credentials must survive restarts")
	}
	if !store.HasSession("alice") {
		t.Error("credential files did not survive StopAll")
	}
}

func TestRegistryListInsertionOrder(t *testing.T) {
	ff := newFakeFactory()
	reg, _ := newTestRegistry(t, ff, Options{StartBurst: 10})
	ctx := context.Background()

	for _, id := range []string{"bravo", "alpha", "charlie"} {
		if _, err := reg.Create(ctx, id); err != nil {
			t.Fatalf("Create(%s) failed: %v", id, err)
		}
	}

	entries := reg.List()
	want := []string{"bravo", "alpha", "charlie"}
	if len(entries) != len(want) {
		t.Fatalf("List returned %d entries, want %d", len(entries), len(want))
	}
	for i, id := range want {
		if entries[i].ClientID != id {
			t.Errorf("List[%d] = %s, want %s", i, entries[i].ClientID, id)
		}
	}
}

func TestRegistryClientForGatesAccess(t *testing.T) {
	ff := newFakeFactory()
	c := newFakeClient()
	ff.add("alice", c)
	reg, _ := newTestRegistry(t, ff, Options{})
	ctx := context.Background()

	if _, err := reg.ClientFor("../bad"); !errors.Is(err, ErrValidation) {
		t.Errorf("ClientFor(../bad) error = %v, want ErrValidation", err)
	}
	if _, err := reg.ClientFor("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ClientFor(nobody) error = %v, want ErrNotFound", err)
	}

	if _, err := reg.Create(ctx, "alice"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := reg.ClientFor("alice"); !errors.Is(err, ErrNotReady) {
		t.Errorf("ClientFor before ready error = %v, want ErrNotReady", err)
	}

	c.emit(messenger.Event{Kind: messenger.KindReady})
	waitForStatus(t, reg, "alice", StatusReady)
	client, err := reg.ClientFor("alice")
	if err != nil {
		t.Fatalf("ClientFor after ready failed: %v", err)
	}
	if client == nil {
		t.Fatal("ClientFor returned a nil client")
	}
}

// A backend whose event stream dies mid-session is indistinguishable from a
// disconnect, and the grace window reclaims it.
func TestRegistryStreamCloseBecomesDisconnect(t *testing.T) {
	ff := newFakeFactory()
	c := newFakeClient()
	ff.add("alice", c)
	reg, _ := newTestRegistry(t, ff, Options{GraceWindow: 50 * time.Millisecond})

	if _, err := reg.Create(context.Background(), "alice"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	c.emit(messenger.Event{Kind: messenger.KindReady})
	waitForStatus(t, reg, "alice", StatusReady)

	c.closeStream()
	waitForGone(t, reg, "alice")
}

func TestRegistryStatusSnapshot(t *testing.T) {
	ff := newFakeFactory()
	c := newFakeClient()
	ff.add("alice", c)
	reg, _ := newTestRegistry(t, ff, Options{StartBurst: 10})
	ctx := context.Background()

	if _, err := reg.Create(ctx, "alice"); err != nil {
		t.Fatalf("Create(alice) failed: %v", err)
	}
	if _, err := reg.Create(ctx, "bob"); err != nil {
		t.Fatalf("Create(bob) failed: %v", err)
	}
	c.emit(messenger.Event{Kind: messenger.KindReady})
	waitForStatus(t, reg, "alice", StatusReady)

	snap := reg.StatusSnapshot()
	if snap["alice"] != StatusReady {
		t.Errorf("snapshot[alice] = %s, want ready", snap["alice"])
	}
	if snap["bob"] != StatusInitializing {
		t.Errorf("snapshot[bob] = %s, want initializing", snap["bob"])
	}
}
