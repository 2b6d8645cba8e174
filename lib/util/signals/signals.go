package signals

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"
)

// defaultShutdownTimeout bounds how long the interrupt handler chain may run
// before the process gives up waiting. Session teardown against a remote
// messaging backend can stall; the gateway must still exit.
const defaultShutdownTimeout = 30 * time.Second

// sigChan is buffered to avoid missing signals delivered while no receiver is ready.
var sigChan = make(chan os.Signal, 1)

// Handler is a function called when a signal is received.
type Handler func()

// HandlerID is a unique identifier returned by registration functions,
// used to deregister individual handlers.
type HandlerID int

type registeredHandler struct {
	id HandlerID
	fn Handler
}

var (
	mu              sync.RWMutex
	reloaders       []registeredHandler
	interrupters    []registeredHandler
	nextID          HandlerID
	stopOnce        sync.Once
	shutdownTimeout = defaultShutdownTimeout
)

// RegisterReloadHandler registers a handler called on SIGHUP.
// Handlers run in registration order. Nil handlers are ignored and return -1.
func RegisterReloadHandler(f Handler) HandlerID {
	if f == nil {
		return -1
	}
	mu.Lock()
	defer mu.Unlock()
	id := nextID
	nextID++
	reloaders = append(reloaders, registeredHandler{id: id, fn: f})
	return id
}

// DeregisterReloadHandler removes a previously registered reload handler by ID.
func DeregisterReloadHandler(id HandlerID) {
	mu.Lock()
	defer mu.Unlock()
	for i, h := range reloaders {
		if h.id == id {
			reloaders = append(reloaders[:i], reloaders[i+1:]...)
			return
		}
	}
}

// RegisterInterruptHandler registers a handler called on SIGINT/SIGTERM.
// Handlers run in registration order, so the gateway registers session
// teardown before the HTTP listener stop: backends have to be closed while
// the process can still reach them. Credential files are left on disk so the
// next start can resume the same accounts.
// Nil handlers are ignored and return -1.
func RegisterInterruptHandler(f Handler) HandlerID {
	if f == nil {
		return -1
	}
	mu.Lock()
	defer mu.Unlock()
	id := nextID
	nextID++
	interrupters = append(interrupters, registeredHandler{id: id, fn: f})
	return id
}

// DeregisterInterruptHandler removes a previously registered interrupt handler by ID.
func DeregisterInterruptHandler(id HandlerID) {
	mu.Lock()
	defer mu.Unlock()
	for i, h := range interrupters {
		if h.id == id {
			interrupters = append(interrupters[:i], interrupters[i+1:]...)
			return
		}
	}
}

// SetShutdownTimeout configures the bound on the interrupt handler chain.
// Zero or negative restores the default.
func SetShutdownTimeout(timeout time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	if timeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	} else {
		shutdownTimeout = timeout
	}
}

func handleReload() {
	runHandlers(snapshotHandlers(&reloaders), "reload")
}

// handleInterrupted runs the interrupt chain with a timeout so a wedged
// logout cannot keep the process alive forever.
func handleInterrupted() {
	snapshot := snapshotHandlers(&interrupters)
	mu.RLock()
	timeout := shutdownTimeout
	mu.RUnlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		runHandlers(snapshot, "interrupt")
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		fmt.Fprintf(os.Stderr, "signals: interrupt handlers timed out after %s\n", timeout)
	}
}

func snapshotHandlers(list *[]registeredHandler) []registeredHandler {
	mu.RLock()
	defer mu.RUnlock()
	snapshot := make([]registeredHandler, len(*list))
	copy(snapshot, *list)
	return snapshot
}

func runHandlers(snapshot []registeredHandler, kind string) {
	for _, h := range snapshot {
		func() {
			defer func() {
				if r := recover(); r != nil {
					// No logger here; stderr keeps panicking handlers visible.
					fmt.Fprintf(os.Stderr, "signals: panic in %s handler: %v\n", kind, r)
				}
			}()
			h.fn()
		}()
	}
}

// StopHandle closes the signal channel, causing Handle() to return.
// Safe to call multiple times; only the first call takes effect.
func StopHandle() {
	stopOnce.Do(func() {
		signal.Stop(sigChan)
		close(sigChan)
	})
}
