// Package session implements the gateway's core: the per-client session
// state machine and the registry that owns every live session.
//
// Main components:
//   - Session: one client's lifecycle (initializing, pairing, authenticated,
//     ready, auth_failure, error, disconnected) with its pairing payload,
//     last error, and timestamps
//   - Registry: the in-memory session table keyed by client identifier, with
//     create/get/destroy/list semantics and the guarantee of at most one
//     live session per identifier
//   - the event pump: one goroutine per session consuming the backend's
//     lifecycle stream, the only writer of session state after creation
//
// Cross-cutting effects ride on the pump, not on the state machine: entering
// ready persists advisory metadata to the credential store, entering
// disconnected arms the grace-window eviction timer. A persistence failure
// is logged and never alters session state.
package session
