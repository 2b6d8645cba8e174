// Package messenger defines the contract between the gateway and a messaging
// backend, plus the loopback implementation used by default.
//
// # Client Lifecycle
//
// A Client is one stateful connection to a messaging backend, bound to a
// single client identifier and its credential directory. Start begins the
// handshake; from then on the backend reports lifecycle transitions on the
// Events channel, in order, until the client terminates and the channel is
// closed. Forwarded operations (contacts, chats, messages, sends) are only
// valid once the backend has reported ready.
//
// # The local Backend
//
// The "local" backend is a deterministic loopback messenger: it needs no
// network, persists a session file in the credential directory on first
// authentication (so restart rehydration behaves like a real backend), skips
// pairing when that file already exists, and answers data queries from an
// in-memory fixture conversation set. Messages sent to any peer are echoed
// straight back. It exists for default installs, development, and tests.
package messenger
