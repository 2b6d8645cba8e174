// Package httpapi exposes the session gateway over an HTTP/JSON API. It is
// the external boundary only: every request is translated into a registry or
// forwarded-client call, and every registry error is translated back into the
// gateway's HTTP error taxonomy.
//
// # Endpoints
//
// Session lifecycle:
//
//	POST   /session/start                 {"clientId": "..."} — create or return the session
//	GET    /session/status/{clientId}     current status plus pairing payload
//	GET    /sessions                      all registered sessions, insertion order
//	DELETE /session/{clientId}            destroy the session and its credentials
//
// Forwarded to the messaging backend (client must be ready):
//
//	GET    /contacts/{clientId}
//	GET    /chats/{clientId}
//	GET    /chats/{clientId}/{chatId}/messages?limit=N
//	POST   /message/send                  {"clientId", "to", "message"}
//	POST   /chats/{clientId}/{chatId}/send {"message"}
//
// Monitoring:
//
//	GET    /health                        process and registry snapshot
//
// # Error Mapping
//
// Registry errors map onto HTTP statuses:
//
//   - validation failures → 400
//   - session not ready for forwarded calls → 400 ("Client not ready")
//   - unknown identifier, in memory and on disk → 404
//   - handshake rate limit → 429
//   - backend failures → 500 with the underlying message
//
// Validation and lookup checks run before any backend call, so a malformed
// request never reaches a messaging client.
//
// # Degraded Status
//
// GET /session/status/{clientId} for an identifier with credentials on disk
// but no loaded session answers 200 with status "disconnected" and a hint to
// start the session, instead of 404. This is what a monitoring dashboard sees
// between a crash and the next start.
package httpapi
