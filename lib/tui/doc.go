// Package tui renders a terminal dashboard over a running gateway's
// monitoring endpoints. It polls the session listing and health endpoints
// over HTTP, so it attaches to any reachable gateway process without
// touching its internals.
package tui
