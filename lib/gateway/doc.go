// Package gateway assembles the chatgate process: the credential store, the
// session registry, the HTTP API server and the clock-offset advisory, bound
// to a single lifecycle.
//
// # Lifecycle
//
// CreateGateway validates the configuration and constructs every component.
// Start launches the main loop, which prepares the credential store, restores
// sessions found on disk, brings up the API server and then idles until Stop
// is called or an interrupt signal arrives. Teardown closes every live
// session without deleting credential files, so the same accounts return on
// the next start.
//
// # Session restore
//
// At startup the gateway scans the credential store and restarts a session
// for every identifier that still holds session material, without anyone
// calling the start endpoint. Restores run one at a time and a failing
// identifier is skipped, never aborting the rest.
package gateway
