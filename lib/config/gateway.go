package config

import (
	"path/filepath"
	"time"

	"github.com/samber/oops"
)

// GatewayConfig is the root configuration for a chatgate process.
type GatewayConfig struct {
	// HTTP API server settings
	HTTP *HTTPConfig
	// credential store settings
	Store *StoreConfig
	// session registry settings
	Session *SessionConfig
	// messaging backend selection
	Messenger *MessengerConfig
	// clock-offset advisory settings
	NTP *NTPConfig
}

// HTTPConfig holds settings for the gateway's HTTP/JSON API server.
type HTTPConfig struct {
	// Address is the listen address for the API server
	// Format: "host:port" (e.g., "localhost:8744", "0.0.0.0:8744")
	// Default: "localhost:8744"
	// Security: Binding to 0.0.0.0 exposes every paired account to the network
	Address string

	// ReadTimeout bounds reading of one request, header through body
	// Default: 15 seconds
	ReadTimeout time.Duration

	// WriteTimeout bounds writing of one response
	// Default: 15 seconds
	WriteTimeout time.Duration

	// IdleTimeout closes keep-alive connections that carry no traffic
	// Default: 60 seconds
	IdleTimeout time.Duration

	// ShutdownTimeout is how long graceful shutdown waits for in-flight
	// requests before the listener is forced closed
	// Default: 5 seconds
	ShutdownTimeout time.Duration
}

// StoreConfig holds settings for the on-disk credential store.
type StoreConfig struct {
	// Path is the root directory of the credential store: one subdirectory
	// per client identifier plus the shared client_info.json metadata file
	// Default: $HOME/.chatgate/store
	Path string
}

// SessionConfig holds settings for the session registry.
type SessionConfig struct {
	// GraceWindow is how long a disconnected session stays registered
	// waiting for the backend to reconnect before it is evicted
	// Default: 5 seconds
	GraceWindow time.Duration

	// StartRate limits how many new pairing handshakes may start per second
	// across all clients. Messaging backends penalize pairing-QR spam.
	// Default: 1
	StartRate float64

	// StartBurst is the burst allowance on top of StartRate
	// Default: 3
	StartBurst int
}

// MessengerConfig selects the messaging client implementation.
type MessengerConfig struct {
	// Backend names the messaging client implementation to use
	// Valid values: "local"
	// Default: "local" (loopback backend, no network)
	Backend string
}

// NTPConfig holds settings for the clock-offset advisory. Pairing handshakes
// embed timestamps; a skewed local clock makes backends reject them in
// hard-to-diagnose ways, so the gateway measures its offset and warns.
type NTPConfig struct {
	// Enabled determines if the advisory runs
	// Default: true
	Enabled bool

	// Servers are the NTP servers to sample
	// Default: the public pool (0/1/2.pool.ntp.org)
	Servers []string

	// QueryInterval is how often the offset is re-measured
	// Default: 30 minutes (clamped to a safe minimum by the monitor)
	QueryInterval time.Duration
}

// Defaults returns the built-in configuration. All values are sensible for a
// single-machine development install; production deployments typically change
// only http.address and store.path.
func Defaults() *GatewayConfig {
	return &GatewayConfig{
		HTTP:      defaultHTTPConfig(),
		Store:     defaultStoreConfig(),
		Session:   defaultSessionConfig(),
		Messenger: defaultMessengerConfig(),
		NTP:       defaultNTPConfig(),
	}
}

func defaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		Address:         "localhost:8744",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

func defaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		Path: filepath.Join(BuildChatGateDirPath(), "store"),
	}
}

func defaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		GraceWindow: 5 * time.Second,
		StartRate:   1,
		StartBurst:  3,
	}
}

func defaultMessengerConfig() *MessengerConfig {
	return &MessengerConfig{
		Backend: "local",
	}
}

func defaultNTPConfig() *NTPConfig {
	return &NTPConfig{
		Enabled:       true,
		Servers:       []string{"0.pool.ntp.org", "1.pool.ntp.org", "2.pool.ntp.org"},
		QueryInterval: 30 * time.Minute,
	}
}

// Validate checks if the provided configuration values are reasonable.
// Returns an error describing the first invalid value found.
func Validate(cfg *GatewayConfig) error {
	validators := []func() error{
		func() error { return validateHTTP(cfg.HTTP) },
		func() error { return validateStore(cfg.Store) },
		func() error { return validateSession(cfg.Session) },
		func() error { return validateMessenger(cfg.Messenger) },
		func() error { return validateNTP(cfg.NTP) },
	}

	for _, validator := range validators {
		if err := validator(); err != nil {
			log.WithError(err).Error("Configuration validation failed")
			return err
		}
	}
	return nil
}

func validateHTTP(http *HTTPConfig) error {
	if http.Address == "" {
		return oops.Errorf("configuration validation failed: http.address must not be empty")
	}
	if http.ReadTimeout < time.Second || http.WriteTimeout < time.Second {
		return oops.Errorf("configuration validation failed: http read/write timeouts must be at least 1 second")
	}
	if http.ShutdownTimeout < time.Second {
		return oops.Errorf("configuration validation failed: http.shutdown_timeout must be at least 1 second")
	}
	return nil
}

func validateStore(store *StoreConfig) error {
	if store.Path == "" {
		return oops.Errorf("configuration validation failed: store.path must not be empty")
	}
	return nil
}

func validateSession(session *SessionConfig) error {
	if session.GraceWindow <= 0 {
		return oops.Errorf("configuration validation failed: session.grace_window must be positive")
	}
	if session.StartRate <= 0 {
		return oops.Errorf("configuration validation failed: session.start_rate must be positive")
	}
	if session.StartBurst < 1 {
		return oops.Errorf("configuration validation failed: session.start_burst must be at least 1")
	}
	return nil
}

func validateMessenger(messenger *MessengerConfig) error {
	if messenger.Backend == "" {
		return oops.Errorf("configuration validation failed: messenger.backend must not be empty")
	}
	return nil
}

func validateNTP(ntp *NTPConfig) error {
	if ntp.Enabled && len(ntp.Servers) == 0 {
		return oops.Errorf("configuration validation failed: ntp.servers must not be empty when ntp.enabled is true")
	}
	return nil
}
