// Package config provides configuration management for the chatgate gateway.
//
// # Configuration Sources
//
// Configuration is resolved in precedence order:
//
//  1. CHATGATE_* environment variables (e.g. CHATGATE_HTTP_ADDRESS). Nested
//     keys use underscores: http.address becomes CHATGATE_HTTP_ADDRESS.
//  2. The config file. By default $HOME/.chatgate/config.yaml, created with
//     defaults on first run; a different file can be selected with --config.
//  3. Built-in defaults (Defaults()).
//
// Every key has a working default: a fresh install serves on localhost with
// the loopback messenger backend and a credential store under
// $HOME/.chatgate/store, so `chatgate serve` works with no file at all.
package config
