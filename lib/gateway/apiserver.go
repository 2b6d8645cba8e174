package gateway

import (
	"github.com/go-i2p/logger"
)

// startAPIServer brings up the HTTP/JSON API listener. The server itself was
// constructed at creation time so configuration mistakes surface before any
// session spins up.
func (g *Gateway) startAPIServer() error {
	log.WithFields(logger.Fields{
		"at":      "(Gateway) startAPIServer",
		"phase":   "startup",
		"address": g.cfg.HTTP.Address,
	}).Info("starting API server")

	if err := g.apiServer.Start(); err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"at":     "(Gateway) startAPIServer",
			"phase":  "startup",
			"reason": "failed to start API server",
		}).Error("API server startup failed")
		return err
	}

	log.WithFields(logger.Fields{
		"at":      "(Gateway) startAPIServer",
		"phase":   "startup",
		"address": g.cfg.HTTP.Address,
	}).Info("API server started successfully")

	return nil
}

// stopAPIServer gracefully shuts down the API server, letting in-flight
// requests finish within the configured shutdown timeout.
func (g *Gateway) stopAPIServer() {
	if g.apiServer == nil {
		log.WithFields(logger.Fields{
			"at":     "(Gateway) stopAPIServer",
			"reason": "API server not running",
		}).Debug("no API server to stop")
		return
	}

	log.WithFields(logger.Fields{
		"at":    "(Gateway) stopAPIServer",
		"phase": "shutdown",
	}).Info("stopping API server")

	g.apiServer.Stop()

	log.WithFields(logger.Fields{
		"at":    "(Gateway) stopAPIServer",
		"phase": "shutdown",
	}).Info("API server stopped")
}
