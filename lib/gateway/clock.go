package gateway

import (
	"time"

	"github.com/go-i2p/logger"

	"github.com/go-chatgate/go-chatgate/lib/config"
	"github.com/go-chatgate/go-chatgate/lib/util/time/sntp"
)

// initializeClockMonitor builds the clock-offset advisory when enabled.
// Pairing handshakes embed timestamps, so a badly skewed local clock makes
// backends reject them; the advisory measures the offset and warns.
func initializeClockMonitor(g *Gateway, cfg *config.GatewayConfig) {
	if !cfg.NTP.Enabled {
		log.WithFields(logger.Fields{
			"at":     "initializeClockMonitor",
			"reason": "NTP advisory disabled in configuration",
		}).Debug("clock monitor not created")
		return
	}

	g.clockMonitor = sntp.NewClockMonitor(nil, cfg.NTP.Servers)
	g.clockMonitor.SetInterval(cfg.NTP.QueryInterval)
	g.clockMonitor.AddListener(g)
	log.WithFields(logger.Fields{
		"at":      "initializeClockMonitor",
		"servers": len(cfg.NTP.Servers),
	}).Debug("clock monitor created successfully")
}

// startClockMonitor begins periodic offset measurement if configured.
func (g *Gateway) startClockMonitor() {
	if g.clockMonitor == nil {
		log.Debug("No clock monitor to start")
		return
	}
	log.WithFields(logger.Fields{
		"at":    "(Gateway) startClockMonitor",
		"phase": "startup",
	}).Info("starting clock-offset advisory")
	g.clockMonitor.Start()
}

// stopClockMonitor terminates the measurement loop.
func (g *Gateway) stopClockMonitor() {
	if g.clockMonitor == nil {
		return
	}
	g.clockMonitor.Stop()
	log.WithFields(logger.Fields{
		"at":    "(Gateway) stopClockMonitor",
		"phase": "shutdown",
	}).Debug("clock monitor stopped")
}

// ClockOffset implements sntp.OffsetListener. Each measurement updates the
// corrected clock the health endpoint reports; the monitor already warns
// once the offset threatens pairing, so this only leaves a debug breadcrumb.
func (g *Gateway) ClockOffset(offset time.Duration, synced bool) {
	if synced {
		g.clock.SetOffset(offset)
	}
	log.WithFields(logger.Fields{
		"at":     "(Gateway) ClockOffset",
		"offset": offset.String(),
		"synced": synced,
	}).Debug("clock offset measured")
}
