package gateway

import (
	"context"

	"github.com/go-i2p/logger"
)

// rehydrateSessions restarts a session for every identifier whose credential
// files survive on disk, so accounts paired before a restart come back
// without a new pairing handshake. Identifiers are processed one at a time;
// a failing one is logged and skipped so it cannot keep the remaining
// accounts offline.
func (g *Gateway) rehydrateSessions() {
	ids, err := g.store.ListSessionIDs()
	if err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"at":     "(Gateway) rehydrateSessions",
			"reason": "credential store scan failed",
		}).Error("Session discovery failed; starting with no sessions")
		return
	}
	if len(ids) == 0 {
		log.Debug("No resumable sessions on disk")
		return
	}

	log.WithFields(logger.Fields{
		"at":    "(Gateway) rehydrateSessions",
		"count": len(ids),
	}).Info("restoring sessions from credential store")

	restored := 0
	for _, id := range ids {
		if _, err := g.registry.Rehydrate(context.Background(), id); err != nil {
			log.WithError(err).WithFields(logger.Fields{
				"at":        "(Gateway) rehydrateSessions",
				"client_id": id,
			}).Warn("Failed to restore session, skipping")
			continue
		}
		restored++
	}

	log.WithFields(logger.Fields{
		"at":       "(Gateway) rehydrateSessions",
		"restored": restored,
		"total":    len(ids),
	}).Info("session restore pass complete")
}
