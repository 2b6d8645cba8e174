package gateway

import (
	"sync"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"

	"github.com/go-chatgate/go-chatgate/lib/config"
	"github.com/go-chatgate/go-chatgate/lib/credstore"
	"github.com/go-chatgate/go-chatgate/lib/httpapi"
	"github.com/go-chatgate/go-chatgate/lib/messenger"
	"github.com/go-chatgate/go-chatgate/lib/session"
	"github.com/go-chatgate/go-chatgate/lib/util/signals"
	"github.com/go-chatgate/go-chatgate/lib/util/time/monotonic"
	"github.com/go-chatgate/go-chatgate/lib/util/time/sntp"
)

var log = logger.GetGoI2PLogger()

// messaging session gateway type
type Gateway struct {
	// gateway configuration
	cfg *config.GatewayConfig
	// on-disk credential store
	store *credstore.Store
	// session registry, at most one entry per client identifier
	registry *session.Registry
	// HTTP/JSON API server
	apiServer *httpapi.Server
	// clock-offset advisory; nil when disabled in configuration
	clockMonitor *sntp.ClockMonitor
	// offset-corrected clock fed by the advisory, reported on /health
	clock *monotonic.Clock
	// close channel
	closeChnl chan bool
	// doneChnl is closed once mainloop teardown has finished; Wait blocks on it
	doneChnl chan struct{}
	// running flag and mutex for thread-safe access
	running bool
	started bool
	runMux  sync.RWMutex

	// signal handler registrations, removed again during teardown
	interruptID signals.HandlerID
	reloadID    signals.HandlerID
}

// CreateGateway creates a gateway with the provided configuration
func CreateGateway(cfg *config.GatewayConfig) (*Gateway, error) {
	log.Debug("Creating gateway with provided configuration")

	g, err := FromConfig(cfg)
	if err != nil {
		log.WithError(err).Error("Failed to create gateway from configuration")
		return nil, err
	}
	log.Debug("Gateway created successfully with provided configuration")

	if err := initializeMessaging(g, cfg); err != nil {
		return nil, err
	}

	if err := initializeAPIServer(g, cfg); err != nil {
		return nil, err
	}

	initializeClockMonitor(g, cfg)

	return g, nil
}

// initializeMessaging builds the credential store, the backend factory and
// the session registry
func initializeMessaging(g *Gateway, cfg *config.GatewayConfig) error {
	g.store = credstore.NewStore(cfg.Store.Path)
	log.WithField("store_path", cfg.Store.Path).Debug("Credential store created successfully")

	factory, err := messenger.NewFactory(cfg.Messenger.Backend)
	if err != nil {
		log.WithError(err).Error("Failed to create messenger factory")
		return err
	}
	log.WithField("backend", cfg.Messenger.Backend).Debug("Messenger factory created successfully")

	g.registry = session.NewRegistry(g.store, factory, session.Options{
		GraceWindow: cfg.Session.GraceWindow,
		StartRate:   cfg.Session.StartRate,
		StartBurst:  cfg.Session.StartBurst,
	})
	return nil
}

// initializeAPIServer builds the HTTP API server over the registry and store
func initializeAPIServer(g *Gateway, cfg *config.GatewayConfig) error {
	server, err := httpapi.NewServer(cfg.HTTP, g.registry, g.store, g.clock)
	if err != nil {
		log.WithError(err).Error("Failed to create API server")
		return err
	}
	g.apiServer = server
	log.Debug("API server created successfully")
	return nil
}

// create gateway from configuration
func FromConfig(c *config.GatewayConfig) (g *Gateway, err error) {
	if c == nil {
		return nil, oops.Errorf("gateway configuration cannot be nil")
	}
	if err = config.Validate(c); err != nil {
		return nil, err
	}
	log.WithField("http_address", c.HTTP.Address).Debug("Creating gateway from configuration")
	g = new(Gateway)
	g.cfg = c
	g.clock = monotonic.NewClock()
	g.closeChnl = make(chan bool)
	g.doneChnl = make(chan struct{})
	g.interruptID = -1
	g.reloadID = -1
	log.Debug("Gateway created successfully from configuration")
	return
}

// Wait blocks until the gateway has fully stopped and teardown has finished
func (g *Gateway) Wait() {
	log.Debug("Waiting for gateway to stop")
	<-g.doneChnl
	log.Debug("Gateway has stopped")
}

// Stop starts stopping internal state of gateway
func (g *Gateway) Stop() {
	log.Debug("Stopping gateway")
	g.runMux.Lock()
	defer g.runMux.Unlock()

	if !g.running {
		log.Debug("Gateway already stopped")
		return
	}

	g.running = false

	// Non-blocking: mainloop may have exited already.
	select {
	case g.closeChnl <- true:
		log.Debug("Gateway stop signal sent")
	default:
		log.Debug("Gateway stop signal already sent or channel full")
	}
}

// Close stops the gateway if it is running and blocks until teardown has
// finished. Safe on a gateway that was never started.
func (g *Gateway) Close() error {
	g.runMux.RLock()
	started := g.started
	g.runMux.RUnlock()

	g.Stop()
	if started {
		g.Wait()
	}
	return nil
}

// Start starts gateway mainloop
func (g *Gateway) Start() {
	g.runMux.Lock()
	defer g.runMux.Unlock()

	if g.running {
		log.WithFields(logger.Fields{
			"at":     "(Gateway) Start",
			"reason": "gateway is already running",
		}).Error("Error starting gateway")
		return
	}
	log.Debug("Starting gateway")
	g.running = true
	g.started = true
	go g.mainloop()
}

// registerSignalHandlers hooks the gateway into process signal handling:
// SIGINT/SIGTERM stop the gateway, SIGHUP acknowledges a reload request.
func (g *Gateway) registerSignalHandlers() {
	g.interruptID = signals.RegisterInterruptHandler(func() {
		log.WithFields(logger.Fields{
			"at":     "(Gateway) interrupt",
			"reason": "interrupt signal received",
		}).Info("stopping gateway")
		g.Stop()
		g.Wait()
	})
	g.reloadID = signals.RegisterReloadHandler(func() {
		// Live sessions keep their current settings; only a restart applies
		// the new file.
		log.WithFields(logger.Fields{
			"at":          "(Gateway) reload",
			"config_file": config.CfgFile,
		}).Info("reload requested; restart to apply configuration changes")
	})
	log.Debug("Signal handlers registered")
}

// runMainLoop executes the primary gateway event loop
func (g *Gateway) runMainLoop() {
	log.WithFields(logger.Fields{
		"at": "(Gateway) mainloop",
	}).Debug("Gateway ready")

	for {
		g.runMux.RLock()
		shouldRun := g.running
		g.runMux.RUnlock()

		if !shouldRun {
			break
		}

		select {
		case <-g.closeChnl:
			log.Debug("Gateway received close signal in mainloop")
			return
		case <-time.After(time.Second):
			// Continue loop after 1 second timeout
		}
	}
}

// run gateway mainloop
func (g *Gateway) mainloop() {
	defer close(g.doneChnl)
	defer g.teardown()

	if err := g.store.Ensure(); err != nil {
		log.WithFields(logger.Fields{
			"at":     "(Gateway) mainloop",
			"reason": err.Error(),
		}).Error("Credential store startup failed")
		g.Stop()
		return
	}

	g.startClockMonitor()

	g.rehydrateSessions()

	if err := g.startAPIServer(); err != nil {
		log.WithFields(logger.Fields{
			"at":     "(Gateway) mainloop",
			"reason": err.Error(),
		}).Error("API server startup failed")
		g.Stop()
		return
	}

	g.registerSignalHandlers()

	g.runMainLoop()
	log.Debug("Exiting gateway mainloop")
}

// teardown releases everything mainloop started, in dependency order:
// sessions first while their backends are still reachable, then the HTTP
// listener, then the advisory loop. Credential files stay on disk so the
// next start restores the same accounts.
func (g *Gateway) teardown() {
	log.WithFields(logger.Fields{
		"at":    "(Gateway) teardown",
		"phase": "shutdown",
	}).Info("shutting gateway down")

	signals.DeregisterInterruptHandler(g.interruptID)
	signals.DeregisterReloadHandler(g.reloadID)

	if g.registry != nil {
		g.registry.StopAll()
	}
	g.stopAPIServer()
	g.stopClockMonitor()

	log.WithFields(logger.Fields{
		"at":    "(Gateway) teardown",
		"phase": "shutdown",
	}).Info("gateway stopped")
}
