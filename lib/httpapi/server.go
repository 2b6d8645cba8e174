package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chatgate/go-chatgate/lib/config"
	"github.com/go-chatgate/go-chatgate/lib/credstore"
	"github.com/go-chatgate/go-chatgate/lib/session"
	"github.com/go-chatgate/go-chatgate/lib/util/time/monotonic"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// maxRequestBody bounds JSON request bodies. Session starts and message
// sends are small; anything larger is abuse.
const maxRequestBody = 1 << 20

// Server is the gateway's HTTP/JSON API server. It routes requests to the
// session registry, maps registry errors onto the HTTP taxonomy, and handles
// graceful shutdown.
type Server struct {
	cfg        *config.HTTPConfig
	registry   *session.Registry
	store      *credstore.Store
	clock      *monotonic.Clock
	httpServer *http.Server
	startedAt  time.Time
	wg         sync.WaitGroup
}

// NewServer creates the API server over the given registry and credential
// store. The store is consulted directly only for the degraded
// status-on-disk answer; everything else goes through the registry. The
// clock carries the NTP advisory correction reported on /health.
func NewServer(cfg *config.HTTPConfig, registry *session.Registry, store *credstore.Store, clock *monotonic.Clock) (*Server, error) {
	if err := validateServerDeps(cfg, registry, store, clock); err != nil {
		return nil, err
	}

	server := &Server{
		cfg:       cfg,
		registry:  registry,
		store:     store,
		clock:     clock,
		startedAt: time.Now(),
	}
	server.httpServer = createHTTPServer(cfg, server)
	return server, nil
}

// validateServerDeps checks that every collaborator the server needs was
// actually provided.
func validateServerDeps(cfg *config.HTTPConfig, registry *session.Registry, store *credstore.Store, clock *monotonic.Clock) error {
	if cfg == nil {
		return oops.Errorf("httpapi: config cannot be nil")
	}
	if registry == nil {
		return oops.Errorf("httpapi: registry cannot be nil")
	}
	if store == nil {
		return oops.Errorf("httpapi: store cannot be nil")
	}
	if clock == nil {
		return oops.Errorf("httpapi: clock cannot be nil")
	}
	return nil
}

// createHTTPServer wires the route table and returns the configured
// http.Server with the timeouts from cfg.
func createHTTPServer(cfg *config.HTTPConfig, server *Server) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session/start", server.handleStartSession)
	mux.HandleFunc("GET /session/status/{clientId}", server.handleSessionStatus)
	mux.HandleFunc("GET /sessions", server.handleListSessions)
	mux.HandleFunc("GET /contacts/{clientId}", server.handleContacts)
	mux.HandleFunc("GET /chats/{clientId}", server.handleChats)
	mux.HandleFunc("GET /chats/{clientId}/{chatId}/messages", server.handleChatMessages)
	mux.HandleFunc("POST /message/send", server.handleSendMessage)
	mux.HandleFunc("POST /chats/{clientId}/{chatId}/send", server.handleSendChatMessage)
	mux.HandleFunc("DELETE /session/{clientId}", server.handleDestroySession)
	mux.HandleFunc("GET /health", server.handleHealth)
	mux.HandleFunc("OPTIONS /", server.handlePreflight)

	return &http.Server{
		Addr:         cfg.Address,
		Handler:      server.withCORS(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// Start begins listening on the configured address. It returns immediately;
// listener errors are logged from the serving goroutine.
func (s *Server) Start() error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		log.WithFields(logger.Fields{
			"at":      "(Server) Start",
			"address": s.cfg.Address,
		}).Info("Starting gateway API server")

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithFields(logger.Fields{
				"at":     "(Server) Start",
				"reason": err.Error(),
			}).Error("Gateway API server error")
		}
	}()
	return nil
}

// Stop gracefully shuts the server down, waiting up to the configured
// shutdown timeout for in-flight requests.
func (s *Server) Stop() {
	log.WithFields(logger.Fields{
		"at": "(Server) Stop",
	}).Info("Stopping gateway API server")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.WithFields(logger.Fields{
			"at":     "(Server) Stop",
			"reason": err.Error(),
		}).Error("Error during API server shutdown")
	}

	s.wg.Wait()

	log.WithFields(logger.Fields{
		"at": "(Server) Stop",
	}).Info("Gateway API server stopped")
}

// withCORS stamps CORS headers onto every response before routing.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w)
		next.ServeHTTP(w, r)
	})
}

// setCORSHeaders configures Cross-Origin Resource Sharing headers.
// Access-Control-Allow-Origin is restricted to the server's own address,
// preventing arbitrary origins from driving paired messaging accounts.
func (s *Server) setCORSHeaders(w http.ResponseWriter) {
	origin := fmt.Sprintf("http://%s", s.cfg.Address)
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// handlePreflight answers CORS preflight requests for every route.
func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// decodeJSON parses a JSON request body into dst with a size limit. Parse
// failures are validation errors, so callers can pass them straight to
// writeError.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return oops.Wrapf(session.ErrValidation, "parsing request body: %v", err)
	}
	return nil
}

// writeJSON serializes payload as the response body with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(payload)
	if err != nil {
		log.WithFields(logger.Fields{
			"at":     "(Server) writeJSON",
			"reason": err.Error(),
		}).Error("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		log.WithFields(logger.Fields{
			"at":     "(Server) writeJSON",
			"reason": err.Error(),
		}).Error("Failed to write response")
	}
}

// writeError maps a registry or backend error onto the HTTP taxonomy:
// validation and not-ready → 400, unknown identifier → 404, rate limit →
// 429, anything else → 500 with the message passed through.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotReady):
		s.writeErrorMessage(w, http.StatusBadRequest, "Client not ready")
	case errors.Is(err, session.ErrValidation):
		s.writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotFound):
		s.writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrRateLimited):
		s.writeErrorMessage(w, http.StatusTooManyRequests, err.Error())
	default:
		s.writeErrorMessage(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeErrorMessage(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
