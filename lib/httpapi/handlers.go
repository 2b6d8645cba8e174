package httpapi

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chatgate/go-chatgate/lib/messenger"
	"github.com/go-chatgate/go-chatgate/lib/session"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// DefaultMessageLimit bounds GET .../messages when the caller passes no
// explicit limit.
const DefaultMessageLimit = 50

// handleStartSession creates the session for the posted identifier, or
// returns the existing one unchanged.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	sess, err := s.registry.Create(r.Context(), req.ClientID)
	if err != nil {
		log.WithFields(logger.Fields{
			"at":        "(Server) handleStartSession",
			"client_id": req.ClientID,
			"reason":    err.Error(),
		}).Warn("Session start failed")
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, StartSessionResponse{
		Message:  "session start accepted",
		Status:   string(sess.Status()),
		ClientID: sess.ID(),
	})
}

// handleSessionStatus reports the session's lifecycle state. An identifier
// that is absent from the registry but has credentials on disk gets the
// degraded disconnected answer rather than a 404.
func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("clientId")
	if err := session.ValidateClientID(id); err != nil {
		s.writeError(w, err)
		return
	}

	if sess, ok := s.registry.Get(id); ok {
		resp := SessionStatusResponse{
			Status:   string(sess.Status()),
			ClientID: id,
			Error:    sess.LastError(),
		}
		if payload := sess.PairingPayload(); payload != "" {
			resp.QR = &payload
		}
		s.writeJSON(w, http.StatusOK, resp)
		return
	}

	if s.store.HasClient(id) {
		s.writeJSON(w, http.StatusOK, SessionStatusResponse{
			Status:   string(session.StatusDisconnected),
			ClientID: id,
			Message:  "session found on disk but not loaded; start it to reconnect",
		})
		return
	}

	s.writeErrorMessage(w, http.StatusNotFound, "session not found")
}

// handleListSessions lists every registered session in insertion order.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list := s.registry.List()

	entries := make([]SessionEntry, 0, len(list))
	for _, entry := range list {
		entries = append(entries, SessionEntry{
			ClientID: entry.ClientID,
			Status:   string(entry.Status),
			HasQR:    entry.HasQR,
		})
	}

	s.writeJSON(w, http.StatusOK, SessionsResponse{
		ActiveSessions: entries,
		Total:          len(entries),
	})
}

// handleContacts forwards the address book of a ready client.
func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	client, err := s.registry.ClientFor(r.PathValue("clientId"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	contacts, err := client.Contacts(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if contacts == nil {
		contacts = []messenger.Contact{}
	}
	s.writeJSON(w, http.StatusOK, contacts)
}

// handleChats lists a ready client's chats enriched with the most recent
// message and the peer's contact name, newest activity first. A chat whose
// enrichment fails is dropped from the listing, never fatal.
func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("clientId")
	client, err := s.registry.ClientFor(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	chats, err := client.Chats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	names := s.contactNames(r.Context(), client)

	summaries := make([]ChatSummary, 0, len(chats))
	for _, chat := range chats {
		summary, err := s.enrichChat(r.Context(), client, chat, names)
		if err != nil {
			log.WithFields(logger.Fields{
				"at":        "(Server) handleChats",
				"client_id": id,
				"chat_id":   chat.ID,
				"reason":    err.Error(),
			}).Debug("Dropping chat that failed enrichment")
			continue
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})

	s.writeJSON(w, http.StatusOK, ChatsResponse{
		Total: len(summaries),
		Chats: summaries,
	})
}

// contactNames indexes the client's address book by contact ID. Failure is
// tolerated: chats are then listed without contact names.
func (s *Server) contactNames(ctx context.Context, client messenger.Client) map[string]string {
	contacts, err := client.Contacts(ctx)
	if err != nil {
		log.WithError(err).Debug("Contact lookup failed; chat listing proceeds without names")
		return nil
	}

	names := make(map[string]string, len(contacts))
	for _, contact := range contacts {
		names[contact.ID] = contact.Name
	}
	return names
}

// enrichChat attaches the latest message body and the peer's address-book
// name to one chat. Direct-chat IDs double as contact IDs, which is what
// makes the name lookup work.
func (s *Server) enrichChat(ctx context.Context, client messenger.Client, chat messenger.Chat, names map[string]string) (ChatSummary, error) {
	summary := ChatSummary{
		ID:           chat.ID,
		Name:         chat.Name,
		IsGroup:      chat.IsGroup,
		UnreadCount:  chat.UnreadCount,
		LastActivity: chat.LastActivity,
		ContactName:  names[chat.ID],
	}

	msgs, err := client.Messages(ctx, chat.ID, 1)
	if err != nil {
		return ChatSummary{}, err
	}
	if len(msgs) > 0 {
		summary.LastMessage = msgs[len(msgs)-1].Body
	}
	return summary, nil
}

// handleChatMessages returns the most recent messages of one chat in
// chronological order.
func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	client, err := s.registry.ClientFor(r.PathValue("clientId"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	chatID := r.PathValue("chatId")
	info, err := client.ChatInfo(r.Context(), chatID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	msgs, err := client.Messages(r.Context(), chatID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []messenger.Message{}
	}

	s.writeJSON(w, http.StatusOK, ChatMessagesResponse{
		ChatID:        chatID,
		ChatName:      info.Name,
		IsGroup:       info.IsGroup,
		TotalMessages: len(msgs),
		Messages:      msgs,
	})
}

// parseLimit reads the limit query parameter, defaulting when absent.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return DefaultMessageLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, oops.Wrapf(session.ErrValidation, "limit must be a positive integer")
	}
	return limit, nil
}

// handleSendMessage forwards a direct send through a ready client.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.ClientID == "" || req.To == "" || req.Message == "" {
		s.writeErrorMessage(w, http.StatusBadRequest, "clientId, to and message are required")
		return
	}

	client, err := s.registry.ClientFor(req.ClientID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if _, err := client.SendMessage(r.Context(), req.To, req.Message); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SendResponse{Success: true})
}

// handleSendChatMessage forwards a send into an existing chat.
func (s *Server) handleSendChatMessage(w http.ResponseWriter, r *http.Request) {
	var req SendChatMessageRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Message == "" {
		s.writeErrorMessage(w, http.StatusBadRequest, "message is required")
		return
	}

	client, err := s.registry.ClientFor(r.PathValue("clientId"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	chatID := r.PathValue("chatId")
	if _, err := client.SendChatMessage(r.Context(), chatID, req.Message); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SendResponse{Success: true, ChatID: chatID})
}

// handleDestroySession destroys the session and its credentials, reporting
// whether a live session was torn down or only disk state was removed.
func (s *Server) handleDestroySession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("clientId")

	outcome, err := s.registry.Destroy(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	message := "session destroyed"
	if outcome == session.RemovedFromDisk {
		message = "no active session; credential files removed from disk"
	}

	log.WithFields(logger.Fields{
		"at":        "(Server) handleDestroySession",
		"client_id": id,
		"outcome":   string(outcome),
	}).Info("Session destroyed via API")

	s.writeJSON(w, http.StatusOK, DestroySessionResponse{
		Message:  message,
		ClientID: id,
	})
}

// handleHealth reports the process and registry snapshot.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := s.registry.StatusSnapshot()
	statuses := make(map[string]string, len(snapshot))
	for id, status := range snapshot {
		statuses[id] = string(status)
	}

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:         "ok",
		ActiveClients:  s.registry.Count(),
		ClientStatuses: statuses,
		Uptime:         int64(time.Since(s.startedAt).Seconds()),
		ServerTime:     s.clock.Now().UTC(),
		ClockOffsetMs:  s.clock.Offset().Milliseconds(),
	})
}
