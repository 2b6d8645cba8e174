package messenger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chatgate/go-chatgate/lib/util"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// SessionFileName is the credential file the local backend persists on
// authentication. Its "session" prefix is what marks the directory as
// resumable for discovery.
const SessionFileName = "session.json"

// defaultStepDelay paces the simulated handshake so states are observable.
const defaultStepDelay = 200 * time.Millisecond

// Compile-time check that LocalClient implements the Client interface
var _ Client = (*LocalClient)(nil)

type localChat struct {
	id       string
	name     string
	peer     string
	unread   int
	messages []Message
}

// LocalClient is the loopback messaging backend. See the package
// documentation for its behavior.
type LocalClient struct {
	id        string
	credDir   string
	stepDelay time.Duration

	events chan Event

	mu        sync.Mutex
	started   bool
	connected bool
	contacts  []Contact
	chats     map[string]*localChat
	seq       int
	lastStamp time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	evOnce   sync.Once
	wg       sync.WaitGroup
}

func NewLocalClient(id, credentialDir string) *LocalClient {
	return &LocalClient{
		id:        id,
		credDir:   credentialDir,
		stepDelay: defaultStepDelay,
		events:    make(chan Event, 8),
		chats:     make(map[string]*localChat),
		stopCh:    make(chan struct{}),
	}
}

// SetStepDelay overrides the simulated handshake pacing. Tests use a
// millisecond delay to keep lifecycle assertions fast.
func (c *LocalClient) SetStepDelay(d time.Duration) {
	c.stepDelay = d
}

func (c *LocalClient) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return oops.Errorf("local client %s already started", c.id)
	}
	if !util.CheckDirExists(c.credDir) {
		c.mu.Unlock()
		return oops.Errorf("credential directory %s does not exist", c.credDir)
	}
	c.started = true
	c.mu.Unlock()

	log.WithFields(logger.Fields{
		"at":        "(LocalClient) Start",
		"client_id": c.id,
	}).Debug("starting loopback handshake")

	c.wg.Add(1)
	go c.run()
	return nil
}

// run walks the simulated handshake: pairing (unless a session file already
// exists), authentication, ready, then idles until closed.
func (c *LocalClient) run() {
	defer c.wg.Done()
	defer c.closeEvents()

	if !c.hasSessionFile() {
		payload := fmt.Sprintf("local://pair/%s/%d", c.id, time.Now().UnixNano())
		if !c.emit(Event{Kind: KindPairing, Payload: payload}) {
			return
		}
		// a human would scan the code here; the loopback accepts on a timer
		if !c.pause() {
			return
		}
		if err := c.writeSessionFile(); err != nil {
			log.WithError(err).WithField("client_id", c.id).Error("Failed to persist loopback session file")
			c.emit(Event{Kind: KindError, Reason: "persisting session credentials: " + err.Error()})
			return
		}
	} else {
		log.WithField("client_id", c.id).Debug("resuming loopback session from credential file")
		if !c.pause() {
			return
		}
	}

	if !c.emit(Event{Kind: KindAuthenticated}) {
		return
	}
	if !c.pause() {
		return
	}

	c.mu.Lock()
	c.connected = true
	c.seedFixtures()
	c.mu.Unlock()

	if !c.emit(Event{Kind: KindReady}) {
		return
	}
	<-c.stopCh
}

func (c *LocalClient) Events() <-chan Event {
	return c.events
}

func (c *LocalClient) SendMessage(ctx context.Context, to, body string) (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, ErrNotConnected
	}

	chat := c.chatFor(to)
	msg := c.appendMessage(chat, c.id, body, true)
	// loopback: the peer answers immediately
	c.appendMessage(chat, chat.peer, "echo: "+body, false)
	return &msg, nil
}

func (c *LocalClient) SendChatMessage(ctx context.Context, chatID, body string) (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, ErrNotConnected
	}

	chat, ok := c.chats[chatID]
	if !ok {
		return nil, oops.Wrapf(ErrUnknownChat, "%s", chatID)
	}
	msg := c.appendMessage(chat, c.id, body, true)
	c.appendMessage(chat, chat.peer, "echo: "+body, false)
	return &msg, nil
}

func (c *LocalClient) Contacts(ctx context.Context) ([]Contact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, ErrNotConnected
	}

	out := make([]Contact, len(c.contacts))
	copy(out, c.contacts)
	return out, nil
}

func (c *LocalClient) Chats(ctx context.Context) ([]Chat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, ErrNotConnected
	}

	out := make([]Chat, 0, len(c.chats))
	for _, chat := range c.chats {
		out = append(out, c.summarize(chat))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

func (c *LocalClient) Messages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, ErrNotConnected
	}

	chat, ok := c.chats[chatID]
	if !ok {
		return nil, oops.Wrapf(ErrUnknownChat, "%s", chatID)
	}

	msgs := chat.messages
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (c *LocalClient) ChatInfo(ctx context.Context, chatID string) (*Chat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, ErrNotConnected
	}

	chat, ok := c.chats[chatID]
	if !ok {
		return nil, oops.Wrapf(ErrUnknownChat, "%s", chatID)
	}
	summary := c.summarize(chat)
	return &summary, nil
}

// Logout invalidates the stored session: every session-prefixed file in the
// credential directory is removed so discovery will not resume this client.
// The connection itself is left for Close to tear down.
func (c *LocalClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	entries, err := os.ReadDir(c.credDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return oops.Wrapf(err, "reading credential directory for %s", c.id)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "session") {
			continue
		}
		if err := os.Remove(filepath.Join(c.credDir, entry.Name())); err != nil {
			return oops.Wrapf(err, "removing session file %s", entry.Name())
		}
	}
	log.WithField("client_id", c.id).Debug("loopback session invalidated")
	return nil
}

func (c *LocalClient) Close() error {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
	c.closeEvents()

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

// emit delivers ev unless the client is closing.
func (c *LocalClient) emit(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.stopCh:
		return false
	}
}

// pause waits one handshake step, aborting early on close.
func (c *LocalClient) pause() bool {
	select {
	case <-time.After(c.stepDelay):
		return true
	case <-c.stopCh:
		return false
	}
}

func (c *LocalClient) closeEvents() {
	c.evOnce.Do(func() {
		close(c.events)
	})
}

func (c *LocalClient) sessionFilePath() string {
	return filepath.Join(c.credDir, SessionFileName)
}

func (c *LocalClient) hasSessionFile() bool {
	return util.CheckFileExists(c.sessionFilePath())
}

func (c *LocalClient) writeSessionFile() error {
	record := map[string]string{
		"clientId": c.id,
		"pairedAt": time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return os.WriteFile(c.sessionFilePath(), data, 0o600)
}

// chatFor returns the direct chat with the given peer, creating it on first
// contact. Callers must hold mu.
func (c *LocalClient) chatFor(peer string) *localChat {
	if chat, ok := c.chats[peer]; ok {
		return chat
	}
	name := peer
	for _, contact := range c.contacts {
		if contact.ID == peer {
			name = contact.Name
			break
		}
	}
	chat := &localChat{id: peer, name: name, peer: peer}
	c.chats[peer] = chat
	return chat
}

// appendMessage adds one message with a strictly increasing timestamp.
// Callers must hold mu.
func (c *LocalClient) appendMessage(chat *localChat, sender, body string, fromMe bool) Message {
	stamp := time.Now()
	if !stamp.After(c.lastStamp) {
		stamp = c.lastStamp.Add(time.Millisecond)
	}
	c.lastStamp = stamp
	c.seq++

	msg := Message{
		ID:        fmt.Sprintf("msg-%d", c.seq),
		ChatID:    chat.id,
		Sender:    sender,
		Body:      body,
		FromMe:    fromMe,
		Timestamp: stamp,
	}
	chat.messages = append(chat.messages, msg)
	if !fromMe {
		chat.unread++
	}
	return msg
}

func (c *LocalClient) summarize(chat *localChat) Chat {
	summary := Chat{
		ID:          chat.id,
		Name:        chat.name,
		UnreadCount: chat.unread,
	}
	if n := len(chat.messages); n > 0 {
		summary.LastActivity = chat.messages[n-1].Timestamp
	}
	return summary
}

// seedFixtures installs the fixture conversation set on first connect.
// Callers must hold mu.
func (c *LocalClient) seedFixtures() {
	if len(c.contacts) > 0 {
		return
	}
	c.contacts = []Contact{
		{ID: "ada@local", Name: "Ada Lovelace", Number: "+15550001"},
		{ID: "grace@local", Name: "Grace Hopper", Number: "+15550002"},
		{ID: "edsger@local", Name: "Edsger Dijkstra", Number: "+15550003"},
	}

	base := time.Now().Add(-time.Hour)
	c.lastStamp = base

	ada := c.chatFor("ada@local")
	c.appendFixture(ada, "ada@local", "The engine weaves algebraic patterns.", false, base)
	c.appendFixture(ada, c.id, "Just like the loom weaves flowers.", true, base.Add(2*time.Minute))

	grace := c.chatFor("grace@local")
	c.appendFixture(grace, "grace@local", "A ship in port is safe.", false, base.Add(10*time.Minute))
	c.appendFixture(grace, c.id, "But that is not what ships are built for.", true, base.Add(11*time.Minute))
	c.appendFixture(grace, "grace@local", "Exactly. Go find out.", false, base.Add(12*time.Minute))
}

// appendFixture is appendMessage with a fixed timestamp, for seeding.
// Callers must hold mu.
func (c *LocalClient) appendFixture(chat *localChat, sender, body string, fromMe bool, stamp time.Time) {
	c.seq++
	msg := Message{
		ID:        fmt.Sprintf("msg-%d", c.seq),
		ChatID:    chat.id,
		Sender:    sender,
		Body:      body,
		FromMe:    fromMe,
		Timestamp: stamp,
	}
	chat.messages = append(chat.messages, msg)
	if !fromMe {
		chat.unread++
	}
	if stamp.After(c.lastStamp) {
		c.lastStamp = stamp
	}
}
