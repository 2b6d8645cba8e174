package credstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chatgate/go-chatgate/lib/util"
	"github.com/samber/oops"
)

const (
	// InfoFileName is the shared metadata file at the store root.
	InfoFileName = "client_info.json"

	// SessionMarkerPrefix identifies the backend file whose presence marks a
	// client directory as holding a resumable session. Backends name their
	// credential files freely as long as the session file keeps this prefix.
	SessionMarkerPrefix = "session"
)

// ClientMeta is the advisory per-client record kept in InfoFileName. It is
// never consulted to decide session validity; the presence of the credential
// subdirectory decides that.
type ClientMeta struct {
	LastReady time.Time `json:"lastReady"`
	Status    string    `json:"status"`
}

// filesystem-backed credential store, one subdirectory per client identifier
type Store struct {
	root    string
	infoMux sync.Mutex // serializes client_info.json read-modify-write
}

func NewStore(root string) *Store {
	log.WithField("store_path", root).Debug("Creating credential store")
	return &Store{root: root}
}

// Path returns the store root directory.
func (s *Store) Path() string {
	return s.root
}

// ensure that the store root directory exists
func (s *Store) Ensure() error {
	if err := os.MkdirAll(s.root, 0o700); err != nil {
		log.WithError(err).Error("Failed to create credential store root")
		return oops.Wrapf(err, "creating credential store at %s", s.root)
	}
	return nil
}

// ClientDir returns the credential directory path for id. Identifiers are
// validated before they reach the store, so this is a pure join.
func (s *Store) ClientDir(id string) string {
	return filepath.Join(s.root, id)
}

// EnsureClientDir creates the credential directory for id if needed and
// returns its path.
func (s *Store) EnsureClientDir(id string) (string, error) {
	dir := s.ClientDir(id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		log.WithError(err).WithField("client_id", id).Error("Failed to create client credential directory")
		return "", oops.Wrapf(err, "creating credential directory for %s", id)
	}
	return dir, nil
}

// HasClient reports whether a credential directory exists for id.
func (s *Store) HasClient(id string) bool {
	return util.CheckDirExists(s.ClientDir(id))
}

// HasSession reports whether the credential directory for id contains at
// least one session marker file, i.e. whether a handshake once completed and
// the backend left resumable credentials behind.
func (s *Store) HasSession(id string) bool {
	entries, err := os.ReadDir(s.ClientDir(id))
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), SessionMarkerPrefix) {
			return true
		}
	}
	return false
}

// ListSessionIDs enumerates client identifiers holding resumable sessions,
// in lexicographic order. Directories without a session marker are skipped;
// a missing store root yields an empty list.
func (s *Store) ListSessionIDs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, oops.Wrapf(err, "reading credential store at %s", s.root)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() && s.HasSession(entry.Name()) {
			ids = append(ids, entry.Name())
		}
	}
	log.WithField("count", len(ids)).Debug("Enumerated resumable sessions")
	return ids, nil
}

// RecordReady read-modify-writes the shared metadata file, stamping id with
// the given ready time. Advisory: callers treat a returned error as a warning
// and never let it touch session state.
func (s *Store) RecordReady(id string, at time.Time) error {
	s.infoMux.Lock()
	defer s.infoMux.Unlock()

	info := s.readInfoFile()
	info[id] = ClientMeta{LastReady: at.UTC(), Status: "ready"}
	return s.writeInfoFile(info)
}

// ClientInfo returns the advisory metadata record for id, if one exists.
func (s *Store) ClientInfo(id string) (ClientMeta, bool) {
	s.infoMux.Lock()
	defer s.infoMux.Unlock()

	meta, ok := s.readInfoFile()[id]
	return meta, ok
}

// RemoveClient deletes the credential directory for id and drops its
// metadata entry. Removing an absent directory is not an error; metadata
// failures are logged but never returned, the directory is what counts.
func (s *Store) RemoveClient(id string) error {
	dir := s.ClientDir(id)
	log.WithField("client_id", id).Debug("Removing client credentials")
	if err := os.RemoveAll(dir); err != nil {
		log.WithError(err).WithField("client_id", id).Error("Failed to remove client credential directory")
		return oops.Wrapf(err, "removing credential directory for %s", id)
	}

	s.infoMux.Lock()
	defer s.infoMux.Unlock()
	info := s.readInfoFile()
	if _, ok := info[id]; ok {
		delete(info, id)
		if err := s.writeInfoFile(info); err != nil {
			log.WithError(err).WithField("client_id", id).Warn("Failed to update metadata after client removal")
		}
	}
	return nil
}

func (s *Store) infoFilePath() string {
	return filepath.Join(s.root, InfoFileName)
}

// readInfoFile loads the metadata map. A missing or corrupt file yields an
// empty map so the advisory record can never block session work. Callers
// must hold infoMux.
func (s *Store) readInfoFile() map[string]ClientMeta {
	info := make(map[string]ClientMeta)
	data, err := os.ReadFile(s.infoFilePath())
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warn("Failed to read client metadata file")
		}
		return info
	}
	if err := json.Unmarshal(data, &info); err != nil {
		log.WithError(err).Warn("Client metadata file is corrupt, starting fresh")
		return make(map[string]ClientMeta)
	}
	return info
}

// writeInfoFile stores the whole metadata map. Callers must hold infoMux.
func (s *Store) writeInfoFile(info map[string]ClientMeta) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return oops.Wrapf(err, "encoding client metadata")
	}
	if err := os.WriteFile(s.infoFilePath(), data, 0o600); err != nil {
		log.WithError(err).Error("Failed to write client metadata file")
		return oops.Wrapf(err, "writing client metadata file")
	}
	return nil
}
