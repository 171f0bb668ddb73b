package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/BoringStuffInc/mooagent/pkg/logging"
)

// TokenFileName is the name of the token file inside the config directory.
const TokenFileName = "tokens.json"

// tokenFile is the on-disk document.
type tokenFile struct {
	Tokens map[string]StoredToken `json:"tokens"`
}

// Store keeps one StoredToken per normalized server URL and persists the
// whole set to a single JSON file after every mutation.
//
// SECURITY: the file is written with 0600 permissions, its directory with
// 0700, and token values are never logged.
type Store struct {
	mu     sync.RWMutex
	path   string
	tokens map[string]StoredToken
	buffer time.Duration
	now    func() time.Time
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// Dir is the directory holding tokens.json. An empty Dir keeps tokens
	// in memory only.
	Dir string

	// ExpiryBuffer is the ExpiresSoon window used by Status. Zero means
	// DefaultExpiryBuffer; pass a window to StatusWithBuffer to use another,
	// including none.
	ExpiryBuffer time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewStore creates an empty store. Call Load to read the persisted tokens.
func NewStore(cfg StoreConfig) *Store {
	s := &Store{
		tokens: make(map[string]StoredToken),
		buffer: cfg.ExpiryBuffer,
		now:    cfg.Now,
	}
	if cfg.Dir != "" {
		s.path = filepath.Join(cfg.Dir, TokenFileName)
	}
	if s.buffer <= 0 {
		s.buffer = DefaultExpiryBuffer
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// OpenStore creates a store and loads it from disk. A load failure leaves
// the store empty and is returned alongside it.
func OpenStore(cfg StoreConfig) (*Store, error) {
	s := NewStore(cfg)
	if err := s.Load(); err != nil {
		return s, err
	}
	return s, nil
}

// Path returns the backing file path, or "" for an in-memory store.
func (s *Store) Path() string {
	return s.path
}

// Load replaces the in-memory tokens with the file contents. A missing file
// is an empty store. On a read or parse error the store is emptied and a
// *StorageError is returned.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens = make(map[string]StoredToken)
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("TokenStore", "No token file at %s", s.path)
			return nil
		}
		return &StorageError{Op: "load", Path: s.path, Err: err}
	}

	var doc tokenFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return &StorageError{Op: "load", Path: s.path, Err: fmt.Errorf("invalid token file: %w", err)}
	}

	for url, tok := range doc.Tokens {
		s.tokens[NormalizeServerURL(url)] = tok
	}
	logging.Debug("TokenStore", "Loaded %d token(s) from %s", len(s.tokens), s.path)
	return nil
}

// Get returns the token stored for serverURL, expired or not.
func (s *Store) Get(serverURL string) (StoredToken, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[NormalizeServerURL(serverURL)]
	return tok, ok
}

// GetValid returns the token for serverURL only if it has not expired.
func (s *Store) GetValid(serverURL string) (StoredToken, bool) {
	tok, ok := s.Get(serverURL)
	if !ok || tok.IsExpired(s.now()) {
		return StoredToken{}, false
	}
	return tok, true
}

// Insert stores tok for serverURL, replacing any previous token, and
// persists the store.
// SECURITY: only the server URL and token metadata are audited.
func (s *Store) Insert(serverURL string, tok StoredToken) error {
	key := NormalizeServerURL(serverURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[key] = tok
	if err := s.saveLocked(); err != nil {
		logging.Audit(logging.AuditEvent{
			Action:    "token_store_failed",
			ServerURL: key,
			Outcome:   "failure",
			Attrs:     []slog.Attr{slog.String("error", err.Error())},
		})
		return err
	}

	expires := "never"
	if tok.HasExpiry() {
		expires = tok.ExpiresAt.Format(time.RFC3339)
	}
	logging.Audit(logging.AuditEvent{
		Action:    "token_stored",
		ServerURL: key,
		Outcome:   "success",
		Attrs: []slog.Attr{
			slog.String("expires_at", expires),
			slog.Bool("has_refresh_token", tok.RefreshToken != ""),
		},
	})
	return nil
}

// Remove deletes the token for serverURL and returns it. The file is only
// rewritten when a token was actually removed.
func (s *Store) Remove(serverURL string) (StoredToken, bool, error) {
	key := NormalizeServerURL(serverURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[key]
	if !ok {
		return StoredToken{}, false, nil
	}
	delete(s.tokens, key)

	if err := s.saveLocked(); err != nil {
		return tok, true, err
	}

	logging.Audit(logging.AuditEvent{
		Action:    "token_deleted",
		ServerURL: key,
		Outcome:   "success",
	})
	return tok, true, nil
}

// Clear removes every token and persists the empty store.
func (s *Store) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.tokens)
	s.tokens = make(map[string]StoredToken)
	if err := s.saveLocked(); err != nil {
		return count, err
	}

	logging.Audit(logging.AuditEvent{
		Action:  "tokens_cleared",
		Outcome: "success",
		Attrs:   []slog.Attr{slog.Int("count", count)},
	})
	return count, nil
}

// Status classifies the token for serverURL using the store's buffer.
func (s *Store) Status(serverURL string) TokenStatus {
	return s.StatusWithBuffer(serverURL, s.buffer)
}

// StatusWithBuffer classifies the token for serverURL using buffer as the
// ExpiresSoon window.
func (s *Store) StatusWithBuffer(serverURL string, buffer time.Duration) TokenStatus {
	tok, ok := s.Get(serverURL)
	if !ok {
		return StatusNone
	}
	return ClassifyToken(&tok, s.now(), buffer)
}

// NeedsRefresh reports whether a stored token is expired or about to expire.
func (s *Store) NeedsRefresh(serverURL string) bool {
	return s.Status(serverURL).NeedsRefresh()
}

// ServerURLs lists the normalized URLs that have a stored token, sorted.
func (s *Store) ServerURLs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	urls := make([]string, 0, len(s.tokens))
	for url := range s.tokens {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}

// Save persists the store.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked writes the whole store via a temp file and rename.
// REQUIRES: s.mu held for writing.
func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(tokenFile{Tokens: s.tokens}, "", "  ")
	if err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*.json")
	if err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}
