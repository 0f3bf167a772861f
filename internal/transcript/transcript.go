// Package transcript keeps the ordered list of chat messages and mirrors it
// into a key-value store after every change.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/civicbot/internal/storage"
)

// StorageKey is the key the transcript is persisted under.
const StorageKey = "civicbot-messages"

// Welcome is the bot greeting that opens every fresh conversation.
const Welcome = "Hello! I'm CivicBot, your AI assistant for civic awareness. I can help you understand your rights, duties, legal procedures, and civic processes. What would you like to know today?"

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

type Kind string

const (
	KindText       Kind = "text"
	KindSuggestion Kind = "suggestion"
	KindResource   Kind = "resource"
)

// Message is one transcript entry. Messages are never edited once appended.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"type,omitempty"`
}

// KV is the persistence the store writes through to.
type KV interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Store is the in-memory transcript backed by a KV.
type Store struct {
	kv     KV
	now    func() time.Time
	logger *slog.Logger

	// persistMu is held from snapshot to KV write so saves land in
	// mutation order. Readers only take mu.
	persistMu sync.Mutex

	mu       sync.RWMutex
	messages []Message
}

// New creates an empty store. Call Load before use.
func New(kv KV, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, now: time.Now, logger: logger}
}

// Load restores the saved transcript. When nothing usable is saved the
// store starts with the welcome message.
func (s *Store) Load() error {
	raw, err := s.kv.Get(StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		s.seed()
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading transcript: %w", err)
	}

	var msgs []Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		s.logger.Warn("discarding unreadable transcript", "error", err)
		s.seed()
		return nil
	}
	if len(msgs) == 0 {
		s.seed()
		return nil
	}

	s.mu.Lock()
	s.messages = msgs
	s.mu.Unlock()
	return nil
}

func (s *Store) seed() {
	s.mu.Lock()
	s.messages = []Message{s.newMessage(Welcome, SenderBot, KindText)}
	s.mu.Unlock()
}

func (s *Store) newMessage(content string, sender Sender, kind Kind) Message {
	return Message{
		ID:        uuid.New().String(),
		Content:   content,
		Sender:    sender,
		Timestamp: s.now().UTC(),
		Kind:      kind,
	}
}

// Messages returns a copy of the transcript in order.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Append adds a new message and persists the transcript. The message is
// kept in memory even if persisting fails.
func (s *Store) Append(content string, sender Sender, kind Kind) (Message, error) {
	msg := s.newMessage(content, sender, kind)

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	data, err := json.Marshal(s.messages)
	s.mu.Unlock()
	if err != nil {
		return msg, fmt.Errorf("encoding transcript: %w", err)
	}

	if err := s.kv.Set(StorageKey, string(data)); err != nil {
		return msg, fmt.Errorf("saving transcript: %w", err)
	}
	return msg, nil
}

// Reset drops every message, clears the saved copy and starts over with the
// welcome message.
func (s *Store) Reset() error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.seed()
	if err := s.kv.Delete(StorageKey); err != nil {
		return fmt.Errorf("clearing transcript: %w", err)
	}
	return nil
}
