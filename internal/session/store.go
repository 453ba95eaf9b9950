// Package session gates every tool call behind an opaque bearer token
// minted by the authenticate tool.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidToken rejects a tool call with a missing or unknown token.
var ErrInvalidToken = errors.New("invalid or missing session token")

type session struct {
	createdAt time.Time
}

// Store holds the set of live session tokens. Tokens are opaque 64-char
// lowercase hex strings and never expire within a process lifetime.
// Thread-safe.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]session)}
}

// Mint creates, registers, and returns a new session token.
func (s *Store) Mint() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("minting session token: %w", err)
	}
	token := hex.EncodeToString(buf)

	s.mu.Lock()
	s.sessions[token] = session{createdAt: time.Now()}
	s.mu.Unlock()
	return token, nil
}

// Check validates a presented token.
func (s *Store) Check(token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	s.mu.RLock()
	_, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return ErrInvalidToken
	}
	return nil
}

// Revoke drops a token. Unknown tokens are a no-op.
func (s *Store) Revoke(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
