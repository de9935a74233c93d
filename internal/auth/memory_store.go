package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore provides an in-memory implementation of the Store interface,
// intended for development and testing scenarios.
type MemoryStore struct {
	mu     sync.RWMutex
	byName map[string]*User
	byKey  map[string]*User
	nextID int64
}

// NewMemoryStore initialises an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byName: make(map[string]*User),
		byKey:  make(map[string]*User),
		nextID: 1,
	}
}

// CreateUser registers a new account without an API key.
func (s *MemoryStore) CreateUser(_ context.Context, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byName[username]; ok {
		return existing.Clone(), nil
	}
	user := &User{
		ID:        s.nextID,
		Username:  username,
		CreatedAt: time.Now(),
	}
	s.nextID++
	s.byName[username] = user
	return user.Clone(), nil
}

// FindUserByUsername retrieves the user record.
func (s *MemoryStore) FindUserByUsername(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user, ok := s.byName[strings.TrimSpace(username)]; ok {
		return user.Clone(), nil
	}
	return nil, ErrUserNotFound
}

// FindUserByAPIKey retrieves the user owning the given key.
func (s *MemoryStore) FindUserByAPIKey(_ context.Context, apiKey string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user, ok := s.byKey[strings.TrimSpace(apiKey)]; ok {
		return user.Clone(), nil
	}
	return nil, ErrInvalidAPIKey
}

// SaveAPIKey replaces the user's API key, invalidating the previous one.
func (s *MemoryStore) SaveAPIKey(_ context.Context, userID int64, apiKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.byName {
		if user.ID != userID {
			continue
		}
		if user.APIKey != "" {
			delete(s.byKey, user.APIKey)
		}
		user.APIKey = apiKey
		s.byKey[apiKey] = user
		return nil
	}
	return ErrUserNotFound
}
