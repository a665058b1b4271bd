package integrity

import (
	"context"
	"maps"
	"sync"
)

// Settings is a key/value store for build-model settings.
// Reads are always allowed; writes are checked by the guard.
type Settings struct {
	guard *Guard

	mu     sync.RWMutex
	values map[string]string
}

// NewSettings creates an empty store guarded by g.
func NewSettings(g *Guard) *Settings {
	return &Settings{
		guard:  g,
		values: make(map[string]string),
	}
}

// Get returns the value for key.
func (s *Settings) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key.
func (s *Settings) Set(ctx context.Context, key, value string) error {
	if err := s.guard.CheckMutation(ctx, "setting "+key); err != nil {
		return err
	}
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}

// Delete removes key.
func (s *Settings) Delete(ctx context.Context, key string) error {
	if err := s.guard.CheckMutation(ctx, "setting "+key); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
	return nil
}

// All returns a copy of all settings.
func (s *Settings) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}
