// File: config/store.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Thread-safe settings store with reload listener propagation.

package config

import "sync"

// Store holds the current Settings snapshot and notifies listeners on
// replacement.
type Store struct {
	mu        sync.RWMutex
	current   Settings
	listeners []func(Settings)
}

// NewStore creates a store seeded with s.
func NewStore(s Settings) *Store {
	return &Store{current: s}
}

// Snapshot returns the current settings.
func (st *Store) Snapshot() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current
}

// Replace swaps in new settings and dispatches reload listeners.
func (st *Store) Replace(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	st.mu.Lock()
	st.current = s
	listeners := append([]func(Settings){}, st.listeners...)
	st.mu.Unlock()
	for _, fn := range listeners {
		go fn(s)
	}
	return nil
}

// OnReload registers a listener invoked after every Replace.
func (st *Store) OnReload(fn func(Settings)) {
	st.mu.Lock()
	st.listeners = append(st.listeners, fn)
	st.mu.Unlock()
}
