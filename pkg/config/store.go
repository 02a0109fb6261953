// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/afero"
)

// Store persists plugin settings as string key/value pairs.
//
// Get reports ok == false when the key was never set. A key explicitly set
// to the empty string is reported with ok == true.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Backend names a Store implementation.
type Backend string

const (
	// BackendMemory keeps settings in process memory.
	BackendMemory Backend = "memory"
	// BackendFile keeps settings in a YAML file.
	BackendFile Backend = "file"
	// BackendSQLite keeps settings in a SQLite database.
	BackendSQLite Backend = "sqlite"
	// BackendRedis keeps settings in a Redis hash.
	BackendRedis Backend = "redis"
)

// Valid reports whether b names a known backend.
func (b Backend) Valid() bool {
	switch b {
	case BackendMemory, BackendFile, BackendSQLite, BackendRedis:
		return true
	}
	return false
}

// NewStore creates the Store for backend. location is the settings file, the
// SQLite database path or the Redis URL; it is ignored for BackendMemory.
func NewStore(ctx context.Context, fs afero.Fs, backend Backend, location string) (Store, error) {
	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		return NewFileStore(fs, location)
	case BackendSQLite:
		return NewSQLiteStore(ctx, location)
	case BackendRedis:
		return NewRedisStore(ctx, location)
	default:
		return nil, fmt.Errorf("unknown settings backend %q", backend)
	}
}

// MemoryStore is a Store backed by a map.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the value stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
