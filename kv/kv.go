// Package kv defines the small key/value state shared by every process of
// a deployment: circuit breaker counters and notification cooldowns.
package kv

import (
	"context"
	"sync"
	"time"
)

// Store persists integers and timestamps under string keys. Missing keys
// read as zero values with ok=false.
type Store interface {
	GetInt(ctx context.Context, key string) (int64, bool, error)
	SetInt(ctx context.Context, key string, v int64) error
	// IncrInt adds delta to the stored value and returns the result.
	IncrInt(ctx context.Context, key string, delta int64) (int64, error)
	GetTime(ctx context.Context, key string) (time.Time, bool, error)
	SetTime(ctx context.Context, key string, t time.Time) error
	Delete(ctx context.Context, keys ...string) error
}

// Memory is an in-process Store. It shares state only within one process.
type Memory struct {
	mu    sync.Mutex
	ints  map[string]int64
	times map[string]time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		ints:  make(map[string]int64),
		times: make(map[string]time.Time),
	}
}

// GetInt implements Store.
func (m *Memory) GetInt(_ context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.ints[key]
	return v, ok, nil
}

// SetInt implements Store.
func (m *Memory) SetInt(_ context.Context, key string, v int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ints[key] = v
	return nil
}

// IncrInt implements Store.
func (m *Memory) IncrInt(_ context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ints[key] += delta
	return m.ints[key], nil
}

// GetTime implements Store.
func (m *Memory) GetTime(_ context.Context, key string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.times[key]
	return t, ok, nil
}

// SetTime implements Store.
func (m *Memory) SetTime(_ context.Context, key string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.times[key] = t
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.ints, k)
		delete(m.times, k)
	}
	return nil
}
